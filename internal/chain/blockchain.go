// Package chain implements the append-only, hash-linked block chain: blocks,
// transactions, proof of work, and the Blockchain service over a pluggable
// persistent store. The chain is the source of truth; the UTXO index in the
// utxo package is a rebuildable cache over it.
package chain

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/utxod/utxod/internal/wallet"
)

const (
	// tipKey is the literal storage key the current tip hash lives under.
	tipKey = "LAST"

	// genesisRewardAddress receives the genesis coinbase when a chain is
	// opened without an explicit reward address.
	genesisRewardAddress = "35yLCpZy2MzPzyngA3YstWbyDhyhzjXBcw"

	// genesisCoinbaseData is the memo embedded in the genesis coinbase.
	genesisCoinbaseData = "The Times 03/Jan/2009 Chancellor on brink of second bailout for banks"
)

var (
	// ErrBlockNotFound is returned when a block hash is absent from the store.
	ErrBlockNotFound = errors.New("block not found")

	// ErrInvalidTransaction aborts mining when any transaction in the batch
	// fails signature verification.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrChainExists is returned by Create when the store already holds a
	// chain.
	ErrChainExists = errors.New("blockchain already exists")
)

// BlockStore is the persistence interface for the hash chain: block hash to
// serialized block, plus the tip pointer. Implementations must be safe for
// concurrent readers.
type BlockStore interface {
	// GetTip returns the stored tip hash, or "" when the chain is empty.
	GetTip() (string, error)

	// SetTip records hash as the new tip.
	SetTip(hash string) error

	// GetBlock returns the serialized block for hash and whether it exists.
	GetBlock(hash string) ([]byte, bool, error)

	// PutBlock persists a serialized block under its hash.
	PutBlock(hash string, data []byte) error
}

// UnspentSelector selects spendable outputs for an address hash. The utxo
// package's Set satisfies it; the indirection keeps the chain free of a
// dependency on its own cache.
type UnspentSelector interface {
	// FindSpendableOutputs accumulates unspent outputs locked to pubKeyHash
	// until the total reaches amount, returning the accumulated total and the
	// selected output indices per transaction id. The total may be less than
	// amount when funds are insufficient.
	FindSpendableOutputs(pubKeyHash []byte, amount int) (int, map[string][]int, error)
}

// Blockchain is the append-only chain service. All mutation happens under an
// exclusive writer lock; mining holds it for the full proof-of-work search,
// which is an accepted bottleneck.
type Blockchain struct {
	mu    sync.RWMutex
	store BlockStore
	tip   string
}

// Open loads the chain from the store, creating the genesis block with the
// fixed reward address if the store is empty.
func Open(store BlockStore) (*Blockchain, error) {
	tip, err := store.GetTip()
	if err != nil {
		return nil, fmt.Errorf("open chain store: %w", err)
	}

	bc := &Blockchain{store: store, tip: tip}
	if tip == "" {
		if err := bc.createGenesis(genesisRewardAddress); err != nil {
			return nil, err
		}
	}

	return bc, nil
}

// Create initializes a fresh chain whose genesis coinbase rewards the given
// address. It refuses to touch a store that already holds a chain.
func Create(store BlockStore, address string) (*Blockchain, error) {
	tip, err := store.GetTip()
	if err != nil {
		return nil, fmt.Errorf("open chain store: %w", err)
	}
	if tip != "" {
		return nil, ErrChainExists
	}

	bc := &Blockchain{store: store}
	if err := bc.createGenesis(address); err != nil {
		return nil, err
	}

	return bc, nil
}

func (bc *Blockchain) createGenesis(address string) error {
	cbtx, err := NewCoinbaseTX(address, genesisCoinbaseData)
	if err != nil {
		return err
	}

	genesis, err := NewGenesisBlock(cbtx)
	if err != nil {
		return err
	}

	if err := bc.persistLocked(genesis); err != nil {
		return err
	}
	bc.tip = genesis.Hash

	return nil
}

// persistLocked writes a block and advances the tip. Callers hold the writer
// lock (or own the chain exclusively during construction).
func (bc *Blockchain) persistLocked(b *Block) error {
	data, err := b.Serialize()
	if err != nil {
		return err
	}

	if err := bc.store.PutBlock(b.Hash, data); err != nil {
		return fmt.Errorf("put block %s: %w", b.Hash, err)
	}
	if err := bc.store.SetTip(b.Hash); err != nil {
		return fmt.Errorf("set tip %s: %w", b.Hash, err)
	}

	return nil
}

// MineBlock verifies the batch, links a new block to the tip, solves the
// proof of work, persists the block, and advances the tip. The whole batch is
// rejected, and nothing is written, if any transaction fails verification.
// The caller blocks for the duration of the search.
func (bc *Blockchain) MineBlock(txs []*Transaction) (*Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for _, tx := range txs {
		ok, err := bc.verifyTransactionLocked(tx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTransaction, tx.ID)
		}
	}

	height, err := bc.bestHeightLocked()
	if err != nil {
		return nil, err
	}

	block, err := NewBlock(txs, bc.tip, height+1)
	if err != nil {
		return nil, err
	}

	if err := bc.persistLocked(block); err != nil {
		return nil, err
	}
	bc.tip = block.Hash

	return block, nil
}

// AddBlock ingests a block received from a peer. Known blocks are a no-op;
// the tip only advances when the block's height exceeds the current best
// height. No fork comparison happens beyond that.
func (bc *Blockchain) AddBlock(b *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	_, exists, err := bc.store.GetBlock(b.Hash)
	if err != nil {
		return fmt.Errorf("get block %s: %w", b.Hash, err)
	}
	if exists {
		return nil
	}

	data, err := b.Serialize()
	if err != nil {
		return err
	}
	if err := bc.store.PutBlock(b.Hash, data); err != nil {
		return fmt.Errorf("put block %s: %w", b.Hash, err)
	}

	best, err := bc.bestHeightLocked()
	if err != nil {
		return err
	}
	if b.Height > best {
		if err := bc.store.SetTip(b.Hash); err != nil {
			return fmt.Errorf("set tip %s: %w", b.Hash, err)
		}
		bc.tip = b.Hash
	}

	return nil
}

// GetBlock returns the block stored under hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.getBlockLocked(hash)
}

func (bc *Blockchain) getBlockLocked(hash string) (*Block, error) {
	data, ok, err := bc.store.GetBlock(hash)
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}

	return DeserializeBlock(data)
}

// BestHeight returns the height of the tip block, or -1 for an empty chain.
func (bc *Blockchain) BestHeight() (int, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.bestHeightLocked()
}

func (bc *Blockchain) bestHeightLocked() (int, error) {
	if bc.tip == "" {
		return -1, nil
	}

	b, err := bc.getBlockLocked(bc.tip)
	if err != nil {
		return 0, err
	}

	return b.Height, nil
}

// BlockHashes returns every block hash from tip to genesis.
func (bc *Blockchain) BlockHashes() ([]string, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	var hashes []string
	it := bc.iteratorLocked()
	for {
		b, err := it.Next()
		if err != nil {
			return nil, err
		}
		if b == nil {
			return hashes, nil
		}
		hashes = append(hashes, b.Hash)
	}
}

// Iterator walks the chain backwards from the current tip. The iterator is
// finite and cannot be restarted; create a new one to walk again.
func (bc *Blockchain) Iterator() *Iterator {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.iteratorLocked()
}

func (bc *Blockchain) iteratorLocked() *Iterator {
	return &Iterator{
		currentHash: bc.tip,
		store:       bc.store,
	}
}

// FindUTXO computes the ground-truth unspent output set by scanning the whole
// chain from tip to genesis: outputs never referenced by a later-seen input
// are unspent. The utxo package mirrors this result as a persisted cache.
func (bc *Blockchain) FindUTXO() (map[string]TXOutputs, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	utxos := make(map[string]TXOutputs)
	spent := make(map[string]map[int]bool)

	it := bc.iteratorLocked()
	for {
		b, err := it.Next()
		if err != nil {
			return nil, err
		}
		if b == nil {
			return utxos, nil
		}

		for _, tx := range b.Transactions {
			for outIdx, out := range tx.Vout {
				if spent[tx.ID][outIdx] {
					continue
				}

				entry := utxos[tx.ID]
				if entry.Outputs == nil {
					entry.Outputs = make(map[int]TXOutput)
				}
				entry.Outputs[outIdx] = out
				utxos[tx.ID] = entry
			}

			if tx.IsCoinbase() {
				continue
			}
			for _, in := range tx.Vin {
				if spent[in.Txid] == nil {
					spent[in.Txid] = make(map[int]bool)
				}
				spent[in.Txid][in.Vout] = true
			}
		}
	}
}

// FindTransaction resolves a transaction id by scanning the chain backwards.
// Linear in chain length; acceptable at this design's scale.
func (bc *Blockchain) FindTransaction(id string) (*Transaction, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.findTransactionLocked(id)
}

func (bc *Blockchain) findTransactionLocked(id string) (*Transaction, error) {
	it := bc.iteratorLocked()
	for {
		b, err := it.Next()
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, id)
		}

		for _, tx := range b.Transactions {
			if tx.ID == id {
				return tx, nil
			}
		}
	}
}

func (bc *Blockchain) prevTransactionsLocked(tx *Transaction) (map[string]*Transaction, error) {
	prevs := make(map[string]*Transaction, len(tx.Vin))
	for _, in := range tx.Vin {
		prev, err := bc.findTransactionLocked(in.Txid)
		if err != nil {
			return nil, err
		}
		prevs[prev.ID] = prev
	}

	return prevs, nil
}

// SignTransaction resolves each input's previous transaction from the chain
// and signs the transaction's inputs with the private key.
func (bc *Blockchain) SignTransaction(tx *Transaction, priv ed25519.PrivateKey) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	prevs, err := bc.prevTransactionsLocked(tx)
	if err != nil {
		return err
	}

	return tx.Sign(priv, prevs)
}

// VerifyTransaction checks the transaction's input signatures against the
// outputs they spend. Coinbase transactions verify unconditionally.
func (bc *Blockchain) VerifyTransaction(tx *Transaction) (bool, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.verifyTransactionLocked(tx)
}

func (bc *Blockchain) verifyTransactionLocked(tx *Transaction) (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}

	prevs, err := bc.prevTransactionsLocked(tx)
	if err != nil {
		return false, err
	}

	return tx.Verify(prevs)
}

// NewTransfer builds, hashes, and signs a transfer of amount from the wallet
// to the recipient address, selecting inputs through the UTXO index. When the
// selected outputs exceed the amount, a change output returns the difference
// to the sender.
func (bc *Blockchain) NewTransfer(w *wallet.Wallet, to string, amount int, selector UnspentSelector) (*Transaction, error) {
	acc, outputs, err := selector.FindSpendableOutputs(w.PubKeyHash(), amount)
	if err != nil {
		return nil, err
	}
	if acc < amount {
		return nil, fmt.Errorf("%w: current balance %d", ErrInsufficientBalance, acc)
	}

	var vin []TXInput
	for _, txid := range sortedTxids(outputs) {
		for _, outIdx := range outputs[txid] {
			vin = append(vin, TXInput{
				Txid:   txid,
				Vout:   outIdx,
				PubKey: w.PublicKey,
			})
		}
	}

	out, err := NewTXOutput(amount, to)
	if err != nil {
		return nil, err
	}
	vout := []TXOutput{out}

	if acc > amount {
		change, err := NewTXOutput(acc-amount, w.Address())
		if err != nil {
			return nil, err
		}
		vout = append(vout, change)
	}

	tx := &Transaction{Vin: vin, Vout: vout}
	id, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	tx.ID = id

	if err := bc.SignTransaction(tx, w.PrivateKey); err != nil {
		return nil, err
	}

	return tx, nil
}
