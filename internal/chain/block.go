package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"time"
)

// Block is an ordered batch of transactions linked to its predecessor by
// hash. Blocks are created once, by mining, and are immutable afterwards.
type Block struct {
	Height       int
	Hash         string
	PrevHash     string
	Transactions []*Transaction
	Nonce        int
	Timestamp    int64 // unix milliseconds
}

// NewBlock assembles a block at the given height on top of prevHash and
// solves the proof-of-work puzzle for it. The call blocks until a valid nonce
// is found.
func NewBlock(txs []*Transaction, prevHash string, height int) (*Block, error) {
	b := &Block{
		Height:       height,
		PrevHash:     prevHash,
		Transactions: txs,
		Timestamp:    time.Now().UnixMilli(),
	}

	nonce, hash := NewProofOfWork(b).Run()
	b.Nonce = nonce
	b.Hash = hash

	return b, nil
}

// NewGenesisBlock builds the height-0 block containing only the given
// coinbase transaction.
func NewGenesisBlock(coinbase *Transaction) (*Block, error) {
	return NewBlock([]*Transaction{coinbase}, "", 0)
}

// HashTransactions condenses the block's transaction ids into a single
// digest, the transaction component of the block hash.
func (b *Block) HashTransactions() []byte {
	ids := make([][]byte, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		ids = append(ids, []byte(tx.ID))
	}

	sum := sha256.Sum256(bytes.Join(ids, nil))
	return sum[:]
}

// Serialize encodes the block for storage and the wire.
func (b *Block) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}

	return buf.Bytes(), nil
}

// DeserializeBlock reverses Serialize.
func DeserializeBlock(data []byte) (*Block, error) {
	var b Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}

	return &b, nil
}
