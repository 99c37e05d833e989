package chain

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/utxod/utxod/internal/wallet"
)

// Subsidy is the fixed coinbase reward credited per mined block.
const Subsidy = 10

// coinbaseVout is the sentinel output index carried by the single input of a
// coinbase transaction.
const coinbaseVout = -1

var (
	// ErrTxNotFound is returned when a transaction id cannot be resolved
	// anywhere on the chain.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrPrevTxMissing is returned when signing or verification references a
	// previous transaction that is unknown or has an empty id.
	ErrPrevTxMissing = errors.New("previous transaction is unknown")

	// ErrInsufficientBalance is returned when the spendable outputs of a
	// wallet do not cover the requested transfer amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// TXInput references an output of a previous transaction and carries the
// spender's signature and public key. Coinbase inputs have an empty Txid and
// the sentinel output index.
type TXInput struct {
	Txid      string
	Vout      int
	Signature []byte
	PubKey    []byte
}

// UsesKey reports whether the input was created by the owner of pubKeyHash.
func (in *TXInput) UsesKey(pubKeyHash []byte) bool {
	return bytes.Equal(wallet.HashPubKey(in.PubKey), pubKeyHash)
}

// TXOutput holds a value locked to the hash of the recipient's public key.
// The raw public key never appears in an output.
type TXOutput struct {
	Value      int
	PubKeyHash []byte
}

// NewTXOutput creates an output of the given value locked to the address.
func NewTXOutput(value int, address string) (TXOutput, error) {
	pubKeyHash, err := wallet.DecodeAddress(address)
	if err != nil {
		return TXOutput{}, err
	}

	return TXOutput{
		Value:      value,
		PubKeyHash: pubKeyHash,
	}, nil
}

// IsLockedWithKey reports whether the output is spendable by the owner of
// pubKeyHash.
func (out *TXOutput) IsLockedWithKey(pubKeyHash []byte) bool {
	return bytes.Equal(out.PubKeyHash, pubKeyHash)
}

// TXOutputs holds the not-yet-spent outputs of one transaction, keyed by
// their original position in the transaction's Vout list. It is the value the
// UTXO index stores per transaction id. Keeping the original indices is what
// lets inputs built from the index reference the creating transaction
// correctly after partial spends.
type TXOutputs struct {
	Outputs map[int]TXOutput
}

// Encode serializes the output list for storage.
func (outs TXOutputs) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(outs); err != nil {
		return nil, fmt.Errorf("encode outputs: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeOutputs reverses Encode.
func DecodeOutputs(data []byte) (TXOutputs, error) {
	var outs TXOutputs
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&outs); err != nil {
		return TXOutputs{}, fmt.Errorf("decode outputs: %w", err)
	}

	return outs, nil
}

// Transaction is a UTXO-model transfer: ordered inputs consuming previous
// outputs, ordered outputs creating new coin fragments. The id is the hash of
// the transaction with the id field blanked, so it is stable only once all
// inputs are finalized.
type Transaction struct {
	ID   string
	Vin  []TXInput
	Vout []TXOutput
}

// NewCoinbaseTX builds a reward transaction crediting Subsidy to the
// recipient. The memo is stored in the sentinel input's public key slot; when
// empty, a default memo naming the recipient is used.
func NewCoinbaseTX(to, memo string) (*Transaction, error) {
	if memo == "" {
		memo = fmt.Sprintf("Reward to '%s'", to)
	}

	out, err := NewTXOutput(Subsidy, to)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		Vin: []TXInput{{
			Txid:   "",
			Vout:   coinbaseVout,
			PubKey: []byte(memo),
		}},
		Vout: []TXOutput{out},
	}

	id, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	tx.ID = id

	return tx, nil
}

// IsCoinbase reports whether the transaction is a chain-minted reward.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Vin) == 1 && tx.Vin[0].Txid == "" && tx.Vin[0].Vout == coinbaseVout
}

// Hash returns the canonical content hash of the transaction: the hex SHA-256
// digest of its encoding with the id field blanked. It serves both as the
// transaction id and as the message that gets signed.
func (tx *Transaction) Hash() (string, error) {
	cp := *tx
	cp.ID = ""

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// trimmedCopy clones the transaction with every input's signature and public
// key blanked. Signing and verification rebuild the signed message from this
// copy, substituting the referenced output's public key hash one input at a
// time.
func (tx *Transaction) trimmedCopy() Transaction {
	inputs := make([]TXInput, 0, len(tx.Vin))
	for _, in := range tx.Vin {
		inputs = append(inputs, TXInput{
			Txid: in.Txid,
			Vout: in.Vout,
		})
	}

	outputs := make([]TXOutput, 0, len(tx.Vout))
	for _, out := range tx.Vout {
		outputs = append(outputs, TXOutput{
			Value:      out.Value,
			PubKeyHash: out.PubKeyHash,
		})
	}

	return Transaction{
		ID:   tx.ID,
		Vin:  inputs,
		Vout: outputs,
	}
}

// Sign signs every input against the outputs it spends. prevTxs must contain
// every transaction referenced by the inputs, keyed by id. Signatures land on
// the receiver's inputs; the trimmed working copy is discarded. Coinbase
// transactions are a no-op.
func (tx *Transaction) Sign(priv ed25519.PrivateKey, prevTxs map[string]*Transaction) error {
	if tx.IsCoinbase() {
		return nil
	}

	for _, in := range tx.Vin {
		prev, ok := prevTxs[in.Txid]
		if !ok || prev.ID == "" {
			return fmt.Errorf("%w: %s", ErrPrevTxMissing, in.Txid)
		}
	}

	txCopy := tx.trimmedCopy()
	for i := range txCopy.Vin {
		prev := prevTxs[txCopy.Vin[i].Txid]

		txCopy.Vin[i].Signature = nil
		txCopy.Vin[i].PubKey = prev.Vout[txCopy.Vin[i].Vout].PubKeyHash

		id, err := txCopy.Hash()
		if err != nil {
			return err
		}
		txCopy.ID = id
		txCopy.Vin[i].PubKey = nil

		tx.Vin[i].Signature = ed25519.Sign(priv, []byte(id))
	}

	return nil
}

// Verify checks every input signature against the outputs being spent. A bad
// signature yields (false, nil) so callers can reject the transaction without
// treating it as a fault; a missing previous transaction is an error.
// Coinbase transactions always verify.
func (tx *Transaction) Verify(prevTxs map[string]*Transaction) (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}

	for _, in := range tx.Vin {
		prev, ok := prevTxs[in.Txid]
		if !ok || prev.ID == "" {
			return false, fmt.Errorf("%w: %s", ErrPrevTxMissing, in.Txid)
		}
	}

	txCopy := tx.trimmedCopy()
	for i, in := range tx.Vin {
		prev := prevTxs[in.Txid]
		if in.Vout < 0 || in.Vout >= len(prev.Vout) {
			return false, fmt.Errorf("%w: output index %d of %s", ErrPrevTxMissing, in.Vout, in.Txid)
		}

		txCopy.Vin[i].Signature = nil
		txCopy.Vin[i].PubKey = prev.Vout[in.Vout].PubKeyHash

		id, err := txCopy.Hash()
		if err != nil {
			return false, err
		}
		txCopy.Vin[i].PubKey = nil

		if len(in.PubKey) != ed25519.PublicKeySize {
			return false, nil
		}
		if !ed25519.Verify(ed25519.PublicKey(in.PubKey), []byte(id), in.Signature) {
			return false, nil
		}
	}

	return true, nil
}

// sortedTxids returns the keys of a spendable-output selection in ascending
// order so transfer inputs are built deterministically.
func sortedTxids(outputs map[string][]int) []string {
	txids := make([]string, 0, len(outputs))
	for txid := range outputs {
		txids = append(txids, txid)
	}
	sort.Strings(txids)

	return txids
}
