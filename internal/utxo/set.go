// Package utxo maintains the materialized index of unspent transaction
// outputs so balance queries and transfer construction do not rescan the
// whole chain. The index is a cache: the chain's FindUTXO scan is the ground
// truth, and the index can always be rebuilt from it.
package utxo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/utxod/utxod/internal/chain"
)

// ErrEntryMissing is returned by Update when a block spends outputs of a
// transaction the index has no entry for, meaning index and chain diverged.
var ErrEntryMissing = errors.New("utxo entry missing")

// errStopIteration signals an early, successful break out of a store scan.
var errStopIteration = errors.New("stop iteration")

// OutputStore is the persistence interface for the index: transaction id to
// encoded chain.TXOutputs. ForEach must visit entries in ascending txid
// order; spendable-output selection depends on it for reproducible results.
type OutputStore interface {
	// Reset discards every entry.
	Reset() error

	// GetOutputs returns the encoded entry for txid and whether it exists.
	GetOutputs(txid string) ([]byte, bool, error)

	// PutOutputs stores an encoded entry under txid, replacing any previous
	// value.
	PutOutputs(txid string, data []byte) error

	// DeleteOutputs removes the entry for txid.
	DeleteOutputs(txid string) error

	// ForEach visits every entry in ascending txid order until fn returns an
	// error, which is propagated.
	ForEach(fn func(txid string, data []byte) error) error
}

// Set is the UTXO index service. Readers proceed concurrently; Reindex and
// Update take the writer lock, which is independent from the chain's lock so
// mining does not stall index reads.
type Set struct {
	mu    sync.RWMutex
	store OutputStore
	chain *chain.Blockchain
}

// NewSet binds an index store to the chain it mirrors.
func NewSet(store OutputStore, bc *chain.Blockchain) *Set {
	return &Set{
		store: store,
		chain: bc,
	}
}

// Chain exposes the underlying blockchain the index mirrors.
func (s *Set) Chain() *chain.Blockchain {
	return s.chain
}

// Reindex rebuilds the index wholesale from the chain's FindUTXO scan. The
// scan runs before the store is touched, so a failed scan leaves the previous
// index intact. O(chain length x average block size); invoked at startup and
// after every applied block.
func (s *Set) Reindex() error {
	utxos, err := s.chain.FindUTXO()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Reset(); err != nil {
		return fmt.Errorf("reset utxo store: %w", err)
	}

	for txid, outs := range utxos {
		data, err := outs.Encode()
		if err != nil {
			return err
		}
		if err := s.store.PutOutputs(txid, data); err != nil {
			return fmt.Errorf("put utxo entry %s: %w", txid, err)
		}
	}

	return nil
}

// Update applies one block incrementally: consumed output indices are removed
// from the referenced entries (dropping entries that become empty) and the
// block transactions' own outputs are inserted as newly unspent. The end
// state equals a full reindex over the same block sequence.
func (s *Set) Update(b *chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range b.Transactions {
		if !tx.IsCoinbase() {
			for _, in := range tx.Vin {
				data, ok, err := s.store.GetOutputs(in.Txid)
				if err != nil {
					return fmt.Errorf("get utxo entry %s: %w", in.Txid, err)
				}
				if !ok {
					return fmt.Errorf("%w: %s", ErrEntryMissing, in.Txid)
				}

				outs, err := chain.DecodeOutputs(data)
				if err != nil {
					return err
				}
				delete(outs.Outputs, in.Vout)

				if len(outs.Outputs) == 0 {
					if err := s.store.DeleteOutputs(in.Txid); err != nil {
						return fmt.Errorf("delete utxo entry %s: %w", in.Txid, err)
					}
					continue
				}

				encoded, err := outs.Encode()
				if err != nil {
					return err
				}
				if err := s.store.PutOutputs(in.Txid, encoded); err != nil {
					return fmt.Errorf("put utxo entry %s: %w", in.Txid, err)
				}
			}
		}

		fresh := chain.TXOutputs{Outputs: make(map[int]chain.TXOutput, len(tx.Vout))}
		for outIdx, out := range tx.Vout {
			fresh.Outputs[outIdx] = out
		}

		encoded, err := fresh.Encode()
		if err != nil {
			return err
		}
		if err := s.store.PutOutputs(tx.ID, encoded); err != nil {
			return fmt.Errorf("put utxo entry %s: %w", tx.ID, err)
		}
	}

	return nil
}

// FindSpendableOutputs accumulates outputs locked to pubKeyHash, scanning
// entries in ascending txid order and output indices in ascending order,
// until the running total reaches amount or the index is exhausted. The
// returned total may be less than requested; callers must check it.
func (s *Set) FindSpendableOutputs(pubKeyHash []byte, amount int) (int, map[string][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		accumulated int
		selected    = make(map[string][]int)
	)

	err := s.store.ForEach(func(txid string, data []byte) error {
		outs, err := chain.DecodeOutputs(data)
		if err != nil {
			return err
		}

		for _, outIdx := range sortedIndices(outs.Outputs) {
			out := outs.Outputs[outIdx]
			if !out.IsLockedWithKey(pubKeyHash) {
				continue
			}

			accumulated += out.Value
			selected[txid] = append(selected[txid], outIdx)

			if accumulated >= amount {
				return errStopIteration
			}
		}

		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return 0, nil, err
	}

	return accumulated, selected, nil
}

// FindUTXO returns every unspent output locked to pubKeyHash, for balance
// computation.
func (s *Set) FindUTXO(pubKeyHash []byte) ([]chain.TXOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var utxos []chain.TXOutput
	err := s.store.ForEach(func(txid string, data []byte) error {
		outs, err := chain.DecodeOutputs(data)
		if err != nil {
			return err
		}

		for _, outIdx := range sortedIndices(outs.Outputs) {
			if out := outs.Outputs[outIdx]; out.IsLockedWithKey(pubKeyHash) {
				utxos = append(utxos, out)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return utxos, nil
}

// Balance sums the unspent outputs locked to pubKeyHash.
func (s *Set) Balance(pubKeyHash []byte) (int, error) {
	outs, err := s.FindUTXO(pubKeyHash)
	if err != nil {
		return 0, err
	}

	var balance int
	for _, out := range outs {
		balance += out.Value
	}

	return balance, nil
}

// CountTransactions returns the number of transactions with at least one
// unspent output.
func (s *Set) CountTransactions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.store.ForEach(func(string, []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

func sortedIndices(outputs map[int]chain.TXOutput) []int {
	indices := make([]int, 0, len(outputs))
	for idx := range outputs {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	return indices
}
