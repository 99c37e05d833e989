package bolt

import (
	bbolt "go.etcd.io/bbolt"

	"github.com/utxod/utxod/internal/chain"
)

// Compile-time assertion that *Store satisfies the chain's storage interface.
var _ chain.BlockStore = (*Store)(nil)

// GetTip returns the stored tip hash, or "" when no chain exists yet.
func (s *Store) GetTip() (string, error) {
	var tip string
	err := s.db.View(func(tx *bbolt.Tx) error {
		tip = string(tx.Bucket(blocksBucket).Get(tipKey))
		return nil
	})

	return tip, err
}

// SetTip records hash as the new tip.
func (s *Store) SetTip(hash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blocksBucket).Put(tipKey, []byte(hash))
	})
}

// GetBlock returns the serialized block stored under hash.
func (s *Store) GetBlock(hash string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(blocksBucket).Get([]byte(hash)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})

	return data, data != nil, err
}

// PutBlock persists a serialized block under its hash.
func (s *Store) PutBlock(hash string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blocksBucket).Put([]byte(hash), data)
	})
}
