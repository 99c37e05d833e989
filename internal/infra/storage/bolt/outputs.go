package bolt

import (
	bbolt "go.etcd.io/bbolt"

	"github.com/utxod/utxod/internal/utxo"
)

// Compile-time assertion that *Store satisfies the UTXO index's storage
// interface.
var _ utxo.OutputStore = (*Store)(nil)

// Reset discards the whole UTXO index bucket.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(chainstateBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(chainstateBucket)
		return err
	})
}

// GetOutputs returns the encoded unspent outputs stored under txid.
func (s *Store) GetOutputs(txid string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(chainstateBucket).Get([]byte(txid)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})

	return data, data != nil, err
}

// PutOutputs stores an encoded entry under txid.
func (s *Store) PutOutputs(txid string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(chainstateBucket).Put([]byte(txid), data)
	})
}

// DeleteOutputs removes the entry for txid.
func (s *Store) DeleteOutputs(txid string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(chainstateBucket).Delete([]byte(txid))
	})
}

// ForEach visits every entry in ascending txid order; bbolt cursors iterate
// keys in byte order, which for hex transaction ids is exactly that.
func (s *Store) ForEach(fn func(txid string, data []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(chainstateBucket).ForEach(func(k, v []byte) error {
			return fn(string(k), append([]byte(nil), v...))
		})
	})
}
