// Package bolt persists the chain, the UTXO index, and the wallet collection
// in a single embedded bbolt database, one bucket per concern. One *Store
// satisfies the storage interfaces of the chain, utxo, and wallet packages.
package bolt

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	blocksBucket     = []byte("blocks")
	chainstateBucket = []byte("chainstate")
	walletsBucket    = []byte("wallets")

	// tipKey is the literal key the current tip hash is stored under inside
	// the blocks bucket.
	tipKey = []byte("LAST")
)

// Store is an embedded key-value store shared by the three persistence
// concerns.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{blocksBucket, chainstateBucket, walletsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
