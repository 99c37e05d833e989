package bolt

import (
	bbolt "go.etcd.io/bbolt"

	"github.com/utxod/utxod/internal/wallet"
)

// Compile-time assertion that *Store satisfies the wallet collection's
// storage interface.
var _ wallet.Storage = (*Store)(nil)

// LoadWallets returns every stored wallet keyed by address.
func (s *Store) LoadWallets() (map[string][]byte, error) {
	wallets := make(map[string][]byte)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(walletsBucket).ForEach(func(k, v []byte) error {
			wallets[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return wallets, nil
}

// SaveWallet persists one encoded wallet under its address.
func (s *Store) SaveWallet(address string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(walletsBucket).Put([]byte(address), data)
	})
}

// DeleteWallet removes the wallet stored under the address.
func (s *Store) DeleteWallet(address string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(walletsBucket).Delete([]byte(address))
	})
}
