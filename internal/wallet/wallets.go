package wallet

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ErrWalletNotFound is returned when an address has no wallet in the
// collection.
var ErrWalletNotFound = errors.New("wallet not found")

// Storage defines the persistence interface for the wallet collection. Keys
// are addresses, values are the encoded keypairs.
type Storage interface {
	// LoadWallets returns every stored wallet keyed by address.
	LoadWallets() (map[string][]byte, error)

	// SaveWallet persists one encoded wallet under its address. It overwrites
	// any previous value.
	SaveWallet(address string, data []byte) error

	// DeleteWallet removes the wallet stored under the address. Deleting an
	// unknown address is not an error.
	DeleteWallet(address string) error
}

// Wallets is the in-memory collection of the node's wallets, backed by a
// Storage implementation.
type Wallets struct {
	storage Storage

	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// storedWallet is the gob-encoded persistence and export format: the Ed25519
// seed plus the derived public key.
type storedWallet struct {
	SecretKey []byte
	PublicKey []byte
}

func encodeWallet(w *Wallet) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(storedWallet{
		SecretKey: w.SecretKey(),
		PublicKey: w.PublicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode wallet: %w", err)
	}

	return buf.Bytes(), nil
}

func decodeWallet(data []byte) (*Wallet, error) {
	var stored storedWallet
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}

	return FromSecretKey(stored.SecretKey)
}

// NewWallets loads every wallet from storage into a collection.
func NewWallets(storage Storage) (*Wallets, error) {
	raw, err := storage.LoadWallets()
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}

	wallets := make(map[string]*Wallet, len(raw))
	for address, data := range raw {
		w, err := decodeWallet(data)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", address, err)
		}
		wallets[address] = w
	}

	return &Wallets{
		storage: storage,
		wallets: wallets,
	}, nil
}

// Create generates a new wallet, persists it, and returns its address.
func (ws *Wallets) Create() (string, error) {
	w, err := New()
	if err != nil {
		return "", err
	}

	address := w.Address()
	if err := ws.persist(address, w); err != nil {
		return "", err
	}

	ws.mu.Lock()
	ws.wallets[address] = w
	ws.mu.Unlock()

	return address, nil
}

// Get returns the wallet for an address, if present.
func (ws *Wallets) Get(address string) (*Wallet, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	w, ok := ws.wallets[address]
	return w, ok
}

// Addresses returns every known address in ascending order.
func (ws *Wallets) Addresses() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	addresses := make([]string, 0, len(ws.wallets))
	for address := range ws.wallets {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	return addresses
}

// Delete removes a wallet from the collection and from storage.
func (ws *Wallets) Delete(address string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if _, ok := ws.wallets[address]; !ok {
		return ErrWalletNotFound
	}

	if err := ws.storage.DeleteWallet(address); err != nil {
		return fmt.Errorf("delete wallet %s: %w", address, err)
	}
	delete(ws.wallets, address)

	return nil
}

// SaveAll persists every wallet in the collection.
func (ws *Wallets) SaveAll() error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	for address, w := range ws.wallets {
		if err := ws.persist(address, w); err != nil {
			return err
		}
	}

	return nil
}

// ExportToFile writes the encoded wallet for an address to path.
func (ws *Wallets) ExportToFile(address, path string) error {
	ws.mu.RLock()
	w, ok := ws.wallets[address]
	ws.mu.RUnlock()

	if !ok {
		return ErrWalletNotFound
	}

	data, err := encodeWallet(w)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("export wallet %s: %w", address, err)
	}

	return nil
}

// ImportFromFile loads a wallet previously written by ExportToFile, adds it
// to the collection, persists it, and returns its address.
func (ws *Wallets) ImportFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read wallet file: %w", err)
	}

	w, err := decodeWallet(data)
	if err != nil {
		return "", err
	}

	return ws.add(w)
}

// ImportFromSecretKey reconstructs a wallet from a hex-encoded 32-byte seed,
// adds it to the collection, persists it, and returns its address.
func (ws *Wallets) ImportFromSecretKey(hexSeed string) (string, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	w, err := FromSecretKey(seed)
	if err != nil {
		return "", err
	}

	return ws.add(w)
}

func (ws *Wallets) add(w *Wallet) (string, error) {
	address := w.Address()
	if err := ws.persist(address, w); err != nil {
		return "", err
	}

	ws.mu.Lock()
	ws.wallets[address] = w
	ws.mu.Unlock()

	return address, nil
}

func (ws *Wallets) persist(address string, w *Wallet) error {
	data, err := encodeWallet(w)
	if err != nil {
		return err
	}

	if err := ws.storage.SaveWallet(address, data); err != nil {
		return fmt.Errorf("save wallet %s: %w", address, err)
	}

	return nil
}
