// Package wallet implements Ed25519 keypairs and the address scheme used by
// the ledger: an address is the base58check encoding of
// ripemd160(sha256(public key)) with a one-byte version prefix. Outputs are
// always locked to the public key hash, never to the raw public key.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/ripemd160"
)

// addressVersion is the version byte prepended to the public key hash before
// base58check encoding.
const addressVersion = 0x00

var (
	// ErrMalformedKey is returned when a secret key has the wrong length or
	// cannot be decoded.
	ErrMalformedKey = errors.New("malformed secret key")

	// ErrInvalidAddress is returned when an address fails base58check decoding.
	ErrInvalidAddress = errors.New("invalid address")
)

// Wallet holds an Ed25519 keypair. The address is derived from the public
// key on demand and never stored.
type Wallet struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// New generates a fresh Ed25519 keypair.
func New() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	return &Wallet{
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

// FromSecretKey reconstructs a wallet from a 32-byte Ed25519 seed, deriving
// the public key from it.
func FromSecretKey(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedKey, ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &Wallet{
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// SecretKey returns the 32-byte seed the wallet can be reconstructed from.
func (w *Wallet) SecretKey() []byte {
	return w.PrivateKey.Seed()
}

// PubKeyHash returns ripemd160(sha256(public key)).
func (w *Wallet) PubKeyHash() []byte {
	return HashPubKey(w.PublicKey)
}

// Address returns the base58check-encoded address of the wallet.
func (w *Wallet) Address() string {
	return base58.CheckEncode(w.PubKeyHash(), addressVersion)
}

// HashPubKey hashes a public key with SHA-256 followed by RIPEMD-160.
func HashPubKey(pub []byte) []byte {
	sha := sha256.Sum256(pub)

	hasher := ripemd160.New()
	hasher.Write(sha[:])
	return hasher.Sum(nil)
}

// DecodeAddress extracts the public key hash from a base58check address.
func DecodeAddress(address string) ([]byte, error) {
	payload, _, err := base58.CheckDecode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}

	return payload, nil
}

// ValidateAddress reports whether the address is well formed, checksum
// included.
func ValidateAddress(address string) bool {
	_, _, err := base58.CheckDecode(address)
	return err == nil
}
