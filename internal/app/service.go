// Package app is the facade a frontend talks to: wallet management, balance
// queries, transfer submission, and peer operations, each reported through an
// event stream. Errors returned by its operations are phrased for end users.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/utxod/utxod/internal/chain"
	"github.com/utxod/utxod/internal/netinfo"
	"github.com/utxod/utxod/internal/node"
	"github.com/utxod/utxod/internal/pkg/logger"
	"github.com/utxod/utxod/internal/utxo"
	"github.com/utxod/utxod/internal/wallet"
)

// eventBufferSize bounds the event stream; when a frontend stops draining,
// further events are dropped rather than blocking ledger operations.
const eventBufferSize = 64

var (
	// ErrEmptyReceiver is returned when a transfer names no recipient.
	ErrEmptyReceiver = errors.New("receiver address is empty")

	// ErrNonPositiveAmount is returned when a transfer amount is zero or
	// negative.
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")

	// ErrUnknownWallet is returned when the sender address has no wallet on
	// this node.
	ErrUnknownWallet = errors.New("no wallet for the sender address")
)

// Service is the operation surface exposed to a frontend.
type Service interface {
	// CreateWallet generates and persists a new wallet, returning its address.
	CreateWallet(ctx context.Context) (string, error)

	// Addresses lists every wallet address on this node in ascending order.
	Addresses() []string

	// DeleteWallet removes a wallet and its stored keypair.
	DeleteWallet(ctx context.Context, address string) error

	// ExportWallet writes the encoded keypair for address to path.
	ExportWallet(address, path string) error

	// ImportWalletFile loads a previously exported wallet file and returns the
	// imported address.
	ImportWalletFile(ctx context.Context, path string) (string, error)

	// ImportWalletSeed reconstructs a wallet from a hex-encoded 32-byte seed
	// and returns the imported address.
	ImportWalletSeed(ctx context.Context, hexSeed string) (string, error)

	// Balance returns the confirmed balance of one address.
	Balance(address string) (int, error)

	// Balances returns the confirmed balance of every wallet on this node.
	Balances() (map[string]int, error)

	// TotalBalance sums the balances of every wallet on this node.
	TotalBalance() (int, error)

	// SubmitTransfer builds, signs, and either broadcasts the transfer or
	// mines it locally when mineNow is set. It returns the transaction id.
	SubmitTransfer(ctx context.Context, from, to string, amount int, mineNow bool) (string, error)

	// AddPeer registers a peer address with the node.
	AddPeer(ctx context.Context, address string) error

	// KnownPeers returns the node's current peer directory.
	KnownPeers() []node.KnownNode

	// PublicIP resolves this machine's public IP address.
	PublicIP(ctx context.Context) (string, error)

	// Events is the stream of facade notifications. Events are dropped when
	// the consumer falls behind.
	Events() <-chan Event
}

type service struct {
	wallets  *wallet.Wallets
	set      *utxo.Set
	server   *node.Server
	resolver *netinfo.Resolver

	events chan Event
}

var _ Service = (*service)(nil)

// New assembles the facade over the wallet collection, the UTXO index, and
// the running node.
func New(wallets *wallet.Wallets, set *utxo.Set, server *node.Server) Service {
	return &service{
		wallets:  wallets,
		set:      set,
		server:   server,
		resolver: netinfo.NewResolver(),
		events:   make(chan Event, eventBufferSize),
	}
}

func (s *service) Events() <-chan Event {
	return s.events
}

func (s *service) emit(ctx context.Context, kind EventKind, message string) {
	select {
	case s.events <- newEvent(kind, message):
	default:
		logger.Warn(ctx, "event dropped, consumer behind", "event.kind", kind)
	}
}

func (s *service) CreateWallet(ctx context.Context) (string, error) {
	address, err := s.wallets.Create()
	if err != nil {
		return "", fmt.Errorf("create wallet: %w", err)
	}

	logger.Info(ctx, "wallet created", "wallet.address", address)
	s.emit(ctx, EventBalancesUpdated, "wallet created: "+address)

	return address, nil
}

func (s *service) Addresses() []string {
	return s.wallets.Addresses()
}

func (s *service) DeleteWallet(ctx context.Context, address string) error {
	if err := s.wallets.Delete(address); err != nil {
		return err
	}

	logger.Info(ctx, "wallet deleted", "wallet.address", address)
	s.emit(ctx, EventBalancesUpdated, "wallet deleted: "+address)

	return nil
}

func (s *service) ExportWallet(address, path string) error {
	return s.wallets.ExportToFile(address, path)
}

func (s *service) ImportWalletFile(ctx context.Context, path string) (string, error) {
	address, err := s.wallets.ImportFromFile(path)
	if err != nil {
		return "", err
	}

	logger.Info(ctx, "wallet imported", "wallet.address", address)
	s.emit(ctx, EventBalancesUpdated, "wallet imported: "+address)

	return address, nil
}

func (s *service) ImportWalletSeed(ctx context.Context, hexSeed string) (string, error) {
	address, err := s.wallets.ImportFromSecretKey(hexSeed)
	if err != nil {
		return "", err
	}

	logger.Info(ctx, "wallet imported from seed", "wallet.address", address)
	s.emit(ctx, EventBalancesUpdated, "wallet imported: "+address)

	return address, nil
}

func (s *service) Balance(address string) (int, error) {
	pubKeyHash, err := wallet.DecodeAddress(address)
	if err != nil {
		return 0, err
	}

	return s.set.Balance(pubKeyHash)
}

func (s *service) Balances() (map[string]int, error) {
	balances := make(map[string]int)
	for _, address := range s.wallets.Addresses() {
		balance, err := s.Balance(address)
		if err != nil {
			return nil, err
		}
		balances[address] = balance
	}

	return balances, nil
}

func (s *service) TotalBalance() (int, error) {
	balances, err := s.Balances()
	if err != nil {
		return 0, err
	}

	var total int
	for _, balance := range balances {
		total += balance
	}

	return total, nil
}

func (s *service) SubmitTransfer(ctx context.Context, from, to string, amount int, mineNow bool) (string, error) {
	if to == "" {
		return "", ErrEmptyReceiver
	}
	if amount <= 0 {
		return "", ErrNonPositiveAmount
	}
	if !wallet.ValidateAddress(to) {
		return "", fmt.Errorf("%w: %q", wallet.ErrInvalidAddress, to)
	}

	w, ok := s.wallets.Get(from)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownWallet, from)
	}

	tx, err := s.set.Chain().NewTransfer(w, to, amount, s.set)
	if err != nil {
		if errors.Is(err, chain.ErrInsufficientBalance) {
			s.emit(ctx, EventError, "transfer rejected: "+err.Error())
		}
		return "", err
	}

	if mineNow {
		cbtx, err := chain.NewCoinbaseTX(from, "")
		if err != nil {
			return "", err
		}

		block, err := s.set.Chain().MineBlock([]*chain.Transaction{tx, cbtx})
		if err != nil {
			return "", fmt.Errorf("mine transfer: %w", err)
		}
		if err := s.set.Reindex(); err != nil {
			return "", err
		}

		logger.Info(ctx, "transfer mined",
			"txid", tx.ID,
			"block.hash", block.Hash,
			"block.height", block.Height,
		)
	} else {
		s.server.SendTransaction(ctx, tx)
		logger.Info(ctx, "transfer broadcast", "txid", tx.ID)
	}

	s.emit(ctx, EventTransactionSent, "transaction sent: "+tx.ID)
	s.emit(ctx, EventBalancesUpdated, "balances updated")

	return tx.ID, nil
}

func (s *service) AddPeer(ctx context.Context, address string) error {
	s.server.AddPeer(address)

	logger.Info(ctx, "peer added", "peer.address", address)
	s.emit(ctx, EventPeerAdded, "peer added: "+address)

	return nil
}

func (s *service) KnownPeers() []node.KnownNode {
	return s.server.KnownPeers()
}

func (s *service) PublicIP(ctx context.Context) (string, error) {
	return s.resolver.PublicIP(ctx)
}
