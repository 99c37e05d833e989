// Package node implements the peer-to-peer server: the wire codec, the
// known-peer directory with liveness tracking, the mempool, the block
// synchronization state machine, and mining on behalf of designated miner
// nodes. Per-connection and per-peer failures are contained here; they never
// propagate past the peer they concern.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/utxod/utxod/internal/chain"
	"github.com/utxod/utxod/internal/pkg/logger"
	"github.com/utxod/utxod/internal/pkg/resilience/retry"
	"github.com/utxod/utxod/internal/pkg/validator"
	"github.com/utxod/utxod/internal/utxo"
)

// dialTimeout bounds one outbound connection attempt.
const dialTimeout = 5 * time.Second

// defaultGossipInterval is how often a settled node exchanges version
// messages with its peers.
const defaultGossipInterval = 20 * time.Second

// Config carries the node's identity and peering settings.
type Config struct {
	// NodeAddress is the host:port this node listens on and advertises to
	// peers.
	NodeAddress string `validate:"required,hostname_port"`

	// MiningAddress, when non-empty, designates this node as a miner and
	// receives the coinbase rewards.
	MiningAddress string

	// BootstrapNode is the well-known relay peer seeded into the directory.
	// The bootstrap node itself rebroadcasts transaction inventories.
	BootstrapNode string

	// GossipInterval is the period of the version gossip timer.
	GossipInterval time.Duration
}

// Server is one running ledger node.
type Server struct {
	cfg Config

	utxo    *utxo.Set
	peers   *peerDirectory
	mempool *mempool

	transitMu sync.Mutex
	inTransit []string // block hashes still to fetch while syncing

	retry retry.Retry

	miningMu sync.Mutex // serializes miner loop runs
}

// Option configures optional server behavior.
type Option func(*Server)

// WithRetry makes bootstrap block requests retry with backoff instead of
// waiting for the next gossip tick.
func WithRetry(r retry.Retry) Option {
	return func(s *Server) {
		s.retry = r
	}
}

// New validates the config and assembles a server around the UTXO index (and
// through it, the chain).
func New(cfg Config, set *utxo.Set, opts ...Option) (*Server, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.GossipInterval <= 0 {
		cfg.GossipInterval = defaultGossipInterval
	}

	var seeds []string
	if cfg.BootstrapNode != "" && cfg.BootstrapNode != cfg.NodeAddress {
		seeds = append(seeds, cfg.BootstrapNode)
	}

	s := &Server{
		cfg:     cfg,
		utxo:    set,
		peers:   newPeerDirectory(seeds...),
		mempool: newMempool(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start listens on the configured address and serves connections until ctx
// is canceled. Each accepted connection is handled by its own goroutine; the
// gossip timer runs for the lifetime of the server.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.NodeAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.NodeAddress, err)
	}

	logger.Info(ctx, "node started",
		"node.address", s.cfg.NodeAddress,
		"node.mining_address", s.cfg.MiningAddress,
	)

	go s.gossipLoop(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go s.handleConnection(ctx, conn)
	}
}

// gossipLoop periodically checks the chain state: an empty chain requests
// blocks from every peer, otherwise the node exchanges versions to detect
// height divergence.
func (s *Server) gossipLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GossipInterval)
	defer ticker.Stop()

	// Run once immediately so a fresh node does not idle a full interval.
	s.syncChainState(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncChainState(ctx)
		}
	}
}

func (s *Server) syncChainState(ctx context.Context) {
	best, err := s.utxo.Chain().BestHeight()
	if err != nil {
		logger.Error(ctx, "chain state check failed", "error", err)
		return
	}

	if best == -1 {
		s.requestBlocks(ctx)
		return
	}

	for _, addr := range s.peers.Addresses() {
		_ = s.sendVersion(ctx, addr)
	}
}

// requestBlocks asks every known peer for its block inventory. With a retry
// policy configured, an entirely unreachable peer set is retried with
// backoff.
func (s *Server) requestBlocks(ctx context.Context) {
	op := func() error {
		addrs := s.peers.Addresses()
		if len(addrs) == 0 {
			return nil
		}

		failed := 0
		for _, addr := range addrs {
			if err := s.sendGetBlocks(ctx, addr); err != nil {
				failed++
			}
		}
		if failed == len(addrs) {
			return errors.New("no peer reachable for block request")
		}

		return nil
	}

	var err error
	if s.retry != nil {
		err = s.retry.Execute(ctx, op)
	} else {
		err = op()
	}
	if err != nil {
		logger.Warn(ctx, "block request round failed", "error", err)
	}
}

// AddPeer registers a peer address, resetting its failure counter if already
// known.
func (s *Server) AddPeer(addr string) {
	if addr == s.cfg.NodeAddress {
		return
	}
	s.peers.Add(addr)
}

// KnownPeers returns a snapshot of the peer directory.
func (s *Server) KnownPeers() []KnownNode {
	return s.peers.Snapshot()
}

// ---------------------------------------------------------------- handlers

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	raw, err := io.ReadAll(conn)
	if err != nil {
		logger.Warn(ctx, "connection read failed", "error", err)
		return
	}

	command, payload, err := splitMessage(raw)
	if err != nil {
		logger.Warn(ctx, "malformed message", "error", err)
		return
	}

	logger.Debug(ctx, "message received", "command", command, "bytes", len(raw))

	switch command {
	case cmdAddr:
		err = s.handleAddr(ctx, payload)
	case cmdBlock:
		err = s.handleBlock(ctx, payload)
	case cmdGetBlocks:
		err = s.handleGetBlocks(ctx, payload)
	case cmdGetData:
		err = s.handleGetData(ctx, payload)
	case cmdInv:
		err = s.handleInv(ctx, payload)
	case cmdTx:
		err = s.handleTx(ctx, payload)
	case cmdVersion:
		err = s.handleVersion(ctx, payload)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	if err != nil {
		logger.Error(ctx, "message handling failed", "command", command, "error", err)
	}
}

func (s *Server) handleAddr(ctx context.Context, payload []byte) error {
	var msg addrMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}

	for _, addr := range msg.AddrList {
		s.AddPeer(addr)
	}
	logger.Debug(ctx, "peer list merged", "peers", len(msg.AddrList))

	return nil
}

func (s *Server) handleBlock(ctx context.Context, payload []byte) error {
	var msg blockMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}

	if err := s.utxo.Chain().AddBlock(msg.Block); err != nil {
		return err
	}
	logger.Info(ctx, "block received",
		"block.hash", msg.Block.Hash,
		"block.height", msg.Block.Height,
		"from", msg.AddrFrom,
	)

	if next, ok := s.popInTransit(); ok {
		return s.sendGetData(ctx, msg.AddrFrom, kindBlock, next)
	}

	return s.utxo.Reindex()
}

func (s *Server) handleGetBlocks(ctx context.Context, payload []byte) error {
	var msg getBlocksMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}

	hashes, err := s.utxo.Chain().BlockHashes()
	if err != nil {
		return err
	}

	return s.sendInv(ctx, msg.AddrFrom, kindBlock, hashes)
}

func (s *Server) handleGetData(ctx context.Context, payload []byte) error {
	var msg getDataMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}

	switch msg.Kind {
	case kindBlock:
		b, err := s.utxo.Chain().GetBlock(msg.ID)
		if err != nil {
			return err
		}
		return s.sendBlock(ctx, msg.AddrFrom, b)

	case kindTx:
		tx, ok := s.mempool.Get(msg.ID)
		if !ok {
			logger.Warn(ctx, "requested transaction not in mempool", "txid", msg.ID)
			return nil
		}
		return s.sendTx(ctx, msg.AddrFrom, tx)

	default:
		return fmt.Errorf("%w: getdata kind %q", ErrUnknownCommand, msg.Kind)
	}
}

func (s *Server) handleVersion(ctx context.Context, payload []byte) error {
	var msg versionMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}

	best, err := s.utxo.Chain().BestHeight()
	if err != nil {
		return err
	}

	if best < msg.BestHeight {
		_ = s.sendGetBlocks(ctx, msg.AddrFrom)
	} else if best > msg.BestHeight {
		_ = s.sendVersion(ctx, msg.AddrFrom)
	}

	if err := s.sendAddr(ctx, msg.AddrFrom); err != nil {
		return err
	}

	if !s.peers.Known(msg.AddrFrom) {
		s.AddPeer(msg.AddrFrom)
	}

	return nil
}

func (s *Server) handleInv(ctx context.Context, payload []byte) error {
	var msg invMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}
	if len(msg.Items) == 0 {
		return nil
	}

	switch msg.Kind {
	case kindBlock:
		first := msg.Items[0]
		s.replaceInTransit(msg.Items[1:])
		return s.sendGetData(ctx, msg.AddrFrom, kindBlock, first)

	case kindTx:
		txid := msg.Items[0]
		if _, ok := s.mempool.Get(txid); !ok {
			return s.sendGetData(ctx, msg.AddrFrom, kindTx, txid)
		}
		return nil

	default:
		return fmt.Errorf("%w: inv kind %q", ErrUnknownCommand, msg.Kind)
	}
}

func (s *Server) handleTx(ctx context.Context, payload []byte) error {
	var msg txMsg
	if err := decodePayload(payload, &msg); err != nil {
		return err
	}

	s.mempool.Add(msg.Transaction)
	logger.Info(ctx, "transaction received", "txid", msg.Transaction.ID, "from", msg.AddrFrom)

	if s.cfg.NodeAddress == s.cfg.BootstrapNode {
		// The bootstrap node relays transaction inventories to everyone but
		// the sender.
		for _, addr := range s.peers.Addresses() {
			if addr == s.cfg.NodeAddress || addr == msg.AddrFrom {
				continue
			}
			_ = s.sendInv(ctx, addr, kindTx, []string{msg.Transaction.ID})
		}
		return nil
	}

	if s.cfg.MiningAddress != "" && s.mempool.Len() > 0 {
		s.mineMempool(ctx)
	}

	return nil
}

// mineMempool repeatedly verifies the mempool, mines the valid transactions
// plus a fresh coinbase, reindexes the UTXO set, and announces each new block
// until the mempool drains. Invalid transactions are discarded.
func (s *Server) mineMempool(ctx context.Context) {
	s.miningMu.Lock()
	defer s.miningMu.Unlock()

	for s.mempool.Len() > 0 {
		var valid []*chain.Transaction
		for _, tx := range s.mempool.All() {
			ok, err := s.utxo.Chain().VerifyTransaction(tx)
			if err != nil || !ok {
				logger.Warn(ctx, "discarding invalid mempool transaction", "txid", tx.ID, "error", err)
				s.mempool.Remove(tx.ID)
				continue
			}
			valid = append(valid, tx)
		}

		if len(valid) == 0 {
			return
		}

		cbtx, err := chain.NewCoinbaseTX(s.cfg.MiningAddress, "")
		if err != nil {
			logger.Error(ctx, "coinbase construction failed", "error", err)
			return
		}

		block, err := s.utxo.Chain().MineBlock(append(valid, cbtx))
		if err != nil {
			logger.Error(ctx, "mining failed", "error", err)
			return
		}

		if err := s.utxo.Reindex(); err != nil {
			logger.Error(ctx, "utxo reindex failed", "error", err)
		}

		for _, tx := range valid {
			s.mempool.Remove(tx.ID)
		}

		logger.Info(ctx, "block mined",
			"block.hash", block.Hash,
			"block.height", block.Height,
			"block.transactions", len(block.Transactions),
		)

		for _, addr := range s.peers.Addresses() {
			if addr == s.cfg.NodeAddress {
				continue
			}
			_ = s.sendInv(ctx, addr, kindBlock, []string{block.Hash})
		}
	}
}

// ------------------------------------------------------------------- sends

// sendData attempts one outbound message. A successful connection resets the
// peer's failure counter; a failed one increments it and may evict the peer.
// The error is returned for the caller to log or ignore; it is never fatal.
func (s *Server) sendData(ctx context.Context, addr string, data []byte) error {
	if addr == s.cfg.NodeAddress {
		return nil
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		evicted := s.peers.RecordFailure(addr)
		logger.Warn(ctx, "peer unreachable", "peer", addr, "evicted", evicted, "error", err)
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	s.peers.RecordSuccess(addr)

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}

	return nil
}

func (s *Server) sendVersion(ctx context.Context, addr string) error {
	best, err := s.utxo.Chain().BestHeight()
	if err != nil {
		return err
	}

	data, err := encodeMessage(cmdVersion, versionMsg{
		AddrFrom:   s.cfg.NodeAddress,
		Version:    protocolVersion,
		BestHeight: best,
	})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

func (s *Server) sendGetBlocks(ctx context.Context, addr string) error {
	data, err := encodeMessage(cmdGetBlocks, getBlocksMsg{AddrFrom: s.cfg.NodeAddress})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

func (s *Server) sendGetData(ctx context.Context, addr, kind, id string) error {
	data, err := encodeMessage(cmdGetData, getDataMsg{
		AddrFrom: s.cfg.NodeAddress,
		Kind:     kind,
		ID:       id,
	})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

func (s *Server) sendInv(ctx context.Context, addr, kind string, items []string) error {
	data, err := encodeMessage(cmdInv, invMsg{
		AddrFrom: s.cfg.NodeAddress,
		Kind:     kind,
		Items:    items,
	})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

func (s *Server) sendBlock(ctx context.Context, addr string, b *chain.Block) error {
	data, err := encodeMessage(cmdBlock, blockMsg{
		AddrFrom: s.cfg.NodeAddress,
		Block:    b,
	})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

func (s *Server) sendTx(ctx context.Context, addr string, tx *chain.Transaction) error {
	data, err := encodeMessage(cmdTx, txMsg{
		AddrFrom:    s.cfg.NodeAddress,
		Transaction: tx,
	})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

func (s *Server) sendAddr(ctx context.Context, addr string) error {
	data, err := encodeMessage(cmdAddr, addrMsg{AddrList: s.peers.Addresses()})
	if err != nil {
		return err
	}

	return s.sendData(ctx, addr, data)
}

// SendTransaction broadcasts a transaction to every known peer concurrently.
// Individual per-peer failures are logged and do not abort the broadcast.
func (s *Server) SendTransaction(ctx context.Context, tx *chain.Transaction) {
	var wg sync.WaitGroup
	for _, addr := range s.peers.Addresses() {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if err := s.sendTx(ctx, addr, tx); err != nil {
				logger.Warn(ctx, "transaction broadcast failed", "peer", addr, "txid", tx.ID, "error", err)
			}
		}(addr)
	}
	wg.Wait()
}

// ---------------------------------------------------------- in-transit queue

func (s *Server) replaceInTransit(hashes []string) {
	s.transitMu.Lock()
	defer s.transitMu.Unlock()

	s.inTransit = append([]string(nil), hashes...)
}

func (s *Server) popInTransit() (string, bool) {
	s.transitMu.Lock()
	defer s.transitMu.Unlock()

	if len(s.inTransit) == 0 {
		return "", false
	}

	next := s.inTransit[0]
	s.inTransit = s.inTransit[1:]
	return next, true
}
