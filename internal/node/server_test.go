package node

import (
	"context"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utxod/utxod/internal/chain"
	"github.com/utxod/utxod/internal/pkg/logger"
	"github.com/utxod/utxod/internal/utxo"
	"github.com/utxod/utxod/internal/wallet"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// fakeBlockStore is an in-memory chain.BlockStore.
type fakeBlockStore struct {
	mu     sync.Mutex
	tip    string
	blocks map[string][]byte
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{blocks: make(map[string][]byte)}
}

func (f *fakeBlockStore) GetTip() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip, nil
}

func (f *fakeBlockStore) SetTip(hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tip = hash
	return nil
}

func (f *fakeBlockStore) GetBlock(hash string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blocks[hash]
	return data, ok, nil
}

func (f *fakeBlockStore) PutBlock(hash string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[hash] = data
	return nil
}

// fakeOutputStore is an in-memory utxo.OutputStore with sorted iteration.
type fakeOutputStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeOutputStore() *fakeOutputStore {
	return &fakeOutputStore{data: make(map[string][]byte)}
}

func (f *fakeOutputStore) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = make(map[string][]byte)
	return nil
}

func (f *fakeOutputStore) GetOutputs(txid string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[txid]
	return data, ok, nil
}

func (f *fakeOutputStore) PutOutputs(txid string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[txid] = data
	return nil
}

func (f *fakeOutputStore) DeleteOutputs(txid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, txid)
	return nil
}

func (f *fakeOutputStore) ForEach(fn func(txid string, data []byte) error) error {
	f.mu.Lock()
	snapshot := make(map[string][]byte, len(f.data))
	txids := make([]string, 0, len(f.data))
	for txid, data := range f.data {
		snapshot[txid] = data
		txids = append(txids, txid)
	}
	f.mu.Unlock()

	sort.Strings(txids)
	for _, txid := range txids {
		if err := fn(txid, snapshot[txid]); err != nil {
			return err
		}
	}
	return nil
}

func testTx(id string) *chain.Transaction {
	return &chain.Transaction{ID: id}
}

// freePort reserves an ephemeral loopback port and returns its address.
func freePort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

// newMinerLedger creates a chain rewarding its genesis to a fresh wallet and
// a reindexed UTXO set over it.
func newMinerLedger(t *testing.T) (*wallet.Wallet, *utxo.Set) {
	t.Helper()

	w, err := wallet.New()
	require.NoError(t, err)

	bc, err := chain.Create(newFakeBlockStore(), w.Address())
	require.NoError(t, err)

	set := utxo.NewSet(newFakeOutputStore(), bc)
	require.NoError(t, set.Reindex())

	return w, set
}

// encodeTx wraps a transaction in a tx message and returns the raw payload
// bytes a handler expects.
func encodeTx(t *testing.T, from string, tx *chain.Transaction) []byte {
	t.Helper()

	raw, err := encodeMessage(cmdTx, txMsg{AddrFrom: from, Transaction: tx})
	require.NoError(t, err)

	_, payload, err := splitMessage(raw)
	require.NoError(t, err)

	return payload
}

func TestNew(t *testing.T) {
	_, set := newMinerLedger(t)

	t.Run("rejects a malformed node address", func(t *testing.T) {
		_, err := New(Config{NodeAddress: "not an address"}, set)
		assert.Error(t, err)
	})

	t.Run("seeds the bootstrap peer", func(t *testing.T) {
		s, err := New(Config{
			NodeAddress:   "127.0.0.1:8334",
			BootstrapNode: "127.0.0.1:8335",
		}, set)
		require.NoError(t, err)

		peers := s.KnownPeers()
		require.Len(t, peers, 1)
		assert.Equal(t, "127.0.0.1:8335", peers[0].Address)
	})

	t.Run("does not seed itself", func(t *testing.T) {
		s, err := New(Config{
			NodeAddress:   "127.0.0.1:8335",
			BootstrapNode: "127.0.0.1:8335",
		}, set)
		require.NoError(t, err)

		assert.Empty(t, s.KnownPeers(), "The bootstrap node must not peer with itself")
	})
}

func TestServer_HandleTx(t *testing.T) {
	t.Run("miner drains the mempool into a block", func(t *testing.T) {
		miner, set := newMinerLedger(t)
		receiver, err := wallet.New()
		require.NoError(t, err)

		s, err := New(Config{
			NodeAddress:   "127.0.0.1:8334",
			MiningAddress: miner.Address(),
		}, set)
		require.NoError(t, err)

		tx, err := set.Chain().NewTransfer(miner, receiver.Address(), 4, set)
		require.NoError(t, err)

		require.NoError(t, s.handleTx(t.Context(), encodeTx(t, "127.0.0.1:9999", tx)))

		assert.Zero(t, s.mempool.Len(), "Mined transactions leave the mempool")

		height, err := set.Chain().BestHeight()
		require.NoError(t, err)
		assert.Equal(t, 1, height)

		balance, err := set.Balance(receiver.PubKeyHash())
		require.NoError(t, err)
		assert.Equal(t, 4, balance, "The index is rebuilt after mining")
	})

	t.Run("miner discards an invalid transaction", func(t *testing.T) {
		miner, set := newMinerLedger(t)
		receiver, err := wallet.New()
		require.NoError(t, err)

		s, err := New(Config{
			NodeAddress:   "127.0.0.1:8334",
			MiningAddress: miner.Address(),
		}, set)
		require.NoError(t, err)

		tx, err := set.Chain().NewTransfer(miner, receiver.Address(), 4, set)
		require.NoError(t, err)
		tx.Vin[0].Signature[0] ^= 0x01

		require.NoError(t, s.handleTx(t.Context(), encodeTx(t, "127.0.0.1:9999", tx)))

		assert.Zero(t, s.mempool.Len(), "Invalid transactions are dropped, not retried")

		height, err := set.Chain().BestHeight()
		require.NoError(t, err)
		assert.Equal(t, 0, height, "No block is mined from an invalid batch")
	})

	t.Run("non-miner only pools the transaction", func(t *testing.T) {
		miner, set := newMinerLedger(t)
		receiver, err := wallet.New()
		require.NoError(t, err)

		s, err := New(Config{NodeAddress: "127.0.0.1:8334"}, set)
		require.NoError(t, err)

		tx, err := set.Chain().NewTransfer(miner, receiver.Address(), 4, set)
		require.NoError(t, err)

		require.NoError(t, s.handleTx(t.Context(), encodeTx(t, "127.0.0.1:9999", tx)))

		assert.Equal(t, 1, s.mempool.Len())

		height, err := set.Chain().BestHeight()
		require.NoError(t, err)
		assert.Equal(t, 0, height)
	})

	t.Run("bootstrap relays the inventory to other peers", func(t *testing.T) {
		miner, set := newMinerLedger(t)
		receiver, err := wallet.New()
		require.NoError(t, err)

		// A raw listener stands in for another peer and captures one message.
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		captured := make(chan []byte, 1)
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			raw, _ := io.ReadAll(conn)
			captured <- raw
		}()

		bootstrapAddr := freePort(t)
		s, err := New(Config{
			NodeAddress:   bootstrapAddr,
			BootstrapNode: bootstrapAddr,
		}, set)
		require.NoError(t, err)
		s.AddPeer(ln.Addr().String())

		tx, err := set.Chain().NewTransfer(miner, receiver.Address(), 4, set)
		require.NoError(t, err)

		require.NoError(t, s.handleTx(t.Context(), encodeTx(t, "127.0.0.1:9999", tx)))

		select {
		case raw := <-captured:
			command, payload, err := splitMessage(raw)
			require.NoError(t, err)
			assert.Equal(t, cmdInv, command)

			var msg invMsg
			require.NoError(t, decodePayload(payload, &msg))
			assert.Equal(t, kindTx, msg.Kind)
			assert.Equal(t, []string{tx.ID}, msg.Items)
		case <-time.After(5 * time.Second):
			t.Fatal("bootstrap did not relay the transaction inventory")
		}
	})
}

func TestServer_SendData(t *testing.T) {
	t.Run("evicts a peer after three failed sends", func(t *testing.T) {
		_, set := newMinerLedger(t)

		s, err := New(Config{NodeAddress: "127.0.0.1:8334"}, set)
		require.NoError(t, err)

		dead := freePort(t) // reserved and released, nothing listens there
		s.AddPeer(dead)

		for i := 0; i < failureThreshold; i++ {
			assert.Error(t, s.sendVersion(t.Context(), dead))
		}

		assert.Empty(t, s.KnownPeers(), "Three consecutive failures evict the peer")
	})

	t.Run("never dials itself", func(t *testing.T) {
		_, set := newMinerLedger(t)

		s, err := New(Config{NodeAddress: "127.0.0.1:8334"}, set)
		require.NoError(t, err)

		assert.NoError(t, s.sendData(t.Context(), "127.0.0.1:8334", []byte("ignored")))
	})
}

func TestServer_Sync(t *testing.T) {
	t.Run("a fresh node catches up to a taller peer", func(t *testing.T) {
		miner, minerSet := newMinerLedger(t)

		// Give the miner's chain a block beyond genesis.
		cbtx, err := chain.NewCoinbaseTX(miner.Address(), "")
		require.NoError(t, err)
		mined, err := minerSet.Chain().MineBlock([]*chain.Transaction{cbtx})
		require.NoError(t, err)
		require.NoError(t, minerSet.Reindex())

		minerAddr := freePort(t)
		followerAddr := freePort(t)

		minerSrv, err := New(Config{
			NodeAddress:    minerAddr,
			GossipInterval: time.Hour,
		}, minerSet)
		require.NoError(t, err)

		followerStore := newFakeBlockStore()
		followerChain, err := chain.Open(followerStore)
		require.NoError(t, err)
		followerSet := utxo.NewSet(newFakeOutputStore(), followerChain)
		require.NoError(t, followerSet.Reindex())

		followerSrv, err := New(Config{
			NodeAddress:    followerAddr,
			BootstrapNode:  minerAddr,
			GossipInterval: 100 * time.Millisecond,
		}, followerSet)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		go func() { _ = minerSrv.Start(ctx) }()
		go func() { _ = followerSrv.Start(ctx) }()

		require.Eventually(t, func() bool {
			height, err := followerChain.BestHeight()
			return err == nil && height == mined.Height
		}, 10*time.Second, 100*time.Millisecond, "follower should adopt the taller chain")

		adopted, err := followerChain.GetBlock(mined.Hash)
		require.NoError(t, err)
		assert.Equal(t, mined.Hash, adopted.Hash)

		assert.Eventually(t, func() bool {
			for _, peer := range minerSrv.KnownPeers() {
				if peer.Address == followerAddr {
					return true
				}
			}
			return false
		}, 10*time.Second, 100*time.Millisecond, "miner should learn the follower's address from its version message")
	})
}
