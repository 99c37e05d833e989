package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "utxod.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStore_Blocks(t *testing.T) {
	t.Run("tip starts empty", func(t *testing.T) {
		store := newTestStore(t)

		tip, err := store.GetTip()
		require.NoError(t, err)
		assert.Empty(t, tip)
	})

	t.Run("tip round trips", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.SetTip("0000abcd"))

		tip, err := store.GetTip()
		require.NoError(t, err)
		assert.Equal(t, "0000abcd", tip)
	})

	t.Run("blocks round trip", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.PutBlock("0000abcd", []byte("serialized block")))

		data, ok, err := store.GetBlock("0000abcd")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("serialized block"), data)

		_, ok, err = store.GetBlock("missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("data survives a reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "utxod.db")

		store, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, store.PutBlock("0000abcd", []byte("serialized block")))
		require.NoError(t, store.SetTip("0000abcd"))
		require.NoError(t, store.Close())

		reopened, err := Open(path)
		require.NoError(t, err)
		defer reopened.Close()

		tip, err := reopened.GetTip()
		require.NoError(t, err)
		assert.Equal(t, "0000abcd", tip)

		data, ok, err := reopened.GetBlock("0000abcd")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("serialized block"), data)
	})
}

func TestStore_Outputs(t *testing.T) {
	t.Run("entries round trip", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.PutOutputs("aa", []byte("entry a")))

		data, ok, err := store.GetOutputs("aa")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("entry a"), data)

		require.NoError(t, store.DeleteOutputs("aa"))
		_, ok, err = store.GetOutputs("aa")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("foreach visits in ascending txid order", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.PutOutputs("cc", []byte("3")))
		require.NoError(t, store.PutOutputs("aa", []byte("1")))
		require.NoError(t, store.PutOutputs("bb", []byte("2")))

		var visited []string
		err := store.ForEach(func(txid string, data []byte) error {
			visited = append(visited, txid)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"aa", "bb", "cc"}, visited)
	})

	t.Run("foreach propagates the callback error", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.PutOutputs("aa", []byte("1")))

		err := store.ForEach(func(string, []byte) error {
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("reset discards every entry", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.PutOutputs("aa", []byte("1")))
		require.NoError(t, store.Reset())

		var count int
		err := store.ForEach(func(string, []byte) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestStore_Wallets(t *testing.T) {
	t.Run("wallets round trip", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.SaveWallet("addr1", []byte("keypair 1")))
		require.NoError(t, store.SaveWallet("addr2", []byte("keypair 2")))

		wallets, err := store.LoadWallets()
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{
			"addr1": []byte("keypair 1"),
			"addr2": []byte("keypair 2"),
		}, wallets)
	})

	t.Run("delete removes one wallet", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.SaveWallet("addr1", []byte("keypair 1")))
		require.NoError(t, store.DeleteWallet("addr1"))
		require.NoError(t, store.DeleteWallet("never existed"))

		wallets, err := store.LoadWallets()
		require.NoError(t, err)
		assert.Empty(t, wallets)
	})
}
