package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeerDirectory_Add(t *testing.T) {
	t.Run("registers seeds and added peers", func(t *testing.T) {
		d := newPeerDirectory("127.0.0.1:8335")
		d.Add("127.0.0.1:9000")

		assert.True(t, d.Known("127.0.0.1:8335"))
		assert.True(t, d.Known("127.0.0.1:9000"))
		assert.False(t, d.Known("127.0.0.1:9999"))
	})

	t.Run("re-adding resets the failure counter", func(t *testing.T) {
		d := newPeerDirectory()
		d.Add("127.0.0.1:9000")
		d.RecordFailure("127.0.0.1:9000")
		d.RecordFailure("127.0.0.1:9000")

		d.Add("127.0.0.1:9000")

		nodes := d.Snapshot()
		assert.Equal(t, []KnownNode{{Address: "127.0.0.1:9000", Failures: 0}}, nodes)
	})
}

func TestPeerDirectory_Addresses(t *testing.T) {
	t.Run("returns addresses in ascending order", func(t *testing.T) {
		d := newPeerDirectory()
		d.Add("127.0.0.1:9002")
		d.Add("127.0.0.1:9000")
		d.Add("127.0.0.1:9001")

		assert.Equal(t, []string{"127.0.0.1:9000", "127.0.0.1:9001", "127.0.0.1:9002"}, d.Addresses())
	})
}

func TestPeerDirectory_RecordFailure(t *testing.T) {
	t.Run("evicts after three consecutive failures", func(t *testing.T) {
		d := newPeerDirectory("127.0.0.1:9000")

		assert.False(t, d.RecordFailure("127.0.0.1:9000"))
		assert.False(t, d.RecordFailure("127.0.0.1:9000"))
		assert.True(t, d.RecordFailure("127.0.0.1:9000"), "Third strike evicts")
		assert.False(t, d.Known("127.0.0.1:9000"))
	})

	t.Run("a success resets the count", func(t *testing.T) {
		d := newPeerDirectory("127.0.0.1:9000")

		d.RecordFailure("127.0.0.1:9000")
		d.RecordFailure("127.0.0.1:9000")
		d.RecordSuccess("127.0.0.1:9000")
		d.RecordFailure("127.0.0.1:9000")
		d.RecordFailure("127.0.0.1:9000")

		assert.True(t, d.Known("127.0.0.1:9000"), "Reset counter means the peer survives two more failures")
	})

	t.Run("ignores unknown peers", func(t *testing.T) {
		d := newPeerDirectory()
		assert.False(t, d.RecordFailure("127.0.0.1:9000"))
	})
}

func TestMempool(t *testing.T) {
	t.Run("stores and removes transactions by id", func(t *testing.T) {
		m := newMempool()
		assert.Zero(t, m.Len())

		m.Add(testTx("aa"))
		m.Add(testTx("bb"))
		assert.Equal(t, 2, m.Len())

		tx, ok := m.Get("aa")
		assert.True(t, ok)
		assert.Equal(t, "aa", tx.ID)

		m.Remove("aa")
		_, ok = m.Get("aa")
		assert.False(t, ok)
		assert.Len(t, m.All(), 1)
	})
}
