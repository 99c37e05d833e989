package node

import (
	"sync"

	"github.com/utxod/utxod/internal/chain"
)

// mempool holds transactions received but not yet included in a mined block.
// Entries are removed once mined.
type mempool struct {
	mu  sync.RWMutex
	txs map[string]*chain.Transaction
}

func newMempool() *mempool {
	return &mempool{txs: make(map[string]*chain.Transaction)}
}

func (m *mempool) Add(tx *chain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txs[tx.ID] = tx
}

func (m *mempool) Get(id string) (*chain.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[id]
	return tx, ok
}

func (m *mempool) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.txs, id)
}

func (m *mempool) All() []*chain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := make([]*chain.Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		txs = append(txs, tx)
	}

	return txs
}

func (m *mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.txs)
}
