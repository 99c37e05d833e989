package node

import (
	"sort"
	"sync"
)

// failureThreshold is the number of consecutive failed connection attempts
// after which a peer is evicted from the directory.
const failureThreshold = 3

// KnownNode is a snapshot of one directory entry: a peer address and its
// current consecutive-failure count.
type KnownNode struct {
	Address  string
	Failures int
}

// peerDirectory tracks known peers and their liveness. Liveness is only
// updated as a side effect of attempted sends; peers are never probed
// proactively.
type peerDirectory struct {
	mu    sync.RWMutex
	peers map[string]int // address -> consecutive failures
}

func newPeerDirectory(seeds ...string) *peerDirectory {
	peers := make(map[string]int, len(seeds))
	for _, addr := range seeds {
		peers[addr] = 0
	}

	return &peerDirectory{peers: peers}
}

// Add registers a peer with a clean failure counter. Re-adding a known peer
// resets its counter.
func (d *peerDirectory) Add(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.peers[addr] = 0
}

// Known reports whether the address is in the directory.
func (d *peerDirectory) Known(addr string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.peers[addr]
	return ok
}

// Addresses returns every known peer address in ascending order.
func (d *peerDirectory) Addresses() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	addrs := make([]string, 0, len(d.peers))
	for addr := range d.peers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	return addrs
}

// Snapshot returns a copy of the directory for inspection.
func (d *peerDirectory) Snapshot() []KnownNode {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := make([]KnownNode, 0, len(d.peers))
	for addr, failures := range d.peers {
		nodes = append(nodes, KnownNode{Address: addr, Failures: failures})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Address < nodes[j].Address })

	return nodes
}

// RecordSuccess resets the failure counter of a known peer.
func (d *peerDirectory) RecordSuccess(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.peers[addr]; ok {
		d.peers[addr] = 0
	}
}

// RecordFailure increments the failure counter of a known peer and evicts it
// once the counter reaches the threshold. It reports whether the peer was
// evicted.
func (d *peerDirectory) RecordFailure(addr string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	failures, ok := d.peers[addr]
	if !ok {
		return false
	}

	failures++
	if failures >= failureThreshold {
		delete(d.peers, addr)
		return true
	}

	d.peers[addr] = failures
	return false
}
