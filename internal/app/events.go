package app

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies facade notifications consumed by a frontend.
type EventKind string

const (
	// EventBalancesUpdated signals that wallet balances may have changed.
	EventBalancesUpdated EventKind = "balances_updated"

	// EventTransactionSent signals a transfer was broadcast or mined.
	EventTransactionSent EventKind = "transaction_sent"

	// EventPeerAdded signals a peer was registered with the node.
	EventPeerAdded EventKind = "peer_added"

	// EventError carries a human-readable failure a frontend should surface.
	EventError EventKind = "error"
)

// Event is one facade notification.
type Event struct {
	ID        string
	Kind      EventKind
	Message   string
	Timestamp time.Time
}

func newEvent(kind EventKind, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}
