// Package journal records one structured event per successful mutating
// operation. The journal is an observability side channel: a Nop journal is
// valid, and a journal failure never fails the operation that produced the
// event.
package journal

import (
	"time"

	"github.com/google/uuid"
)

// Event is the append-only record of a successful mutating operation.
type Event struct {
	ID        string    `json:"id"`
	Component string    `json:"component"` // e.g. "allowance", "escrow"
	Op        string    `json:"op"`        // e.g. "spend", "release"
	Key       string    `json:"key"`       // record id or agent address
	Caller    string    `json:"caller"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"` // resulting balance/remaining value
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an Event with a fresh id.
func NewEvent(component, op, key, caller string, amount, balance int64, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Component: component,
		Op:        op,
		Key:       key,
		Caller:    caller,
		Amount:    amount,
		Balance:   balance,
		Timestamp: at,
	}
}

// Journal is an append-only event sink.
type Journal interface {
	Record(ev Event) error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Record(Event) error { return nil }

// MultiJournal fans an event out to several journals. Errors from individual
// journals are dropped; the journal is not on the correctness path.
type MultiJournal []Journal

func (m MultiJournal) Record(ev Event) error {
	for _, j := range m {
		_ = j.Record(ev)
	}
	return nil
}
