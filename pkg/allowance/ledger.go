// Package allowance implements a per-agent spending allowance with expiry.
// The owner grants an agent a budget that decrements atomically on each
// spend and becomes unusable once the expiry passes.
package allowance

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

const component = "allowance"

// Record is one agent's allowance. A zero Record (no grant) is expired.
type Record struct {
	Agent     guard.Address `json:"agent"`
	Remaining int64         `json:"remaining"`
	ExpiresAt int64         `json:"expires_at"` // unix seconds
}

// Ledger maps agents to allowances. Records are never deleted; Revoke
// zeroes a record but keeps it queryable.
type Ledger struct {
	owner   guard.Address
	clock   guard.Clock
	sink    guard.TransferSink
	journal journal.Journal

	mu      sync.RWMutex
	records map[guard.Address]Record
	keys    *guard.KeyedLock
}

// NewLedger creates an allowance ledger. A nil clock defaults to the wall
// clock; a nil journal discards events.
func NewLedger(owner guard.Address, clock guard.Clock, sink guard.TransferSink, j journal.Journal) *Ledger {
	if clock == nil {
		clock = guard.WallClock{}
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Ledger{
		owner:   owner,
		clock:   clock,
		sink:    sink,
		journal: j,
		records: make(map[guard.Address]Record),
		keys:    guard.NewKeyedLock(),
	}
}

// SetAllowance grants or overwrites an agent's allowance. Owner-only.
// The expiry must be in the future; the previous remaining value is
// overwritten unconditionally, so this doubles as top-up and reduction.
func (l *Ledger) SetAllowance(caller, agent guard.Address, amount, expiresAt int64) error {
	if caller != l.owner {
		return fmt.Errorf("%w: only the owner may set allowances", guard.ErrUnauthorized)
	}
	if agent.IsZero() {
		return fmt.Errorf("%w: null agent address", guard.ErrInvalidArgument)
	}
	if amount < 0 {
		return fmt.Errorf("%w: negative amount %d", guard.ErrInvalidArgument, amount)
	}
	now := l.clock.Now().Unix()
	if expiresAt <= now {
		return fmt.Errorf("%w: expiry %d is not in the future", guard.ErrInvalidArgument, expiresAt)
	}

	release := l.keys.Acquire(string(agent))
	defer release()

	l.mu.Lock()
	l.records[agent] = Record{Agent: agent, Remaining: amount, ExpiresAt: expiresAt}
	l.mu.Unlock()

	_ = l.journal.Record(journal.NewEvent(component, "set", string(agent), string(caller), amount, amount, l.clock.Now()))
	return nil
}

// Revoke zeroes an agent's allowance and expiry. Owner-only.
func (l *Ledger) Revoke(caller, agent guard.Address) error {
	if caller != l.owner {
		return fmt.Errorf("%w: only the owner may revoke allowances", guard.ErrUnauthorized)
	}

	release := l.keys.Acquire(string(agent))
	defer release()

	l.mu.Lock()
	l.records[agent] = Record{Agent: agent}
	l.mu.Unlock()

	_ = l.journal.Record(journal.NewEvent(component, "revoke", string(agent), string(caller), 0, 0, l.clock.Now()))
	return nil
}

// Spend transfers amount from the caller's allowance to the recipient. The
// decrement is staged before the transfer and committed only if the sink
// succeeds; a sink failure leaves the allowance untouched.
func (l *Ledger) Spend(ctx context.Context, caller, to guard.Address, amount int64) error {
	if to.IsZero() {
		return fmt.Errorf("%w: null recipient address", guard.ErrInvalidArgument)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}

	release := l.keys.Acquire(string(caller))
	defer release()

	l.mu.RLock()
	rec := l.records[caller] // zero record when absent: expired with zero remaining
	l.mu.RUnlock()

	now := l.clock.Now().Unix()
	if now > rec.ExpiresAt {
		return fmt.Errorf("%w: allowance for %s expired at %d", guard.ErrExpired, caller, rec.ExpiresAt)
	}
	if amount > rec.Remaining {
		return fmt.Errorf("%w: %d requested, %d remaining", guard.ErrInsufficientAllowance, amount, rec.Remaining)
	}

	staged := rec
	staged.Remaining -= amount

	if err := guard.Transfer(ctx, l.sink, to, amount); err != nil {
		return err
	}

	l.mu.Lock()
	l.records[caller] = staged
	l.mu.Unlock()

	_ = l.journal.Record(journal.NewEvent(component, "spend", string(caller), string(caller), amount, staged.Remaining, l.clock.Now()))
	return nil
}

// Allowance returns the agent's remaining allowance, 0 when none is set.
func (l *Ledger) Allowance(agent guard.Address) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[agent].Remaining
}

// Expiry returns the agent's allowance expiry, 0 when none is set.
func (l *Ledger) Expiry(agent guard.Address) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[agent].ExpiresAt
}
