// Package escrow implements conditional release or cancellation of held
// deposits. Exactly one of release (to the recipient, arbiter-decided) or
// cancel (back to the depositor) ever happens per escrow.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

const component = "escrow"

// ErrConditionNotMet means the escrow's release condition evaluated false.
var ErrConditionNotMet = errors.New("release condition not met")

// Record is one held deposit. Finalized is one-way and shared by release
// and cancel, which makes the two mutually exclusive.
type Record struct {
	ID        uint64        `json:"id"`
	Depositor guard.Address `json:"depositor"`
	Recipient guard.Address `json:"recipient"`
	Amount    int64         `json:"amount"`
	Finalized bool          `json:"finalized"`
	CreatedAt int64         `json:"created_at"`
	Condition string        `json:"condition,omitempty"` // optional CEL release condition
}

// Registry owns all escrows. The registry owner acts as arbiter for
// releases. Escrow ids are assigned sequentially from 1.
type Registry struct {
	arbiter guard.Address
	clock   guard.Clock
	sink    guard.TransferSink
	journal journal.Journal
	policy  *Policy

	mu      sync.RWMutex
	escrows map[uint64]Record
	nextID  uint64
	keys    *guard.KeyedLock
}

// NewRegistry creates an escrow registry with the given arbiter. A nil
// clock defaults to the wall clock; a nil journal discards events.
func NewRegistry(arbiter guard.Address, clock guard.Clock, sink guard.TransferSink, j journal.Journal) (*Registry, error) {
	if clock == nil {
		clock = guard.WallClock{}
	}
	if j == nil {
		j = journal.Nop{}
	}
	policy, err := NewPolicy()
	if err != nil {
		return nil, err
	}
	return &Registry{
		arbiter: arbiter,
		clock:   clock,
		sink:    sink,
		journal: j,
		policy:  policy,
		escrows: make(map[uint64]Record),
		nextID:  1,
		keys:    guard.NewKeyedLock(),
	}, nil
}

// CreateEscrow deposits amount for recipient; the caller becomes the
// depositor and the only party able to cancel.
func (r *Registry) CreateEscrow(caller, recipient guard.Address, amount int64) (uint64, error) {
	if caller.IsZero() {
		return 0, fmt.Errorf("%w: null depositor address", guard.ErrInvalidArgument)
	}
	if recipient.IsZero() {
		return 0, fmt.Errorf("%w: null recipient address", guard.ErrInvalidArgument)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}

	now := r.clock.Now().Unix()

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.escrows[id] = Record{
		ID:        id,
		Depositor: caller,
		Recipient: recipient,
		Amount:    amount,
		CreatedAt: now,
	}
	r.mu.Unlock()

	_ = r.journal.Record(journal.NewEvent(component, "create", strconv.FormatUint(id, 10), string(caller), amount, amount, r.clock.Now()))
	return id, nil
}

// AttachCondition sets a CEL release condition on an open escrow.
// Arbiter-only. The condition sees input.now, input.amount, and
// input.age_seconds, and must evaluate true for Release to proceed.
func (r *Registry) AttachCondition(caller guard.Address, id uint64, expression string) error {
	if caller != r.arbiter {
		return fmt.Errorf("%w: only the arbiter may attach conditions", guard.ErrUnauthorized)
	}
	if err := r.policy.Compile(expression); err != nil {
		return fmt.Errorf("%w: %v", guard.ErrInvalidArgument, err)
	}

	key := strconv.FormatUint(id, 10)
	release := r.keys.Acquire(key)
	defer release()

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.escrows[id]
	if !ok {
		return fmt.Errorf("%w: escrow %d", guard.ErrNotFound, id)
	}
	if rec.Finalized {
		return fmt.Errorf("%w: escrow %d", guard.ErrAlreadyFinalized, id)
	}
	rec.Condition = expression
	r.escrows[id] = rec
	return nil
}

// Release pays the deposit to the recipient. Arbiter-only. If a condition
// is attached it must evaluate true. The finalized flag is staged before
// the transfer and committed only if the sink succeeds.
func (r *Registry) Release(ctx context.Context, caller guard.Address, id uint64) error {
	if caller != r.arbiter {
		return fmt.Errorf("%w: only the arbiter may release", guard.ErrUnauthorized)
	}
	return r.finalize(ctx, caller, id, "release", func(rec Record) (guard.Address, error) {
		if rec.Condition == "" {
			return rec.Recipient, nil
		}
		now := r.clock.Now().Unix()
		ok, err := r.policy.Evaluate(rec.Condition, map[string]interface{}{
			"now":         now,
			"amount":      rec.Amount,
			"age_seconds": now - rec.CreatedAt,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrConditionNotMet, err)
		}
		if !ok {
			return "", fmt.Errorf("%w: escrow %d", ErrConditionNotMet, id)
		}
		return rec.Recipient, nil
	})
}

// Cancel refunds the deposit to the depositor. Depositor-only.
func (r *Registry) Cancel(ctx context.Context, caller guard.Address, id uint64) error {
	return r.finalize(ctx, caller, id, "cancel", func(rec Record) (guard.Address, error) {
		if caller != rec.Depositor {
			return "", fmt.Errorf("%w: only the depositor may cancel", guard.ErrUnauthorized)
		}
		return rec.Depositor, nil
	})
}

// finalize runs the shared finalization guard: exactly one of release or
// cancel ever transfers, decided by the one-way finalized flag checked and
// committed within the per-escrow lock.
func (r *Registry) finalize(ctx context.Context, caller guard.Address, id uint64, op string, payee func(Record) (guard.Address, error)) error {
	key := strconv.FormatUint(id, 10)
	release := r.keys.Acquire(key)
	defer release()

	r.mu.RLock()
	rec, ok := r.escrows[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: escrow %d", guard.ErrNotFound, id)
	}
	if rec.Finalized {
		return fmt.Errorf("%w: escrow %d", guard.ErrAlreadyFinalized, id)
	}

	to, err := payee(rec)
	if err != nil {
		return err
	}

	staged := rec
	staged.Finalized = true

	if err := guard.Transfer(ctx, r.sink, to, rec.Amount); err != nil {
		return err
	}

	r.mu.Lock()
	r.escrows[id] = staged
	r.mu.Unlock()

	_ = r.journal.Record(journal.NewEvent(component, op, key, string(caller), rec.Amount, 0, r.clock.Now()))
	return nil
}

// Get returns a copy of the escrow record.
func (r *Registry) Get(id uint64) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.escrows[id]
	return rec, ok
}
