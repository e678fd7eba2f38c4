// Package timelock implements deposits that can only be withdrawn after a
// fixed unlock time, exactly once.
package timelock

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

const component = "timelock"

// Lock is one time-locked deposit. Withdrawn is one-way.
type Lock struct {
	ID        uint64 `json:"id"`
	Amount    int64  `json:"amount"`
	UnlockAt  int64  `json:"unlock_at"`
	Withdrawn bool   `json:"withdrawn"`
}

// Vault owns all locks. Lock ids are assigned sequentially from 1.
type Vault struct {
	owner   guard.Address
	clock   guard.Clock
	sink    guard.TransferSink
	journal journal.Journal

	mu     sync.RWMutex
	locks  map[uint64]Lock
	nextID uint64
	keys   *guard.KeyedLock
}

// NewVault creates a time-lock vault. A nil clock defaults to the wall
// clock; a nil journal discards events.
func NewVault(owner guard.Address, clock guard.Clock, sink guard.TransferSink, j journal.Journal) *Vault {
	if clock == nil {
		clock = guard.WallClock{}
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Vault{
		owner:   owner,
		clock:   clock,
		sink:    sink,
		journal: j,
		locks:   make(map[uint64]Lock),
		nextID:  1,
		keys:    guard.NewKeyedLock(),
	}
}

// CreateLock deposits amount until unlockAt. Owner-only; unlockAt must be
// in the future.
func (v *Vault) CreateLock(caller guard.Address, amount, unlockAt int64) (uint64, error) {
	if caller != v.owner {
		return 0, fmt.Errorf("%w: only the owner may create locks", guard.ErrUnauthorized)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}
	now := v.clock.Now().Unix()
	if unlockAt <= now {
		return 0, fmt.Errorf("%w: unlock time %d is not in the future", guard.ErrInvalidArgument, unlockAt)
	}

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.locks[id] = Lock{ID: id, Amount: amount, UnlockAt: unlockAt}
	v.mu.Unlock()

	_ = v.journal.Record(journal.NewEvent(component, "create", strconv.FormatUint(id, 10), string(caller), amount, amount, v.clock.Now()))
	return id, nil
}

// IsUnlocked reports whether the lock holds funds and has passed its unlock
// time without being withdrawn. Pure query.
func (v *Vault) IsUnlocked(id uint64) bool {
	v.mu.RLock()
	l, ok := v.locks[id]
	v.mu.RUnlock()
	if !ok {
		return false
	}
	return l.Amount > 0 && v.clock.Now().Unix() >= l.UnlockAt && !l.Withdrawn
}

// Withdraw releases the deposit to the given recipient. Owner-only, once,
// and only after the unlock time. The withdrawn flag is staged before the
// transfer and committed only if the sink succeeds.
func (v *Vault) Withdraw(ctx context.Context, caller guard.Address, id uint64, to guard.Address) error {
	if caller != v.owner {
		return fmt.Errorf("%w: only the owner may withdraw", guard.ErrUnauthorized)
	}
	if to.IsZero() {
		return fmt.Errorf("%w: null recipient address", guard.ErrInvalidArgument)
	}

	key := strconv.FormatUint(id, 10)
	release := v.keys.Acquire(key)
	defer release()

	v.mu.RLock()
	l, ok := v.locks[id]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: lock %d", guard.ErrNotFound, id)
	}
	if l.Withdrawn {
		return fmt.Errorf("%w: lock %d", guard.ErrAlreadyWithdrawn, id)
	}
	now := v.clock.Now().Unix()
	if now < l.UnlockAt {
		return fmt.Errorf("%w: lock %d unlocks at %d", guard.ErrTooEarly, id, l.UnlockAt)
	}

	staged := l
	staged.Withdrawn = true

	if err := guard.Transfer(ctx, v.sink, to, l.Amount); err != nil {
		return err
	}

	v.mu.Lock()
	v.locks[id] = staged
	v.mu.Unlock()

	_ = v.journal.Record(journal.NewEvent(component, "withdraw", key, string(caller), l.Amount, 0, v.clock.Now()))
	return nil
}

// Get returns a copy of the lock record.
func (v *Vault) Get(id uint64) (Lock, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	l, ok := v.locks[id]
	return l, ok
}
