// Package guard holds the shared pieces of every guarded value transfer:
// the injected clock, the caller identity type, the transfer sink contract,
// and the per-key serialization used by all registries.
//
// The discipline every registry follows is effects-before-interactions:
// validate, stage the state mutation, invoke the sink, and commit the staged
// state only after the sink succeeds. A failed transfer leaves no observable
// mutation behind.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Address identifies a party: the owner, an agent, or a payout recipient.
// The empty string is the null address and is never a valid recipient.
type Address string

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool { return a == "" }

// Clock provides authority time for the registries.
// Inject a fake clock in tests for deterministic accrual and expiry.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// WallClock is the default clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// TransferSink moves value out of the shared custodial account. It is the
// only fallible external effect a registry performs, and is invoked at most
// once per successful operation.
type TransferSink interface {
	Transfer(ctx context.Context, to Address, amount int64) error
}

// SinkFunc adapts a function to the TransferSink interface.
type SinkFunc func(ctx context.Context, to Address, amount int64) error

func (f SinkFunc) Transfer(ctx context.Context, to Address, amount int64) error {
	return f(ctx, to, amount)
}

// Transfer invokes the sink and normalizes any failure to ErrTransferFailed
// so callers see one error class regardless of the sink implementation.
func Transfer(ctx context.Context, sink TransferSink, to Address, amount int64) error {
	if sink == nil {
		return fmt.Errorf("%w: no transfer sink configured", ErrTransferFailed)
	}
	if err := sink.Transfer(ctx, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// KeyedLock serializes mutating operations per record key while letting
// distinct keys proceed in parallel. Locks are retained for the lifetime of
// the owning registry; records are never deleted, so the set is bounded by
// the record count.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLock creates an empty keyed lock set.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*sync.Mutex)}
}

// Acquire takes the exclusive lock for key and returns its release func.
func (k *KeyedLock) Acquire(key string) (release func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
