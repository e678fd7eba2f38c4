// Package stream implements continuous, time-accrued payouts. A stream
// accrues ratePerSecond for its recipient up to a lifetime cap; the
// recipient withdraws whatever has accrued since the last withdrawal.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

const component = "stream"

// Stream is one payout stream. TotalSent never exceeds Cap and never
// decreases; LastWithdrawAt never decreases.
type Stream struct {
	ID             uint64        `json:"id"`
	Recipient      guard.Address `json:"recipient"`
	StartedAt      int64         `json:"started_at"`
	LastWithdrawAt int64         `json:"last_withdraw_at"`
	RatePerSecond  int64         `json:"rate_per_second"`
	Cap            int64         `json:"cap"`
	TotalSent      int64         `json:"total_sent"`
}

// Account owns all streams. Stream ids are assigned sequentially from 1.
type Account struct {
	owner   guard.Address
	clock   guard.Clock
	sink    guard.TransferSink
	journal journal.Journal

	mu      sync.RWMutex
	streams map[uint64]Stream
	nextID  uint64
	keys    *guard.KeyedLock
}

// NewAccount creates a stream account. A nil clock defaults to the wall
// clock; a nil journal discards events.
func NewAccount(owner guard.Address, clock guard.Clock, sink guard.TransferSink, j journal.Journal) *Account {
	if clock == nil {
		clock = guard.WallClock{}
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Account{
		owner:   owner,
		clock:   clock,
		sink:    sink,
		journal: j,
		streams: make(map[uint64]Stream),
		nextID:  1,
		keys:    guard.NewKeyedLock(),
	}
}

// CreateStream opens a new stream for recipient. Owner-only.
func (a *Account) CreateStream(caller, recipient guard.Address, ratePerSecond, cap int64) (uint64, error) {
	if caller != a.owner {
		return 0, fmt.Errorf("%w: only the owner may create streams", guard.ErrUnauthorized)
	}
	if recipient.IsZero() {
		return 0, fmt.Errorf("%w: null recipient address", guard.ErrInvalidArgument)
	}
	if ratePerSecond <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate %d", guard.ErrInvalidArgument, ratePerSecond)
	}
	if cap <= 0 {
		return 0, fmt.Errorf("%w: non-positive cap %d", guard.ErrInvalidArgument, cap)
	}

	now := a.clock.Now().Unix()

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.streams[id] = Stream{
		ID:             id,
		Recipient:      recipient,
		StartedAt:      now,
		LastWithdrawAt: now,
		RatePerSecond:  ratePerSecond,
		Cap:            cap,
	}
	a.mu.Unlock()

	_ = a.journal.Record(journal.NewEvent(component, "create", strconv.FormatUint(id, 10), string(caller), 0, cap, a.clock.Now()))
	return id, nil
}

// Withdrawable returns the amount the stream has accrued and not yet paid
// out. Pure query: unknown ids yield 0. Integer arithmetic truncates; no
// fractional seconds accrue.
func (a *Account) Withdrawable(id uint64) int64 {
	a.mu.RLock()
	s, ok := a.streams[id]
	a.mu.RUnlock()
	if !ok {
		return 0
	}
	return accrued(s, a.clock.Now().Unix())
}

func accrued(s Stream, now int64) int64 {
	elapsed := now - s.LastWithdrawAt
	if elapsed <= 0 {
		return 0
	}
	remainingCap := s.Cap - s.TotalSent
	earned := elapsed * s.RatePerSecond
	if earned/elapsed != s.RatePerSecond || earned > remainingCap {
		// Overflow clamps to the cap, which bounds every payout anyway.
		earned = remainingCap
	}
	return earned
}

// Withdraw pays out everything accrued to the stream's recipient.
// Recipient-only. The accrual bookkeeping is staged before the transfer and
// committed only if the sink succeeds.
func (a *Account) Withdraw(ctx context.Context, caller guard.Address, id uint64) (int64, error) {
	key := strconv.FormatUint(id, 10)
	release := a.keys.Acquire(key)
	defer release()

	a.mu.RLock()
	s, ok := a.streams[id]
	a.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: stream %d", guard.ErrNotFound, id)
	}
	if caller != s.Recipient {
		return 0, fmt.Errorf("%w: only the stream recipient may withdraw", guard.ErrUnauthorized)
	}

	now := a.clock.Now().Unix()
	amt := accrued(s, now)
	if amt == 0 {
		return 0, fmt.Errorf("%w: stream %d", guard.ErrNothingToWithdraw, id)
	}

	staged := s
	staged.LastWithdrawAt = now
	staged.TotalSent += amt

	if err := guard.Transfer(ctx, a.sink, s.Recipient, amt); err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.streams[id] = staged
	a.mu.Unlock()

	_ = a.journal.Record(journal.NewEvent(component, "withdraw", key, string(caller), amt, staged.Cap-staged.TotalSent, a.clock.Now()))
	return amt, nil
}

// Get returns a copy of the stream record.
func (a *Account) Get(id uint64) (Stream, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.streams[id]
	return s, ok
}
