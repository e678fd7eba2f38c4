// Package ratelimit caps an agent's cumulative spend inside a rolling time
// window. The limiter only gates; the underlying transfer is performed by
// the caller's own logic after a successful ExecuteAction. Window state
// lives behind the Window interface, in process by default or in Redis when
// several processes gate the same agent.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

const component = "ratelimit"

// Limit is one agent's ceiling plus its current window state. SpentInWindow
// never exceeds MaxAmount within [WindowStartedAt, WindowStartedAt+
// WindowSeconds); the window rolls forward exactly once per expiry
// observation.
type Limit struct {
	Agent           guard.Address `json:"agent"`
	MaxAmount       int64         `json:"max_amount"`
	WindowSeconds   int64         `json:"window_seconds"`
	WindowStartedAt int64         `json:"window_started_at"`
	SpentInWindow   int64         `json:"spent_in_window"`
}

func (l Limit) expired(now int64) bool {
	return now >= l.WindowStartedAt+l.WindowSeconds
}

// Limiter maps agents to window limits. It has no transfer side effect.
type Limiter struct {
	owner   guard.Address
	clock   guard.Clock
	journal journal.Journal
	window  Window

	mu     sync.RWMutex
	limits map[guard.Address]Limit
	keys   *guard.KeyedLock
}

// NewLimiter creates a rate-window limiter backed by an in-process window.
// A nil clock defaults to the wall clock; a nil journal discards events.
func NewLimiter(owner guard.Address, clock guard.Clock, j journal.Journal) *Limiter {
	return NewLimiterWithWindow(owner, clock, nil, j)
}

// NewLimiterWithWindow creates a limiter on an explicit window store, e.g. a
// RedisWindow shared by several processes. A nil window falls back to an
// in-process one.
func NewLimiterWithWindow(owner guard.Address, clock guard.Clock, w Window, j journal.Journal) *Limiter {
	if clock == nil {
		clock = guard.WallClock{}
	}
	if w == nil {
		w = NewMemoryWindow()
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Limiter{
		owner:   owner,
		clock:   clock,
		journal: j,
		window:  w,
		limits:  make(map[guard.Address]Limit),
		keys:    guard.NewKeyedLock(),
	}
}

// SetRateLimit configures the agent's ceiling and window size. Owner-only.
// The first call starts the window at now; later calls keep the running
// window unless it has already expired, in which case they roll it forward.
func (l *Limiter) SetRateLimit(caller, agent guard.Address, maxAmount, windowSeconds int64) error {
	if caller != l.owner {
		return fmt.Errorf("%w: only the owner may set rate limits", guard.ErrUnauthorized)
	}
	if agent.IsZero() {
		return fmt.Errorf("%w: null agent address", guard.ErrInvalidArgument)
	}
	if maxAmount <= 0 {
		return fmt.Errorf("%w: non-positive max amount %d", guard.ErrInvalidArgument, maxAmount)
	}
	if windowSeconds <= 0 {
		return fmt.Errorf("%w: non-positive window %d", guard.ErrInvalidArgument, windowSeconds)
	}

	release := l.keys.Acquire(string(agent))
	defer release()

	ctx := context.Background()
	now := l.clock.Now().Unix()

	l.mu.RLock()
	prev, had := l.limits[agent]
	l.mu.RUnlock()

	// A zero-amount take seeds the window on the first call and rolls an
	// expired one, judged under the limits in effect before this call.
	probeMax, probeWindow := maxAmount, windowSeconds
	if had {
		probeMax, probeWindow = prev.MaxAmount, prev.WindowSeconds
	}
	if _, _, err := l.window.Take(ctx, string(agent), probeMax, probeWindow, 0, now); err != nil {
		return fmt.Errorf("window state unavailable: %w", err)
	}

	l.mu.Lock()
	l.limits[agent] = Limit{Agent: agent, MaxAmount: maxAmount, WindowSeconds: windowSeconds}
	l.mu.Unlock()

	_, spent, _, _ := l.window.State(ctx, string(agent))
	_ = l.journal.Record(journal.NewEvent(component, "set", string(agent), string(caller), maxAmount, maxAmount-spent, l.clock.Now()))
	return nil
}

// Remaining returns the spendable amount left in the agent's current
// window: 0 when no limit is set, the full ceiling when the window has
// expired. Pure query.
func (l *Limiter) Remaining(agent guard.Address) int64 {
	lim, ok := l.Get(agent)
	if !ok {
		return 0
	}
	if lim.expired(l.clock.Now().Unix()) {
		return lim.MaxAmount
	}
	return lim.MaxAmount - lim.SpentInWindow
}

// ExecuteAction records amount against the caller's window, rolling the
// window forward first if it has expired. A rejected action leaves the
// window state untouched.
func (l *Limiter) ExecuteAction(caller guard.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}

	release := l.keys.Acquire(string(caller))
	defer release()

	l.mu.RLock()
	lim, ok := l.limits[caller]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: agent %s", guard.ErrNoLimitSet, caller)
	}

	now := l.clock.Now().Unix()
	allowed, remaining, err := l.window.Take(context.Background(), string(caller), lim.MaxAmount, lim.WindowSeconds, amount, now)
	if err != nil {
		return fmt.Errorf("window state unavailable: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %d requested, %d remaining", guard.ErrRateLimitExceeded, amount, remaining)
	}

	_ = l.journal.Record(journal.NewEvent(component, "execute", string(caller), string(caller), amount, remaining, l.clock.Now()))
	return nil
}

// Get returns the agent's limit with its current window state filled in
// from the window store.
func (l *Limiter) Get(agent guard.Address) (Limit, bool) {
	l.mu.RLock()
	lim, ok := l.limits[agent]
	l.mu.RUnlock()
	if !ok {
		return Limit{}, false
	}
	if started, spent, have, err := l.window.State(context.Background(), string(agent)); err == nil && have {
		lim.WindowStartedAt = started
		lim.SpentInWindow = spent
	}
	return lim, true
}
