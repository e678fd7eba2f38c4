package ratelimit

import (
	"context"
	"sync"
)

// Window atomically applies the roll-then-spend decision for one agent's
// rolling window. Implementations persist state only for allowed spends, so
// a rejected action never advances the window.
type Window interface {
	// Take rolls the window forward if it has expired, then records amount
	// if it fits under maxAmount. It reports whether the spend was allowed
	// and the remaining window budget.
	Take(ctx context.Context, agent string, maxAmount, windowSeconds, amount, now int64) (bool, int64, error)

	// State returns the agent's persisted window state; ok is false when
	// the agent has no window yet.
	State(ctx context.Context, agent string) (startedAt, spent int64, ok bool, err error)
}

type windowState struct {
	startedAt int64
	spent     int64
}

// MemoryWindow is the in-process Window and the default for a Limiter.
type MemoryWindow struct {
	mu    sync.Mutex
	state map[string]windowState
}

// NewMemoryWindow creates an empty in-process window store.
func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{state: make(map[string]windowState)}
}

func (w *MemoryWindow) Take(ctx context.Context, agent string, maxAmount, windowSeconds, amount, now int64) (bool, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.state[agent]
	if !ok || now >= st.startedAt+windowSeconds {
		st = windowState{startedAt: now}
	}
	if amount > maxAmount-st.spent {
		return false, maxAmount - st.spent, nil
	}
	st.spent += amount
	w.state[agent] = st
	return true, maxAmount - st.spent, nil
}

func (w *MemoryWindow) State(ctx context.Context, agent string) (int64, int64, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.state[agent]
	return st.startedAt, st.spent, ok, nil
}
