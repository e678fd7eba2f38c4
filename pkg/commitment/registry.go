// Package commitment implements a two-phase commit/reveal protocol. A
// committer deposits a stake against an opaque key derived from the intended
// transfer; revealing the preimage executes the transfer. Observers who see
// only the key cannot derive a valid reveal, which is the front-running
// deterrent.
package commitment

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

const component = "commitment"

// Key is the Keccak-256 commitment key.
type Key [32]byte

// String returns the key as a hex string.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ComputeKey derives the commitment key from the reveal parameters:
// Keccak-256(secret || to || amount big-endian 8 bytes). A different
// (secret, to, amount) triple yields a different key.
func ComputeKey(secret [32]byte, to guard.Address, amount int64) Key {
	h := sha3.NewLegacyKeccak256()
	h.Write(secret[:])
	h.Write([]byte(to))
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], uint64(amount))
	h.Write(amt[:])

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Commitment is one committed intent. Revealed is one-way.
type Commitment struct {
	Key         Key           `json:"key"`
	Committer   guard.Address `json:"committer"`
	Stake       int64         `json:"stake"`
	Revealed    bool          `json:"revealed"`
	CommittedAt int64         `json:"committed_at"`
}

// Registry maps keys to commitments.
type Registry struct {
	clock   guard.Clock
	sink    guard.TransferSink
	journal journal.Journal

	mu          sync.RWMutex
	commitments map[Key]Commitment
	keys        *guard.KeyedLock
}

// NewRegistry creates a commitment registry. A nil clock defaults to the
// wall clock; a nil journal discards events.
func NewRegistry(clock guard.Clock, sink guard.TransferSink, j journal.Journal) *Registry {
	if clock == nil {
		clock = guard.WallClock{}
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Registry{
		clock:       clock,
		sink:        sink,
		journal:     j,
		commitments: make(map[Key]Commitment),
		keys:        guard.NewKeyedLock(),
	}
}

// Commit stores a commitment under key with the caller's stake. The key is
// unique while unrevealed; committing over a revealed key starts a fresh
// commitment (the journal keeps the superseded record's history).
func (r *Registry) Commit(caller guard.Address, key Key, stake int64) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: null committer address", guard.ErrInvalidArgument)
	}
	if stake <= 0 {
		return fmt.Errorf("%w: non-positive stake %d", guard.ErrInvalidArgument, stake)
	}

	release := r.keys.Acquire(key.String())
	defer release()

	r.mu.Lock()
	if existing, ok := r.commitments[key]; ok && !existing.Revealed {
		r.mu.Unlock()
		return fmt.Errorf("%w: key %s", guard.ErrAlreadyCommitted, key)
	}
	now := r.clock.Now().Unix()
	r.commitments[key] = Commitment{
		Key:         key,
		Committer:   caller,
		Stake:       stake,
		CommittedAt: now,
	}
	r.mu.Unlock()

	_ = r.journal.Record(journal.NewEvent(component, "commit", key.String(), string(caller), stake, stake, r.clock.Now()))
	return nil
}

// Reveal recomputes the key from the preimage and executes the committed
// transfer, sending min(amount, stake) to the recipient. Single-use: the
// revealed flag is staged before the transfer and committed only if the
// sink succeeds. A wrong (secret, to, amount) triple derives a different
// key and fails as not found.
func (r *Registry) Reveal(ctx context.Context, caller guard.Address, secret [32]byte, to guard.Address, amount int64) (int64, error) {
	if to.IsZero() {
		return 0, fmt.Errorf("%w: null recipient address", guard.ErrInvalidArgument)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}

	key := ComputeKey(secret, to, amount)
	release := r.keys.Acquire(key.String())
	defer release()

	r.mu.RLock()
	c, ok := r.commitments[key]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: commitment %s", guard.ErrNotFound, key)
	}
	if caller != c.Committer {
		return 0, fmt.Errorf("%w: only the committer may reveal", guard.ErrUnauthorized)
	}
	if c.Revealed {
		return 0, fmt.Errorf("%w: key %s", guard.ErrAlreadyRevealed, key)
	}

	// The payout silently caps at the stake when the revealed intent
	// exceeds the original deposit.
	pay := amount
	if c.Stake < pay {
		pay = c.Stake
	}

	staged := c
	staged.Revealed = true

	if err := guard.Transfer(ctx, r.sink, to, pay); err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.commitments[key] = staged
	r.mu.Unlock()

	_ = r.journal.Record(journal.NewEvent(component, "reveal", key.String(), string(caller), pay, staged.Stake-pay, r.clock.Now()))
	return pay, nil
}

// Get returns a copy of the commitment stored under key.
func (r *Registry) Get(key Key) (Commitment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commitments[key]
	return c, ok
}
