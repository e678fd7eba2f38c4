package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"
)

// Entry is an immutable, hash-chained journal entry.
type Entry struct {
	Sequence    uint64 `json:"sequence"`
	Event       Event  `json:"event"`
	ContentHash string `json:"content_hash"`
	PrevHash    string `json:"prev_hash"`
}

// Chain is an in-memory append-only journal. Each entry carries a sha256
// hash over the JCS-canonicalized entry body chained to its predecessor,
// so tampering with history is detectable via Verify.
type Chain struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
}

// NewChain creates an empty hash-chained journal.
func NewChain() *Chain {
	return &Chain{
		entries:  make([]Entry, 0),
		headHash: "genesis",
	}
}

func hashEntry(seq uint64, ev Event, prevHash string) (string, error) {
	body := struct {
		Seq  uint64 `json:"seq"`
		Ev   Event  `json:"event"`
		Prev string `json:"prev"`
	}{seq, ev, prevHash}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Record appends the event to the chain.
func (c *Chain) Record(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := uint64(len(c.entries)) + 1
	contentHash, err := hashEntry(seq, ev, c.headHash)
	if err != nil {
		return err
	}

	c.entries = append(c.entries, Entry{
		Sequence:    seq,
		Event:       ev,
		ContentHash: contentHash,
		PrevHash:    c.headHash,
	})
	c.headHash = contentHash
	return nil
}

// Get retrieves an entry by sequence number.
func (c *Chain) Get(seq uint64) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if seq == 0 || seq > uint64(len(c.entries)) {
		return Entry{}, fmt.Errorf("entry %d not found", seq)
	}
	return c.entries[seq-1], nil
}

// ByKey returns all entries for a given record key, oldest first.
func (c *Chain) ByKey(key string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entry
	for _, e := range c.entries {
		if e.Event.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current head hash.
func (c *Chain) Head() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headHash
}

// Length returns the number of entries.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Verify checks the integrity of the whole chain.
func (c *Chain) Verify() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range c.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := hashEntry(entry.Sequence, entry.Event, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to rehash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}
