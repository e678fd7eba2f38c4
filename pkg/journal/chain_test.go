package journal_test

import (
	"testing"
	"time"

	"github.com/Mindburn-Labs/mandate/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventAt(op, key string, amount, balance int64, at int64) journal.Event {
	return journal.NewEvent("allowance", op, key, "agent-1", amount, balance, time.Unix(at, 0))
}

func TestChainAppendsAndVerifies(t *testing.T) {
	chain := journal.NewChain()
	assert.Equal(t, "genesis", chain.Head())

	require.NoError(t, chain.Record(eventAt("set", "agent-1", 100, 100, 1000)))
	require.NoError(t, chain.Record(eventAt("spend", "agent-1", 40, 60, 1010)))

	assert.Equal(t, 2, chain.Length())

	first, err := chain.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, "genesis", first.PrevHash)

	second, err := chain.Get(2)
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash, second.PrevHash)
	assert.Equal(t, second.ContentHash, chain.Head())

	ok, detail := chain.Verify()
	assert.True(t, ok, detail)
}

func TestChainGetOutOfRange(t *testing.T) {
	chain := journal.NewChain()

	_, err := chain.Get(0)
	require.Error(t, err)
	_, err = chain.Get(1)
	require.Error(t, err)
}

func TestChainByKey(t *testing.T) {
	chain := journal.NewChain()
	require.NoError(t, chain.Record(eventAt("set", "agent-1", 100, 100, 1000)))
	require.NoError(t, chain.Record(eventAt("set", "agent-2", 50, 50, 1001)))
	require.NoError(t, chain.Record(eventAt("spend", "agent-1", 10, 90, 1002)))

	entries := chain.ByKey("agent-1")
	require.Len(t, entries, 2)
	assert.Equal(t, "set", entries[0].Event.Op)
	assert.Equal(t, "spend", entries[1].Event.Op)

	assert.Empty(t, chain.ByKey("agent-3"))
}

func TestMultiJournalFansOut(t *testing.T) {
	a := journal.NewChain()
	b := journal.NewChain()
	multi := journal.MultiJournal{a, b, journal.Nop{}}

	require.NoError(t, multi.Record(eventAt("set", "agent-1", 100, 100, 1000)))
	assert.Equal(t, 1, a.Length())
	assert.Equal(t, 1, b.Length())
}

func TestEventIDsAreUnique(t *testing.T) {
	first := eventAt("set", "agent-1", 1, 1, 0)
	second := eventAt("set", "agent-1", 1, 1, 0)
	assert.NotEqual(t, first.ID, second.ID)
}
