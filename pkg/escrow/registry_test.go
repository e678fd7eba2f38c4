package escrow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mindburn-Labs/mandate/pkg/escrow"
	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	arbiter   = guard.Address("arbiter")
	depositor = guard.Address("depositor")
	payee     = guard.Address("recipient")
)

type fakeClock struct{ now int64 }

func (c *fakeClock) Now() time.Time     { return time.Unix(c.now, 0) }
func (c *fakeClock) Advance(secs int64) { c.now += secs }

type recordingSink struct {
	to   []guard.Address
	fail error
}

func (s *recordingSink) Transfer(ctx context.Context, to guard.Address, amount int64) error {
	if s.fail != nil {
		return s.fail
	}
	s.to = append(s.to, to)
	return nil
}

func newRegistry(t *testing.T, clock *fakeClock, sink *recordingSink) *escrow.Registry {
	t.Helper()
	reg, err := escrow.NewRegistry(arbiter, clock, sink, nil)
	require.NoError(t, err)
	return reg
}

func TestReleaseAndCancelAreMutuallyExclusive(t *testing.T) {
	sink := &recordingSink{}
	reg := newRegistry(t, &fakeClock{}, sink)

	id, err := reg.CreateEscrow(depositor, payee, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	err = reg.Cancel(context.Background(), payee, id)
	require.ErrorIs(t, err, guard.ErrUnauthorized)

	require.NoError(t, reg.Cancel(context.Background(), depositor, id))
	assert.Equal(t, []guard.Address{depositor}, sink.to)

	err = reg.Release(context.Background(), arbiter, id)
	require.ErrorIs(t, err, guard.ErrAlreadyFinalized)

	err = reg.Cancel(context.Background(), depositor, id)
	require.ErrorIs(t, err, guard.ErrAlreadyFinalized)
}

func TestReleasePaysRecipient(t *testing.T) {
	sink := &recordingSink{}
	reg := newRegistry(t, &fakeClock{}, sink)

	id, err := reg.CreateEscrow(depositor, payee, 5)
	require.NoError(t, err)

	err = reg.Release(context.Background(), depositor, id)
	require.ErrorIs(t, err, guard.ErrUnauthorized)

	require.NoError(t, reg.Release(context.Background(), arbiter, id))
	assert.Equal(t, []guard.Address{payee}, sink.to)

	rec, ok := reg.Get(id)
	require.True(t, ok)
	assert.True(t, rec.Finalized)
}

func TestCreateEscrowValidation(t *testing.T) {
	reg := newRegistry(t, &fakeClock{}, &recordingSink{})

	_, err := reg.CreateEscrow(depositor, "", 5)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	_, err = reg.CreateEscrow(depositor, payee, 0)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	_, err = reg.CreateEscrow("", payee, 5)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)
}

func TestReleaseCondition(t *testing.T) {
	clock := &fakeClock{now: 1000}
	sink := &recordingSink{}
	reg := newRegistry(t, clock, sink)

	id, err := reg.CreateEscrow(depositor, payee, 5)
	require.NoError(t, err)

	require.NoError(t, reg.AttachCondition(arbiter, id, "input.age_seconds >= 300"))

	err = reg.Release(context.Background(), arbiter, id)
	require.ErrorIs(t, err, escrow.ErrConditionNotMet)

	clock.Advance(300)
	require.NoError(t, reg.Release(context.Background(), arbiter, id))
	assert.Equal(t, []guard.Address{payee}, sink.to)
}

func TestAttachConditionValidation(t *testing.T) {
	reg := newRegistry(t, &fakeClock{}, &recordingSink{})

	id, err := reg.CreateEscrow(depositor, payee, 5)
	require.NoError(t, err)

	err = reg.AttachCondition(depositor, id, "true")
	require.ErrorIs(t, err, guard.ErrUnauthorized)

	err = reg.AttachCondition(arbiter, id, "input.age_seconds >=")
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	err = reg.AttachCondition(arbiter, 99, "true")
	require.ErrorIs(t, err, guard.ErrNotFound)
}

func TestFinalizeRollsBackOnTransferFailure(t *testing.T) {
	sink := &recordingSink{fail: errors.New("sink offline")}
	reg := newRegistry(t, &fakeClock{}, sink)

	id, err := reg.CreateEscrow(depositor, payee, 5)
	require.NoError(t, err)

	err = reg.Release(context.Background(), arbiter, id)
	require.ErrorIs(t, err, guard.ErrTransferFailed)

	rec, ok := reg.Get(id)
	require.True(t, ok)
	assert.False(t, rec.Finalized)

	// Cancellation still possible after a failed release attempt.
	sink.fail = nil
	require.NoError(t, reg.Cancel(context.Background(), depositor, id))
}

func TestUnknownEscrow(t *testing.T) {
	reg := newRegistry(t, &fakeClock{}, &recordingSink{})

	err := reg.Release(context.Background(), arbiter, 7)
	require.ErrorIs(t, err, guard.ErrNotFound)

	err = reg.Cancel(context.Background(), depositor, 7)
	require.ErrorIs(t, err, guard.ErrNotFound)
}
