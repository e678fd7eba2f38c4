package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner     = guard.Address("owner")
	recipient = guard.Address("recipient")
)

type fakeClock struct{ now int64 }

func (c *fakeClock) Now() time.Time     { return time.Unix(c.now, 0) }
func (c *fakeClock) Advance(secs int64) { c.now += secs }

type recordingSink struct {
	transfers []int64
	fail      error
}

func (s *recordingSink) Transfer(ctx context.Context, to guard.Address, amount int64) error {
	if s.fail != nil {
		return s.fail
	}
	s.transfers = append(s.transfers, amount)
	return nil
}

func TestStreamAccruesToCap(t *testing.T) {
	clock := &fakeClock{now: 0}
	sink := &recordingSink{}
	acct := stream.NewAccount(owner, clock, sink, nil)

	id, err := acct.CreateStream(owner, recipient, 5, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	// 5 * 30 = 150 > 100, so the cap binds.
	clock.Advance(30)
	assert.Equal(t, int64(100), acct.Withdrawable(id))

	amt, err := acct.Withdraw(context.Background(), recipient, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), amt)
	assert.Equal(t, []int64{100}, sink.transfers)

	s, ok := acct.Get(id)
	require.True(t, ok)
	assert.Equal(t, int64(100), s.TotalSent)

	// Fully drained: nothing ever accrues again.
	clock.Advance(1000)
	assert.Equal(t, int64(0), acct.Withdrawable(id))
	_, err = acct.Withdraw(context.Background(), recipient, id)
	require.ErrorIs(t, err, guard.ErrNothingToWithdraw)
}

func TestWithdrawableIsIdempotent(t *testing.T) {
	clock := &fakeClock{now: 0}
	acct := stream.NewAccount(owner, clock, &recordingSink{}, nil)

	id, err := acct.CreateStream(owner, recipient, 3, 1000)
	require.NoError(t, err)

	clock.Advance(10)
	first := acct.Withdrawable(id)
	second := acct.Withdrawable(id)
	assert.Equal(t, int64(30), first)
	assert.Equal(t, first, second)
}

func TestWithdrawRequiresRecipient(t *testing.T) {
	clock := &fakeClock{now: 0}
	acct := stream.NewAccount(owner, clock, &recordingSink{}, nil)

	id, err := acct.CreateStream(owner, recipient, 3, 1000)
	require.NoError(t, err)

	clock.Advance(10)
	_, err = acct.Withdraw(context.Background(), owner, id)
	require.ErrorIs(t, err, guard.ErrUnauthorized)
}

func TestWithdrawUnknownStream(t *testing.T) {
	acct := stream.NewAccount(owner, &fakeClock{}, &recordingSink{}, nil)

	_, err := acct.Withdraw(context.Background(), recipient, 42)
	require.ErrorIs(t, err, guard.ErrNotFound)
	assert.Equal(t, int64(0), acct.Withdrawable(42))
}

func TestCreateStreamValidation(t *testing.T) {
	acct := stream.NewAccount(owner, &fakeClock{}, &recordingSink{}, nil)

	_, err := acct.CreateStream(recipient, recipient, 1, 1)
	require.ErrorIs(t, err, guard.ErrUnauthorized)

	_, err = acct.CreateStream(owner, "", 1, 1)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	_, err = acct.CreateStream(owner, recipient, 0, 1)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	_, err = acct.CreateStream(owner, recipient, 1, 0)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)
}

func TestWithdrawRollsBackOnTransferFailure(t *testing.T) {
	clock := &fakeClock{now: 0}
	sink := &recordingSink{fail: errors.New("sink offline")}
	acct := stream.NewAccount(owner, clock, sink, nil)

	id, err := acct.CreateStream(owner, recipient, 5, 1000)
	require.NoError(t, err)

	clock.Advance(10)
	_, err = acct.Withdraw(context.Background(), recipient, id)
	require.ErrorIs(t, err, guard.ErrTransferFailed)

	// Accrual bookkeeping untouched: the same amount is still withdrawable.
	assert.Equal(t, int64(50), acct.Withdrawable(id))
	s, _ := acct.Get(id)
	assert.Equal(t, int64(0), s.TotalSent)
	assert.Equal(t, int64(0), s.LastWithdrawAt)

	sink.fail = nil
	amt, err := acct.Withdraw(context.Background(), recipient, id)
	require.NoError(t, err)
	assert.Equal(t, int64(50), amt)
}

func TestAccrualTruncates(t *testing.T) {
	clock := &fakeClock{now: 0}
	acct := stream.NewAccount(owner, clock, &recordingSink{}, nil)

	id, err := acct.CreateStream(owner, recipient, 7, 1000)
	require.NoError(t, err)

	// Whole seconds only: nothing accrues until a full second elapses.
	assert.Equal(t, int64(0), acct.Withdrawable(id))
	clock.Advance(1)
	assert.Equal(t, int64(7), acct.Withdrawable(id))
}
