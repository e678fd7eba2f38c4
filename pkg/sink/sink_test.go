package sink_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	treasury = guard.Address("treasury")
	payee    = guard.Address("recipient")
)

func TestBankTransfer(t *testing.T) {
	bank := sink.NewBank(treasury)
	require.NoError(t, bank.Deposit(treasury, 100))

	require.NoError(t, bank.Transfer(context.Background(), payee, 40))
	assert.Equal(t, int64(60), bank.Balance(treasury))
	assert.Equal(t, int64(40), bank.Balance(payee))

	err := bank.Transfer(context.Background(), payee, 61)
	require.ErrorIs(t, err, sink.ErrInsufficientFunds)
	assert.Equal(t, int64(60), bank.Balance(treasury))
}

func TestBankValidation(t *testing.T) {
	bank := sink.NewBank(treasury)

	err := bank.Transfer(context.Background(), "", 1)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	err = bank.Transfer(context.Background(), payee, 0)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)

	err = bank.Deposit(treasury, -5)
	require.ErrorIs(t, err, guard.ErrInvalidArgument)
}

func TestThrottledRejectsBeyondBurst(t *testing.T) {
	bank := sink.NewBank(treasury)
	require.NoError(t, bank.Deposit(treasury, 100))

	// 1 transfer/sec with burst 2: the third immediate transfer is rejected.
	throttled := sink.NewThrottled(bank, 1, 2)
	require.NoError(t, throttled.Transfer(context.Background(), payee, 1))
	require.NoError(t, throttled.Transfer(context.Background(), payee, 1))

	err := throttled.Transfer(context.Background(), payee, 1)
	require.ErrorIs(t, err, sink.ErrThrottled)
	assert.Equal(t, int64(98), bank.Balance(treasury))
}

func TestLoggedPassesThrough(t *testing.T) {
	bank := sink.NewBank(treasury)
	require.NoError(t, bank.Deposit(treasury, 10))

	logged := sink.NewLogged(bank, slog.Default())
	require.NoError(t, logged.Transfer(context.Background(), payee, 10))
	assert.Equal(t, int64(10), bank.Balance(payee))

	err := logged.Transfer(context.Background(), payee, 1)
	require.ErrorIs(t, err, sink.ErrInsufficientFunds)
}
