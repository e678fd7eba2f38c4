// Package sink provides TransferSink implementations for deploying
// applications: an in-memory custodial bank, a throttling decorator, and a
// structured-logging decorator. The registries only ever see the
// guard.TransferSink interface.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
)

// ErrInsufficientFunds means the treasury cannot cover the transfer.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank is an in-memory custodial account set. Transfers debit the treasury
// account and credit the recipient; balances never go negative.
type Bank struct {
	treasury guard.Address

	mu       sync.Mutex
	balances map[guard.Address]int64
}

// NewBank creates a bank whose outgoing transfers draw from treasury.
func NewBank(treasury guard.Address) *Bank {
	return &Bank{
		treasury: treasury,
		balances: make(map[guard.Address]int64),
	}
}

// Deposit credits an account. Used to fund the treasury and to seed test
// fixtures.
func (b *Bank) Deposit(account guard.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
	return nil
}

// Balance returns the account's balance.
func (b *Bank) Balance(account guard.Address) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

// Transfer moves amount from the treasury to the recipient.
func (b *Bank) Transfer(ctx context.Context, to guard.Address, amount int64) error {
	if to.IsZero() {
		return fmt.Errorf("%w: null recipient address", guard.ErrInvalidArgument)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive amount %d", guard.ErrInvalidArgument, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[b.treasury] < amount {
		return fmt.Errorf("%w: treasury holds %d, transfer needs %d", ErrInsufficientFunds, b.balances[b.treasury], amount)
	}
	b.balances[b.treasury] -= amount
	b.balances[to] += amount
	return nil
}
