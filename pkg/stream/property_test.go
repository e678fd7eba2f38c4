//go:build property
// +build property

package stream_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/mandate/pkg/stream"
)

// TestTotalSentMonotoneAndCapped verifies that across arbitrary clock
// advances and withdrawals, TotalSent only grows and never passes the cap.
func TestTotalSentMonotoneAndCapped(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("total sent is monotone and bounded by the cap", prop.ForAll(
		func(rate, cap int64, steps []int64) bool {
			clock := &fakeClock{now: 0}
			acct := stream.NewAccount(owner, clock, &recordingSink{}, nil)
			id, err := acct.CreateStream(owner, recipient, rate, cap)
			if err != nil {
				return false
			}
			var prev int64
			for _, step := range steps {
				clock.Advance(step)
				_, _ = acct.Withdraw(context.Background(), recipient, id)
				s, ok := acct.Get(id)
				if !ok {
					return false
				}
				if s.TotalSent < prev || s.TotalSent > cap {
					return false
				}
				prev = s.TotalSent
			}
			return true
		},
		gen.Int64Range(1, 50),
		gen.Int64Range(1, 10_000),
		gen.SliceOf(gen.Int64Range(0, 100)),
	))

	properties.TestingRun(t)
}

// TestWithdrawableMatchesWithdrawn verifies the pure query and the actual
// withdrawal agree at every point in time.
func TestWithdrawableMatchesWithdrawn(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("withdraw pays out exactly what the query promised", prop.ForAll(
		func(rate, cap, advance int64) bool {
			clock := &fakeClock{now: 0}
			sink := &recordingSink{}
			acct := stream.NewAccount(owner, clock, sink, nil)
			id, err := acct.CreateStream(owner, recipient, rate, cap)
			if err != nil {
				return false
			}
			clock.Advance(advance)
			promised := acct.Withdrawable(id)
			paid, err := acct.Withdraw(context.Background(), recipient, id)
			if promised == 0 {
				return err != nil
			}
			return err == nil && paid == promised
		},
		gen.Int64Range(1, 50),
		gen.Int64Range(1, 10_000),
		gen.Int64Range(0, 1_000),
	))

	properties.TestingRun(t)
}
