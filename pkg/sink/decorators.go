package sink

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/mandate/pkg/guard"
)

// ErrThrottled means the outbound transfer rate cap rejected the transfer.
var ErrThrottled = errors.New("transfer throttled")

// Throttled caps the rate of outbound transfers across all registries
// sharing the sink. The check is non-blocking: timeout and retry policy
// belong to the caller, never to the guarded operation.
type Throttled struct {
	inner   guard.TransferSink
	limiter *rate.Limiter
}

// NewThrottled wraps inner with a transfers-per-second cap and burst size.
func NewThrottled(inner guard.TransferSink, perSecond float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) Transfer(ctx context.Context, to guard.Address, amount int64) error {
	if !t.limiter.Allow() {
		return ErrThrottled
	}
	return t.inner.Transfer(ctx, to, amount)
}

// Logged logs every transfer attempt and its outcome.
type Logged struct {
	inner  guard.TransferSink
	logger *slog.Logger
}

// NewLogged wraps inner with slog logging. A nil logger uses the default.
func NewLogged(inner guard.TransferSink, logger *slog.Logger) *Logged {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logged{inner: inner, logger: logger}
}

func (l *Logged) Transfer(ctx context.Context, to guard.Address, amount int64) error {
	err := l.inner.Transfer(ctx, to, amount)
	if err != nil {
		l.logger.Error("transfer failed", "to", string(to), "amount", amount, "error", err)
		return err
	}
	l.logger.Info("transfer completed", "to", string(to), "amount", amount)
	return nil
}
