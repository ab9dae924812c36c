package trader

import (
	"context"
	"log/slog"
	"time"

	"dipbot/internal/domain"
	"dipbot/internal/infra"
)

// RetryPolicy bounds how an exchange call is re-attempted.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Delay       time.Duration // fixed delay between attempts
}

// DefaultRetryPolicy matches the exchange-client contract: three
// attempts two seconds apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}

// callWithRetry runs fn up to pol.MaxAttempts times. Only failures
// classified retriable through domain.IsRetriable are re-attempted;
// anything else propagates immediately. After the final attempt the
// last error is returned, never swallowed. The delay sleep honours
// context cancellation.
func callWithRetry[T any](ctx context.Context, log *slog.Logger, op string, pol RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := pol.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			infra.MetricRetries.Inc()
			log.Warn("retrying exchange call",
				slog.String("op", op),
				slog.Int("attempt", i+1),
				slog.Duration("delay", pol.Delay),
				slog.Any("error", lastErr),
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(pol.Delay):
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !domain.IsRetriable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
