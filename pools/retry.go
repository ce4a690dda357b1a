package pools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/logger"
)

// RetryFetcher retries a Fetcher with exponential backoff. Client errors
// other than 429 are not retried.
type RetryFetcher struct {
	next            Fetcher
	maxTries        uint
	initialInterval time.Duration
	logger          *zap.Logger
}

// NewRetryFetcher wraps next so each term is attempted up to maxTries times.
func NewRetryFetcher(next Fetcher, maxTries uint, initialInterval time.Duration, l *zap.Logger) *RetryFetcher {
	if maxTries == 0 {
		maxTries = 1
	}
	if initialInterval <= 0 {
		initialInterval = 250 * time.Millisecond
	}
	return &RetryFetcher{
		next:            next,
		maxTries:        maxTries,
		initialInterval: initialInterval,
		logger:          logger.OrNop(l).Named("retry"),
	}
}

// Fetch implements Fetcher.
func (r *RetryFetcher) Fetch(ctx context.Context, searchTerm string) (*core.PoolGroupResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.initialInterval * 10

	operation := func() (*core.PoolGroupResponse, error) {
		resp, err := r.next.Fetch(ctx, searchTerm)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}

	notify := func(err error, d time.Duration) {
		r.logger.Debug("retrying search term",
			zap.String("term", searchTerm), zap.Duration("backoff", d), zap.Error(err))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(notify))
}

func retryable(err error) bool {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) && gwErr.StatusCode >= 400 && gwErr.StatusCode < 500 {
		return gwErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
