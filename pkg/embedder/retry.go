package embedder

import (
	"context"
	"time"
)

// DefaultMaxAttempts is the default number of attempts for retryProvider.
const DefaultMaxAttempts = 3

// DefaultBaseDelay is the default initial backoff delay for retryProvider.
const DefaultBaseDelay = 200 * time.Millisecond

// retryProvider wraps another Provider and retries failed calls with
// exponential backoff.
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
}

// WithRetry wraps a Provider so that failed Embed and EmbedBatch calls
// are retried with exponential backoff.
//
// Remote embedding APIs fail transiently (rate limits, network blips),
// so the wrapper retries up to maxAttempts times, doubling the delay
// between attempts starting from baseDelay. Context cancellation is
// honored between attempts.
//
// Parameters:
//   - p: The provider to wrap
//   - maxAttempts: Total number of attempts (values < 1 use DefaultMaxAttempts)
//   - baseDelay: Initial backoff delay (values <= 0 use DefaultBaseDelay)
//
// Returns a Provider with retry behavior.
func WithRetry(p Provider, maxAttempts int, baseDelay time.Duration) Provider {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &retryProvider{
		inner:       p,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

func (r *retryProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	var result []float64
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.inner.Embed(ctx, text)
		return err
	})
	return result, err
}

func (r *retryProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	var result [][]float64
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.inner.EmbedBatch(ctx, texts)
		return err
	})
	return result, err
}

func (r *retryProvider) Dimensions() int {
	return r.inner.Dimensions()
}

func (r *retryProvider) Close() error {
	return r.inner.Close()
}

// retry runs fn up to maxAttempts times, sleeping between attempts.
func (r *retryProvider) retry(ctx context.Context, fn func() error) error {
	delay := r.baseDelay
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}
