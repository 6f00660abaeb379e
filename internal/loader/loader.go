// Package loader is the boundary between the chat log store and the training pipeline.
package loader

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"trainer/internal/models"
	"trainer/internal/repository"
)

// Loader returns the complete chat corpus available at call time.
type Loader interface {
	Load(ctx context.Context) ([]models.ChatRecord, error)
}

// Func adapts a plain function to Loader.
type Func func(ctx context.Context) ([]models.ChatRecord, error)

func (f Func) Load(ctx context.Context) ([]models.ChatRecord, error) {
	return f(ctx)
}

// FromRepository loads records through a ChatRecordRepository.
func FromRepository(repo repository.ChatRecordRepository) Loader {
	return Func(repo.GetAllRecords)
}

// Retrying retries transient load failures with exponential backoff.
// Malformed records and context cancellation are never retried.
type Retrying struct {
	next       Loader
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next. maxRetries == 0 disables retries.
func NewRetrying(next Loader, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Retrying {
	return &Retrying{
		next:       next,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Load calls the wrapped loader until it succeeds or the retry budget is spent.
func (r *Retrying) Load(ctx context.Context) ([]models.ChatRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(r.baseDelay, attempt)
			r.logger.Warn("Retrying chat log load",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		records, err := r.next.Load(ctx)
		if err == nil {
			return records, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	if r.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("load failed after %d retries: %w", r.maxRetries, lastErr)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, repository.ErrMalformedRecord),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// CalculateBackoff returns exponential backoff with jitter.
// Base delay is doubled each attempt, with random jitter up to 25%.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2+1)) - backoff/4
	return backoff + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
