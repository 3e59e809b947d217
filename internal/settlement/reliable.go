package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banksec/backend/internal/models"
)

// Reliable resubmits transient failures with the same key, bounding
// both the number of attempts and the time spent on each one.
type Reliable struct {
	env      Environment
	attempts int
	timeout  time.Duration
	backoff  time.Duration
}

func NewReliable(env Environment, attempts int, timeout, backoff time.Duration) *Reliable {
	if attempts < 1 {
		attempts = 1
	}
	return &Reliable{env: env, attempts: attempts, timeout: timeout, backoff: backoff}
}

func (r *Reliable) Submit(ctx context.Context, req Request) (Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		// In-flight submissions outlive the caller; only the attempt timeout stops them.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		receipt, err := r.env.Submit(actx, req)
		cancel()
		if err == nil {
			return receipt, nil
		}
		if !retryable(err) {
			return Receipt{}, err
		}

		lastErr = err
		log.Printf("[SETTLEMENT] attempt %d/%d for %s failed: %v", attempt, r.attempts, req.Key, err)

		if attempt < r.attempts && r.backoff > 0 {
			select {
			case <-time.After(r.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return Receipt{}, fmt.Errorf("%w: %v", models.ErrSettlementTimeout, ctx.Err())
			}
		}
	}
	return Receipt{}, fmt.Errorf("%w after %d attempts: %v", models.ErrSettlementTimeout, r.attempts, lastErr)
}

func (r *Reliable) Events(ctx context.Context, account string) ([]Event, error) {
	return r.env.Events(ctx, account)
}

func retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
