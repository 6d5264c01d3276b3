// Package retrypolicy implements the exponential-backoff-with-jitter
// retry schedule shared by OCR, LLM, and orchestrator task calls
// (spec §4.2/§4.3/§4.6: initial 2s, multiplier 2.0, cap 30s, 3 attempts).
package retrypolicy

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// Policy computes retry delays and drives a retry loop.
type Policy struct {
	MaxAttempts int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	logger       *logger.Logger
}

// Default is the schedule specified throughout the spec: initial 2s,
// multiplier 2.0, cap 30s, max 3 attempts.
func Default(log *logger.Logger) *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		logger:       log,
	}
}

// ComputeDelay returns the backoff delay before the given attempt
// (0-indexed: attempt 0 is the first retry after the initial try),
// with +/-20% jitter applied to avoid thundering herd, mirroring the
// teacher's ComputeRetryDelay.
func (p *Policy) ComputeDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialDelay
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt)))
	jitter := time.Duration(float64(delay) * 0.2 * (2*rand.Float64() - 1))
	delay += jitter
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Run executes fn, retrying on errs.KindTransient up to MaxAttempts
// total tries, and retrying errs.KindQuota at most once, within the
// same MaxAttempts budget, per spec §7 ("QUOTA -- treated as
// TRANSIENT once with backoff; further occurrences fatal"). VALIDATION,
// AUTH, TIMEOUT, and CONFLICT are surfaced immediately without retry.
func (p *Policy) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	quotaRetriesUsed := 0
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return errs.Timeout(errs.StageStore, op+": context cancelled before attempt", ctx.Err())
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errs.IsRetryableQuota(err, quotaRetriesUsed) {
			return err
		}
		if errs.KindOf(err) == errs.KindQuota {
			quotaRetriesUsed++
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.ComputeDelay(attempt)
		if p.logger != nil {
			p.logger.Warn("retrying after transient error",
				"op", op,
				"attempt", attempt+1,
				"max_attempts", p.MaxAttempts,
				"delay", delay,
				"error", err.Error(),
			)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errs.Timeout(errs.StageStore, op+": context cancelled during backoff", ctx.Err())
		}
	}
	return lastErr
}
