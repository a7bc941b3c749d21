// Package audioacquirer defines the Acquirer abstraction: turning a
// VideoReference into a local, normalized audio file suitable for ASR.
package audioacquirer

import (
	"context"
	"math/rand"
	"time"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// Acquirer resolves a VideoReference to a local AudioArtifact.
//
// Acquire creates a task-unique temporary directory under tempRoot, downloads
// or copies the source media into it, normalizes it to mono/16kHz/PCM, and
// returns the resulting artifact. The temp directory is guaranteed removed
// on every exit path except success, where ownership of the artifact's
// directory passes to the caller (it must be removed once the task using it
// completes, success or failure).
//
// Implementations classify failures via ingerr.AcquisitionError: transient
// network errors, rate limiting, and truncated downloads are retriable;
// access-denied, content-removed, and unsupported-format are terminal.
// Acquire itself performs the retry loop described by RetryPolicy before
// returning a final error.
type Acquirer interface {
	Acquire(ctx context.Context, ref types.VideoReference, tempRoot string) (*types.AudioArtifact, error)
}

// RetryPolicy configures Acquire's internal retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt. Doubles on
	// each subsequent retriable failure, capped at MaxBackoff.
	InitialBackoff float64 // seconds

	// MaxBackoff caps the exponential growth of the retry delay.
	MaxBackoff float64 // seconds
}

// DefaultRetryPolicy mirrors config.RunConfig.IORetries' default of 3.
func DefaultRetryPolicy(ioRetries int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    ioRetries + 1,
		InitialBackoff: 1,
		MaxBackoff:     30,
	}
}

// WithRetry runs attempt repeatedly per policy, stopping on success, on a
// non-retriable AcquisitionError, or once MaxAttempts is exhausted. Each
// retry delay is exponential with full jitter: a random duration in
// [0, backoff), doubling backoff up to MaxBackoff.
func WithRetry(ctx context.Context, policy RetryPolicy, attempt func(ctx context.Context) (*types.AudioArtifact, error)) (*types.AudioArtifact, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = 1
	}
	maxBackoff := policy.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		artifact, err := attempt(ctx)
		if err == nil {
			return artifact, nil
		}
		lastErr = err
		if !ingerr.IsRetriable(err) || n == maxAttempts {
			return nil, err
		}

		delay := time.Duration(rand.Float64() * backoff * float64(time.Second))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil, lastErr
}
