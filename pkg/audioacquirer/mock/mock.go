// Package mock provides a test double for the audioacquirer.Acquirer
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// AcquireCall records a single invocation of Acquire.
type AcquireCall struct {
	Ctx      context.Context
	Ref      types.VideoReference
	TempRoot string
}

// Acquirer is a mock implementation of audioacquirer.Acquirer.
type Acquirer struct {
	mu sync.Mutex

	// AcquireResult is returned by Acquire. AcquireErr, if non-nil, takes
	// precedence.
	AcquireResult *types.AudioArtifact
	AcquireErr    error

	// AcquireCalls records every call to Acquire in order.
	AcquireCalls []AcquireCall
}

// Acquire records the call and returns AcquireResult, AcquireErr.
func (a *Acquirer) Acquire(ctx context.Context, ref types.VideoReference, tempRoot string) (*types.AudioArtifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AcquireCalls = append(a.AcquireCalls, AcquireCall{Ctx: ctx, Ref: ref, TempRoot: tempRoot})
	if a.AcquireErr != nil {
		return nil, a.AcquireErr
	}
	return a.AcquireResult, nil
}

// Reset clears all recorded calls. Thread-safe.
func (a *Acquirer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AcquireCalls = nil
}

// Ensure Acquirer implements audioacquirer.Acquirer at compile time.
var _ audioacquirer.Acquirer = (*Acquirer)(nil)
