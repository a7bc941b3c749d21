// Package mock provides a test double for the videosource.Lister interface.
//
// Example:
//
//	l := &mock.Lister{
//	    ListResult: []types.VideoReference{{VideoID: "abc123"}},
//	}
//	refs, _ := l.List(ctx, 0)
package mock

import (
	"context"
	"sync"

	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource"
)

// ListCall records a single invocation of List.
type ListCall struct {
	Ctx   context.Context
	Limit int
}

// Lister is a mock implementation of videosource.Lister.
type Lister struct {
	mu sync.Mutex

	// ListResult is returned by List. ListErr, if non-nil, takes precedence.
	ListResult []types.VideoReference
	ListErr    error

	// ListCalls records every call to List in order.
	ListCalls []ListCall
}

// List records the call and returns ListResult, ListErr.
func (l *Lister) List(ctx context.Context, limit int) ([]types.VideoReference, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ListCalls = append(l.ListCalls, ListCall{Ctx: ctx, Limit: limit})
	if l.ListErr != nil {
		return nil, l.ListErr
	}
	return l.ListResult, nil
}

// Reset clears all recorded calls. Thread-safe.
func (l *Lister) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ListCalls = nil
}

// Ensure Lister implements videosource.Lister at compile time.
var _ videosource.Lister = (*Lister)(nil)
