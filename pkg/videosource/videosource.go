// Package videosource defines the Lister abstraction over any video source
// adapter — a YouTube channel, a local media directory, or a test double.
//
// A Lister enumerates VideoReference values only; it never touches media
// bytes. Acquiring the audio for a listed video is the Audio Acquirer's job
// (see pkg/audioacquirer).
package videosource

import (
	"context"

	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// Lister enumerates candidate videos from a single upstream source.
//
// Implementations must be safe for concurrent use only if the orchestrator
// calls them from more than one goroutine; the reference orchestrator calls
// List exactly once per run, from a single goroutine.
type Lister interface {
	// List returns up to limit VideoReference values, newest first. A limit
	// of 0 means unlimited. Implementations should respect ctx cancellation
	// between pages of an underlying paginated API.
	List(ctx context.Context, limit int) ([]types.VideoReference, error)
}
