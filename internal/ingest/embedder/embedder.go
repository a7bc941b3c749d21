// Package embedder implements spec.md §4.5: attaching a fixed-dimension
// dense vector to every OptimizedSegment, with the adaptive batch sizing
// the spec requires — halve on OOM, honour a reported native batch limit,
// reject a batch outright if its vectors don't match the configured
// dimension.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/embeddings"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// Embed attaches an embedding to every element of segments and returns the
// result as a new slice; segments is never mutated in place. Per-video
// ordering is preserved exactly — callers that batch segments from several
// videos together must reassemble by index, not by content.
//
// batchSize is the starting batch size (config.EmbedConfig.BatchSize); it is
// only ever reduced within a single call, never grown back, since a halving
// means the provider is already under memory pressure.
func Embed(ctx context.Context, provider embeddings.Provider, segments []types.OptimizedSegment, batchSize int) ([]types.OptimizedSegment, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(segments)
	}

	out := make([]types.OptimizedSegment, len(segments))
	copy(out, segments)

	dim := provider.Dimensions()

	for start := 0; start < len(out); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		size := min(batchSize, len(out)-start)
		texts := make([]string, size)
		for i := range texts {
			texts[i] = out[start+i].Text
		}

		vectors, err := provider.EmbedBatch(ctx, texts)
		if err != nil {
			var limitErr *embeddings.BatchLimitError
			if errors.As(err, &limitErr) && limitErr.Limit > 0 && limitErr.Limit < batchSize {
				batchSize = limitErr.Limit
				continue
			}
			if isOOM(err) {
				if size == 1 {
					return nil, ingerr.NewModelOOMError(fmt.Errorf("embedder: out of memory at minimum batch size: %w", err))
				}
				batchSize = max(1, size/2)
				continue
			}
			return nil, ingerr.NewModelInvalidOutputError(fmt.Errorf("embedder: embed batch: %w", err))
		}

		if len(vectors) != size {
			return nil, ingerr.NewModelInvalidOutputError(fmt.Errorf("embedder: provider returned %d vectors for %d texts", len(vectors), size))
		}
		for i, v := range vectors {
			if len(v) != dim {
				return nil, ingerr.NewModelInvalidOutputError(fmt.Errorf("embedder: vector dimension %d does not match configured dimension %d", len(v), dim))
			}
			out[start+i].Embedding = v
		}

		start += size
	}

	return out, nil
}

// isOOM reports whether err represents a GPU/host memory exhaustion
// condition the degradation ladder should react to. A provider that already
// classifies its own errors reports this via *ingerr.ModelError.OOM;
// providers that only surface a raw error (the HTTP-backed ones in this
// module) are matched on the vendor-specific substrings their APIs use.
func isOOM(err error) bool {
	var modErr *ingerr.ModelError
	if errors.As(err, &modErr) {
		return modErr.OOM
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "cuda error") ||
		strings.Contains(msg, "oom")
}
