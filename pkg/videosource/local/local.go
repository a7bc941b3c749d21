// Package local lists media files from a local directory, for ingesting a
// backlog of recordings that did not come from YouTube (e.g. an archival
// import, or a channel's content mirrored to disk ahead of time).
package local

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource"
)

var _ videosource.Lister = (*Lister)(nil)

// extensions recognized as audio/video media. Anything else under Dir is
// ignored rather than erroring, so a directory of mixed content (thumbnails,
// transcripts already on disk) doesn't fail the listing.
var extensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true,
	".mp3": true, ".m4a": true, ".wav": true, ".flac": true,
}

// Lister walks Dir recursively for media files.
type Lister struct {
	Dir string
}

// New constructs a Lister rooted at dir.
func New(dir string) (*Lister, error) {
	if dir == "" {
		return nil, ingerr.NewConfigError("source.local_dir", fmt.Errorf("required for local source"))
	}
	return &Lister{Dir: dir}, nil
}

// List implements videosource.Lister. VideoID is derived from the file path
// relative to Dir, with the extension stripped, so re-running List is
// idempotent as long as files aren't renamed. Results are sorted by
// modification time, newest first.
func (l *Lister) List(ctx context.Context, limit int) ([]types.VideoReference, error) {
	type found struct {
		ref     types.VideoReference
		modTime time.Time
	}
	var all []found

	err := filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if !extensions[strings.ToLower(ext)] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.Dir, path)
		if err != nil {
			rel = path
		}
		videoID := strings.TrimSuffix(rel, ext)
		all = append(all, found{
			ref: types.VideoReference{
				VideoID:         videoID,
				SourceType:      types.SourceLocal,
				Title:           strings.TrimSuffix(filepath.Base(path), ext),
				PublishedAt:     info.ModTime(),
				LocalPath:       path,
				CanonicalURL:    path,
			},
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, ingerr.NewAcquisitionError(false, fmt.Errorf("local: walk %s: %w", l.Dir, err))
	}

	sort.Slice(all, func(i, j int) bool { return all[i].modTime.After(all[j].modTime) })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	refs := make([]types.VideoReference, len(all))
	for i, f := range all {
		refs[i] = f.ref
	}
	return refs, nil
}
