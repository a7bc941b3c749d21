// Package localfile acquires audio for VideoReferences produced by
// pkg/videosource/local: the media already exists on disk at ref.LocalPath,
// so the only work is ffmpeg normalization into a task-unique temp
// directory.
package localfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

var _ audioacquirer.Acquirer = (*Acquirer)(nil)

// Acquirer normalizes a VideoReference.LocalPath file with ffmpeg.
type Acquirer struct {
	// FFmpegBinary defaults to "ffmpeg" if empty.
	FFmpegBinary string
	Retry        audioacquirer.RetryPolicy
}

// New constructs an Acquirer with the given retry policy.
func New(retry audioacquirer.RetryPolicy) *Acquirer {
	return &Acquirer{Retry: retry}
}

func (a *Acquirer) ffmpegBinary() string {
	if a.FFmpegBinary != "" {
		return a.FFmpegBinary
	}
	return "ffmpeg"
}

// Acquire implements audioacquirer.Acquirer.
func (a *Acquirer) Acquire(ctx context.Context, ref types.VideoReference, tempRoot string) (*types.AudioArtifact, error) {
	return audioacquirer.WithRetry(ctx, a.Retry, func(ctx context.Context) (*types.AudioArtifact, error) {
		return a.acquireOnce(ctx, ref, tempRoot)
	})
}

func (a *Acquirer) acquireOnce(ctx context.Context, ref types.VideoReference, tempRoot string) (*types.AudioArtifact, error) {
	if ref.LocalPath == "" {
		return nil, ingerr.NewAcquisitionError(false, fmt.Errorf("localfile: VideoReference %s has no LocalPath", ref.VideoID))
	}
	if _, err := os.Stat(ref.LocalPath); err != nil {
		return nil, ingerr.NewAcquisitionError(false, fmt.Errorf("localfile: stat %s: %w", ref.LocalPath, err))
	}

	taskDir, err := os.MkdirTemp(tempRoot, "ingest-local-")
	if err != nil {
		return nil, ingerr.NewAcquisitionError(true, fmt.Errorf("localfile: create temp dir: %w", err))
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(taskDir)
		}
	}()

	outputPath := filepath.Join(taskDir, "audio.wav")
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", ref.LocalPath,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, a.ffmpegBinary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, ingerr.NewAcquisitionError(false, fmt.Errorf("ffmpeg normalize: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	duration := float64(ref.DurationSeconds)
	success = true
	return &types.AudioArtifact{
		Path:            outputPath,
		DurationSeconds: duration,
		SampleRate:      16000,
		Channels:        1,
	}, nil
}
