// Package ytdlp acquires audio for YouTube VideoReferences by shelling out
// to yt-dlp for download and ffmpeg for normalization, the same
// shell-out-and-wrap-stderr pattern the commentary package uses for ffmpeg
// invocations in other example repos.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

var _ audioacquirer.Acquirer = (*Acquirer)(nil)

// Acquirer downloads a YouTube video's audio track with yt-dlp, then
// normalizes it to mono/16kHz/PCM WAV with ffmpeg.
type Acquirer struct {
	// YTDLPBinary defaults to "yt-dlp" if empty.
	YTDLPBinary string
	// FFmpegBinary defaults to "ffmpeg" if empty.
	FFmpegBinary string
	// Retry governs Acquire's internal retry loop.
	Retry audioacquirer.RetryPolicy
}

// New constructs an Acquirer with the given retry policy and default
// binary names ("yt-dlp", "ffmpeg" on PATH).
func New(retry audioacquirer.RetryPolicy) *Acquirer {
	return &Acquirer{Retry: retry}
}

func (a *Acquirer) ytdlpBinary() string {
	if a.YTDLPBinary != "" {
		return a.YTDLPBinary
	}
	return "yt-dlp"
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
	taskDir, err := os.MkdirTemp(tempRoot, "ingest-"+sanitizeID(ref.VideoID)+"-")
	if err != nil {
		return nil, ingerr.NewAcquisitionError(true, fmt.Errorf("ytdlp: create temp dir: %w", err))
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(taskDir)
		}
	}()

	rawPath := filepath.Join(taskDir, "raw.%(ext)s")
	downloadURL := ref.CanonicalURL
	if downloadURL == "" {
		downloadURL = "https://www.youtube.com/watch?v=" + ref.VideoID
	}

	dlArgs := []string{
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-progress",
		"-o", rawPath,
		downloadURL,
	}
	cmd := exec.CommandContext(ctx, a.ytdlpBinary(), dlArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, classifyYTDLPError(err, stderr.String())
	}

	downloaded, err := findDownloaded(taskDir)
	if err != nil {
		return nil, ingerr.NewAcquisitionError(false, fmt.Errorf("ytdlp: %w", err))
	}

	normalizedPath := filepath.Join(taskDir, "audio.wav")
	if err := normalize(ctx, a.ffmpegBinary(), downloaded, normalizedPath); err != nil {
		return nil, err
	}

	duration, err := probeDuration(ctx, a.ffmpegBinary(), normalizedPath)
	if err != nil {
		return nil, err
	}

	success = true
	return &types.AudioArtifact{
		Path:            normalizedPath,
		DurationSeconds: duration,
		SampleRate:      16000,
		Channels:        1,
	}, nil
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func findDownloaded(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read temp dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "raw.") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no downloaded file found in %s", dir)
}

// normalize shells out to ffmpeg to produce a mono 16kHz PCM WAV, in the
// same style as the commentary package's extractSpeakerSample.
func normalize(ctx context.Context, ffmpegBinary, inputPath, outputPath string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ingerr.NewAcquisitionError(true, fmt.Errorf("ffmpeg normalize: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	return nil
}

// probeDuration uses ffmpeg's stderr header (rather than a separate ffprobe
// dependency) to read the output duration.
func probeDuration(ctx context.Context, ffmpegBinary, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffmpegBinary, "-hide_banner", "-i", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg -i with no output always exits non-zero; the duration we want
	// is in stderr regardless of the exit code.
	_ = cmd.Run()

	const marker = "Duration: "
	text := stderr.String()
	idx := strings.Index(text, marker)
	if idx < 0 {
		return 0, ingerr.NewAcquisitionError(false, fmt.Errorf("ffmpeg probe: duration not found for %s", path))
	}
	rest := text[idx+len(marker):]
	end := strings.IndexAny(rest, ",\n")
	if end < 0 {
		end = len(rest)
	}
	return parseFFmpegTimestamp(strings.TrimSpace(rest[:end]))
}

// parseFFmpegTimestamp parses ffmpeg's "HH:MM:SS.ss" duration format.
func parseFFmpegTimestamp(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("unexpected timestamp format %q", s)
	}
	h, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return h*3600 + m*60 + sec, nil
}

// classifyYTDLPError inspects yt-dlp's stderr to distinguish retriable
// network/rate-limit failures from terminal ones (removed, private, or
// age-restricted content).
func classifyYTDLPError(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "removed"),
		strings.Contains(lower, "sign in to confirm"),
		strings.Contains(lower, "unsupported url"):
		return ingerr.NewAcquisitionError(false, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr)))
	default:
		return ingerr.NewAcquisitionError(true, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr)))
	}
}
