package ytdlp

import (
	"errors"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
)

func TestParseFFmpegTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"00:00:05.00", 5},
		{"01:02:03.50", 3723.5},
		{"00:30:00.00", 1800},
	}
	for _, c := range cases {
		got, err := parseFFmpegTimestamp(c.in)
		if err != nil {
			t.Errorf("parseFFmpegTimestamp(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseFFmpegTimestamp(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseFFmpegTimestamp_Invalid(t *testing.T) {
	if _, err := parseFFmpegTimestamp("not-a-timestamp"); err == nil {
		t.Fatal("expected error for malformed timestamp, got nil")
	}
}

func TestClassifyYTDLPError_TerminalCases(t *testing.T) {
	terminal := []string{
		"ERROR: Video unavailable",
		"ERROR: Private video. Sign in if you've been granted access to this video",
		"This video has been removed by the uploader",
		"Sign in to confirm your age",
		"Unsupported URL: https://example.com",
	}
	for _, stderr := range terminal {
		err := classifyYTDLPError(errors.New("exit status 1"), stderr)
		if ingerr.IsRetriable(err) {
			t.Errorf("classifyYTDLPError(%q) classified as retriable, want terminal", stderr)
		}
	}
}

func TestClassifyYTDLPError_RetriableDefault(t *testing.T) {
	err := classifyYTDLPError(errors.New("exit status 1"), "ERROR: Connection reset by peer")
	if !ingerr.IsRetriable(err) {
		t.Error("classifyYTDLPError with unrecognized stderr should default to retriable")
	}
}

func TestSanitizeID(t *testing.T) {
	got := sanitizeID("abc-123_XYZ!@#")
	want := "abc-123_XYZ___"
	if got != want {
		t.Errorf("sanitizeID = %q, want %q", got, want)
	}
}
