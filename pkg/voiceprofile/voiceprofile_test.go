package voiceprofile_test

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/pkg/voiceprofile"
)

func writeProfile(t *testing.T, dir, id string, centroid []float32, sampleCount int, threshold float64, version int) {
	t.Helper()
	meta := map[string]any{
		"sample_count":   sampleCount,
		"threshold_hint": threshold,
		"version":        version,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), metaBytes, 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	buf := make([]byte, len(centroid)*4)
	for i, v := range centroid {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	if err := os.WriteFile(filepath.Join(dir, id+".f32"), buf, 0o644); err != nil {
		t.Fatalf("write f32: %v", err)
	}
}

func TestLoadDir_HostAndGuests(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "host", []float32{0.1, 0.2, 0.3}, 50, 0.75, 2)
	writeProfile(t, dir, "guest-alice", []float32{0.4, 0.5, 0.6}, 20, 0.7, 1)

	store, err := voiceprofile.LoadDir(dir, true)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if store.Host() == nil {
		t.Fatal("Host() = nil, want populated")
	}
	if store.Host().Version != 2 {
		t.Errorf("Host().Version = %d, want 2", store.Host().Version)
	}
	g, ok := store.Guest("guest-alice")
	if !ok {
		t.Fatal("Guest(guest-alice) not found")
	}
	if len(g.Centroid) != 3 {
		t.Errorf("len(Centroid) = %d, want 3", len(g.Centroid))
	}
}

func TestLoadDir_RequireHostMissing(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "guest-alice", []float32{0.1, 0.2}, 10, 0.7, 1)

	if _, err := voiceprofile.LoadDir(dir, true); err == nil {
		t.Fatal("expected error when host profile missing and required, got nil")
	}
}

func TestLoadDir_HostOptionalWhenNotRequired(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "guest-alice", []float32{0.1, 0.2}, 10, 0.7, 1)

	store, err := voiceprofile.LoadDir(dir, false)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if store.Host() != nil {
		t.Error("Host() = non-nil, want nil")
	}
}

func TestLoadDir_MalformedVectorLength(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "host", []float32{0.1}, 1, 0.7, 1)
	// Corrupt the .f32 file to an invalid length.
	if err := os.WriteFile(filepath.Join(dir, "host.f32"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := voiceprofile.LoadDir(dir, true); err == nil {
		t.Fatal("expected error for malformed vector length, got nil")
	}
}
