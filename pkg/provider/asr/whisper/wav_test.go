package whisper

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildWAV constructs a minimal PCM16 RIFF/WAV file on disk and returns its
// path, since github.com/go-audio/wav decodes from an io.Reader backed by a
// real file rather than an in-memory byte slice.
func buildWAV(t *testing.T, sampleRate, channels int, pcm []byte) string {
	t.Helper()
	bps := 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestLoadWAV_Mono(t *testing.T) {
	pcm := []byte{0, 0x40, 0, 0xC0} // 16384, -16384 as int16 LE
	path := buildWAV(t, 16000, 1, pcm)

	samples, sampleRate, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", sampleRate)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0] <= 0 || samples[1] >= 0 {
		t.Errorf("got %v, want positive then negative", samples)
	}
}

func TestLoadWAV_StereoAverages(t *testing.T) {
	// Two stereo frames: (16384, -16384), (0, 0).
	pcm := []byte{0, 0x40, 0, 0xC0, 0, 0, 0, 0}
	path := buildWAV(t, 16000, 2, pcm)

	samples, _, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("samples[0] = %v, want ~0 (average of +16384/-16384)", samples[0])
	}
	if samples[1] != 0 {
		t.Errorf("samples[1] = %v, want 0", samples[1])
	}
}

func TestLoadWAV_RejectsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadWAV(path); err == nil {
		t.Fatal("expected error for truncated wav data, got nil")
	}
}

func TestLoadWAV_MissingFile(t *testing.T) {
	if _, _, err := LoadWAV(filepath.Join(t.TempDir(), "nonexistent.wav")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
