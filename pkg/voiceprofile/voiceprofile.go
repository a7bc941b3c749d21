// Package voiceprofile loads the read-only directory of enrolled speaker
// profiles used by speaker attribution: one "host" profile (required when
// speaker ID is enabled) and zero or more named guest profiles.
//
// Each profile is two files sharing a basename: "<speaker_id>.json" holds
// metadata (sample_count, threshold_hint, version) and "<speaker_id>.f32"
// holds the centroid embedding as raw little-endian float32 values. The
// speaker ID "host" is reserved for the channel host; every other basename
// is loaded as a guest profile named after its speaker ID.
package voiceprofile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// hostSpeakerID is the reserved basename for the required host profile.
const hostSpeakerID = "host"

// metadata is the JSON sidecar format for a profile.
type metadata struct {
	SampleCount   int     `json:"sample_count"`
	ThresholdHint float64 `json:"threshold_hint"`
	Version       int     `json:"version"`
}

// Store holds the profiles loaded from a single directory. It is immutable
// after LoadDir returns; ingestion never writes back to it.
type Store struct {
	host   *types.VoiceProfile
	guests map[string]types.VoiceProfile
}

// Host returns the required host profile, or nil if none was loaded.
func (s *Store) Host() *types.VoiceProfile {
	return s.host
}

// Guest returns the named guest profile and whether it was found.
func (s *Store) Guest(name string) (types.VoiceProfile, bool) {
	p, ok := s.guests[name]
	return p, ok
}

// Guests returns all loaded guest profiles in no particular order.
func (s *Store) Guests() []types.VoiceProfile {
	out := make([]types.VoiceProfile, 0, len(s.guests))
	for _, p := range s.guests {
		out = append(out, p)
	}
	return out
}

// LoadDir reads every "<id>.json"/"<id>.f32" pair in dir. requireHost, when
// true, makes a missing or malformed host profile a fatal EnvironmentError
// (the caller is expected to pass config.Voices.EnableSpeakerID).
func LoadDir(dir string, requireHost bool) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ingerr.NewEnvironmentError("voice profile directory unreadable", fmt.Errorf("voiceprofile: read dir %s: %w", dir, err))
	}

	ids := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".json" || ext == ".f32" {
			ids[strings.TrimSuffix(name, ext)] = true
		}
	}

	store := &Store{guests: map[string]types.VoiceProfile{}}
	for id := range ids {
		profile, err := loadProfile(dir, id)
		if err != nil {
			return nil, ingerr.NewEnvironmentError(fmt.Sprintf("voice profile %q invalid", id), err)
		}
		if id == hostSpeakerID {
			p := profile
			store.host = &p
			continue
		}
		store.guests[id] = profile
	}

	if requireHost && store.host == nil {
		return nil, ingerr.NewEnvironmentError("host voice profile missing", fmt.Errorf("voiceprofile: no %q.json/%q.f32 pair found in %s", hostSpeakerID, hostSpeakerID, dir))
	}
	return store, nil
}

func loadProfile(dir, id string) (types.VoiceProfile, error) {
	var meta metadata
	metaPath := filepath.Join(dir, id+".json")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return types.VoiceProfile{}, fmt.Errorf("read %s: %w", metaPath, err)
	}
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return types.VoiceProfile{}, fmt.Errorf("parse %s: %w", metaPath, err)
	}

	vecPath := filepath.Join(dir, id+".f32")
	vecBytes, err := os.ReadFile(vecPath)
	if err != nil {
		return types.VoiceProfile{}, fmt.Errorf("read %s: %w", vecPath, err)
	}
	if len(vecBytes)%4 != 0 {
		return types.VoiceProfile{}, fmt.Errorf("%s: length %d is not a multiple of 4", vecPath, len(vecBytes))
	}
	centroid := make([]float32, len(vecBytes)/4)
	for i := range centroid {
		bits := binary.LittleEndian.Uint32(vecBytes[i*4:])
		centroid[i] = math.Float32frombits(bits)
	}
	if len(centroid) == 0 {
		return types.VoiceProfile{}, fmt.Errorf("%s: empty centroid", vecPath)
	}

	return types.VoiceProfile{
		Name:          id,
		Centroid:      centroid,
		SampleCount:   meta.SampleCount,
		ThresholdHint: meta.ThresholdHint,
		Version:       meta.Version,
	}, nil
}
