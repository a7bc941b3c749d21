package attribution

import (
	"context"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/diarization"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// stubEmbedder returns a fixed embedding keyed by the sample-slice length
// so tests can control similarity outcomes without a real encoder.
type stubEmbedder struct {
	byLength map[int][]float32
	def      []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if emb, ok := s.byLength[len(samples)]; ok {
		return emb, nil
	}
	return s.def, nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

func defaultAttribConfig() config.AttribConfig {
	return config.AttribConfig{
		HostMinSim:             0.75,
		GuestMinSim:            0.5,
		AttrMargin:             0.05,
		OverlapBonus:           0.05,
		MonologueBonus:         0.05,
		MinAttributionDuration: 0.2,
	}
}

func TestAttribute_EmptySegments(t *testing.T) {
	a := &Attributor{Config: defaultAttribConfig()}
	out, err := a.Attribute(context.Background(), nil, 16000, nil)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil output for empty segments")
	}
}

func TestAttribute_MonologueProbeTakesFastPath(t *testing.T) {
	embedder := &stubEmbedder{byLength: map[int][]float32{16000: {1, 0}}}
	host := &types.VoiceProfile{Name: "host", Centroid: []float32{1, 0}}

	a := &Attributor{Embedder: embedder, Host: host, Config: defaultAttribConfig()}

	samples := make([]float32, 16000)
	segments := []asr.Segment{
		{Start: 0, End: 0.5, Text: "Welcome back to the show."},
		{Start: 0.5, End: 1, Text: "Today we're covering a lot of ground."},
	}

	out, err := a.Attribute(context.Background(), samples, 16000, segments)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for i, seg := range out {
		if seg.SpeakerLabel != types.SpeakerHost {
			t.Errorf("segment %d label = %q, want HOST", i, seg.SpeakerLabel)
		}
		if seg.SpeakerConfidence < 0.99 {
			t.Errorf("segment %d confidence = %v, want ~1.0", i, seg.SpeakerConfidence)
		}
	}
}

func TestAttribute_FullPathClassifiesAndGuardsAmbiguity(t *testing.T) {
	// segment 0 is 1s (16000 samples) -> matches the guest profile closely.
	// segment 1 is 2s (32000 samples) -> orthogonal to every profile, below
	// the minimum similarity, so it must be forced UNKNOWN.
	embedder := &stubEmbedder{byLength: map[int][]float32{
		16000: {1, 0},
		32000: {0, 1},
	}}
	guest := types.VoiceProfile{Name: "guestA", Centroid: []float32{1, 0}}

	var guardrailReasons []string
	a := &Attributor{
		Embedder: embedder,
		Diarizer: &diarization.Diarizer{Embedder: embedder, Threshold: 0.5},
		Guests:   []types.VoiceProfile{guest},
		Config:   defaultAttribConfig(),
		OnGuardrailFired: func(i int, reason string) {
			guardrailReasons = append(guardrailReasons, reason)
		},
	}

	samples := make([]float32, 3*16000)
	segments := []asr.Segment{
		{Start: 0, End: 1, Text: "I think this guest makes a great point."},
		{Start: 1, End: 3, Text: "An unrelated voice chimes in unexpectedly."},
	}

	out, err := a.Attribute(context.Background(), samples, 16000, segments)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].SpeakerLabel != types.SpeakerGuest {
		t.Errorf("segment 0 label = %q, want GUEST", out[0].SpeakerLabel)
	}
	if out[1].SpeakerLabel != types.SpeakerUnknown {
		t.Errorf("segment 1 label = %q, want UNKNOWN", out[1].SpeakerLabel)
	}
	if len(guardrailReasons) == 0 {
		t.Error("expected OnGuardrailFired to report the below-minimum-similarity guardrail")
	}
}

func TestAttribute_ForcesUnknownBelowMinimumDuration(t *testing.T) {
	// The probe window covers all 2s of audio (32000 samples) and is
	// orthogonal to the host, so the monologue fast path is skipped; the 1s
	// segment matches the host on the full path but is shorter than
	// MinAttributionDuration.
	embedder := &stubEmbedder{byLength: map[int][]float32{32000: {0, 1}}, def: []float32{1, 0}}
	host := types.VoiceProfile{Name: "host", Centroid: []float32{1, 0}}

	cfg := defaultAttribConfig()
	cfg.MinAttributionDuration = 5.0 // force every short segment UNKNOWN

	a := &Attributor{
		Embedder: embedder,
		Diarizer: &diarization.Diarizer{Embedder: embedder, Threshold: 0.5},
		Host:     &host,
		Config:   cfg,
	}

	samples := make([]float32, 2*16000)
	segments := []asr.Segment{{Start: 0, End: 1, Text: "Short clip."}}

	out, err := a.Attribute(context.Background(), samples, 16000, segments)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if out[0].SpeakerLabel != types.SpeakerUnknown {
		t.Errorf("SpeakerLabel = %q, want UNKNOWN", out[0].SpeakerLabel)
	}
}

func TestAttribute_DiarizationFailureFallsBackToAllUnknown(t *testing.T) {
	// An unconfigured Diarizer (no Embedder) makes Diarize return an error;
	// Attribute must treat this the same as the "never misattribute"
	// guardrail and fall back to UNKNOWN rather than propagating the error.
	a := &Attributor{
		Embedder: &stubEmbedder{def: []float32{1, 0}},
		Diarizer: &diarization.Diarizer{Threshold: 0.5},
		Config:   defaultAttribConfig(),
	}

	samples := make([]float32, 16000)
	segments := []asr.Segment{{Start: 0, End: 1, Text: "Hello."}}

	out, err := a.Attribute(context.Background(), samples, 16000, segments)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if out[0].SpeakerLabel != types.SpeakerUnknown {
		t.Errorf("SpeakerLabel = %q, want UNKNOWN on diarization failure", out[0].SpeakerLabel)
	}
}
