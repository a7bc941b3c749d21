// Package attribution implements spec.md §4.3's ASR + Speaker Attribution
// algorithm: a cheap monologue probe that can skip full diarization
// entirely for single-speaker channels, and a full path that clusters
// speaker turns and compares each cluster's centroid against enrolled
// voice profiles under a "never misattribute" guardrail — any ambiguity
// forces UNKNOWN rather than guessing HOST or GUEST.
package attribution

import (
	"context"
	"fmt"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/diarization"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// probeWindowSeconds is the leading window of audio the monologue probe
// embeds, per spec.md §4.3 step 1.
const probeWindowSeconds = 15

// Attributor runs the monologue probe and, when it doesn't qualify, the
// full diarization + profile-matching path over one audio artifact's ASR
// segments.
type Attributor struct {
	Embedder speakerembed.Embedder
	Diarizer *diarization.Diarizer
	Host     *types.VoiceProfile
	Guests   []types.VoiceProfile
	Config   config.AttribConfig

	// OnGuardrailFired, if set, is called once per segment a guardrail
	// forces to UNKNOWN, naming the reason for telemetry/logging. See
	// ingerr.ErrAttributionGuard.
	OnGuardrailFired func(segmentIndex int, reason string)
}

// New constructs an Attributor from its dependencies.
func New(embedder speakerembed.Embedder, diarizer *diarization.Diarizer, host *types.VoiceProfile, guests []types.VoiceProfile, cfg config.AttribConfig) *Attributor {
	return &Attributor{Embedder: embedder, Diarizer: diarizer, Host: host, Guests: guests, Config: cfg}
}

// Attribute assigns a SpeakerLabel and confidence to every ASR segment and
// returns the resulting RawSegments in the same order. samples/sampleRate
// are the full decoded artifact audio — the same values pkg/provider/asr's
// implementations decode via whisper.LoadWAV.
func (a *Attributor) Attribute(ctx context.Context, samples []float32, sampleRate int, segments []asr.Segment) ([]types.RawSegment, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	duration := float64(len(samples)) / float64(sampleRate)

	probeSim, probed := a.monologueProbe(ctx, samples, sampleRate)
	if probed && probeSim > a.Config.HostMinSim+a.Config.MonologueBonus {
		return a.fastPath(segments, probeSim, duration), nil
	}

	raw, err := a.fullPath(ctx, samples, sampleRate, segments, duration)
	if err != nil {
		// Diarization failure falls back to all-UNKNOWN rather than
		// propagating: the monologue probe already had its chance above,
		// and UNKNOWN is always a safe label.
		return allUnknown(segments, duration), nil
	}
	return raw, nil
}

// monologueProbe embeds the leading probeWindowSeconds of audio and
// compares it against the host profile. ok is false when there is no host
// profile to compare against or the window can't be embedded.
func (a *Attributor) monologueProbe(ctx context.Context, samples []float32, sampleRate int) (similarity float64, ok bool) {
	if a.Host == nil {
		return 0, false
	}
	windowLen := min(len(samples), probeWindowSeconds*sampleRate)
	if windowLen <= 0 {
		return 0, false
	}
	emb, err := a.Embedder.Embed(ctx, samples[:windowLen], sampleRate)
	if err != nil {
		return 0, false
	}
	return cosineSimilarity(emb, a.Host.Centroid), true
}

// fastPath labels every segment HOST with the probe's similarity as
// confidence, per spec.md §4.3 step 2.
func (a *Attributor) fastPath(segments []asr.Segment, probeSim, duration float64) []types.RawSegment {
	out := make([]types.RawSegment, len(segments))
	for i, seg := range segments {
		out[i] = toRawSegment(seg, types.SpeakerHost, probeSim, duration)
	}
	return out
}

// allUnknown labels every segment UNKNOWN with zero confidence.
func allUnknown(segments []asr.Segment, duration float64) []types.RawSegment {
	out := make([]types.RawSegment, len(segments))
	for i, seg := range segments {
		out[i] = toRawSegment(seg, types.SpeakerUnknown, 0, duration)
	}
	return out
}

// profile pairs a voice profile with the label it represents, so the
// full path can rank host and guest candidates uniformly.
type profile struct {
	label    types.SpeakerLabel
	centroid []float32
}

func (a *Attributor) fullPath(ctx context.Context, samples []float32, sampleRate int, segments []asr.Segment, duration float64) ([]types.RawSegment, error) {
	dsegs := make([]diarization.Segment, len(segments))
	for i, seg := range segments {
		dsegs[i] = diarization.Segment{Start: seg.Start, End: seg.End}
	}

	turns, clusters, err := a.Diarizer.Diarize(ctx, samples, sampleRate, dsegs)
	if err != nil {
		return nil, fmt.Errorf("attribution: diarize: %w", err)
	}

	segmentCluster := make(map[int]int, len(turns))
	for _, t := range turns {
		segmentCluster[t.SegmentIndex] = t.ClusterID
	}

	profiles := a.profiles()
	clusterLabel := make(map[int]types.SpeakerLabel, len(clusters))
	clusterConfidence := make(map[int]float64, len(clusters))
	for _, c := range clusters {
		label, confidence, reason := a.classifyCluster(c.Centroid, profiles)
		clusterLabel[c.ID] = label
		clusterConfidence[c.ID] = confidence
		if label == types.SpeakerUnknown && a.OnGuardrailFired != nil && reason != "" {
			for _, t := range turns {
				if t.ClusterID == c.ID {
					a.OnGuardrailFired(t.SegmentIndex, reason)
				}
			}
		}
	}

	out := make([]types.RawSegment, len(segments))
	for i, seg := range segments {
		label := types.SpeakerUnknown
		confidence := 0.0
		if clusterID, ok := segmentCluster[i]; ok {
			label = clusterLabel[clusterID]
			confidence = clusterConfidence[clusterID]
		} else if a.OnGuardrailFired != nil {
			a.OnGuardrailFired(i, "below minimum segment duration for attribution")
		}

		if seg.End-seg.Start < a.Config.MinAttributionDuration {
			if label != types.SpeakerUnknown && a.OnGuardrailFired != nil {
				a.OnGuardrailFired(i, "below minimum segment duration for attribution")
			}
			label = types.SpeakerUnknown
			confidence = 0
		}

		out[i] = toRawSegment(seg, label, confidence, duration)
	}
	return out, nil
}

// profiles returns the host and guest profiles as a uniform candidate list
// for cluster-centroid matching. A missing host profile simply means HOST
// is never a reachable label; it does not error here, since speaker ID may
// run guest-only in some deployments.
func (a *Attributor) profiles() []profile {
	var out []profile
	if a.Host != nil {
		out = append(out, profile{label: types.SpeakerHost, centroid: a.Host.Centroid})
	}
	for _, g := range a.Guests {
		out = append(out, profile{label: types.SpeakerGuest, centroid: g.Centroid})
	}
	return out
}

// classifyCluster implements spec.md §4.3 step 3's guardrails: best-match
// similarity must clear the label's minimum threshold, and the margin over
// the second-best candidate (regardless of label) must clear attr_margin.
// Any guardrail miss returns UNKNOWN with a human-readable reason.
func (a *Attributor) classifyCluster(centroid []float32, profiles []profile) (types.SpeakerLabel, float64, string) {
	if len(profiles) == 0 || centroid == nil {
		return types.SpeakerUnknown, 0, "no enrolled voice profiles"
	}

	bestLabel := types.SpeakerUnknown
	bestSim, secondSim := -1.0, -1.0
	for _, p := range profiles {
		sim := cosineSimilarity(centroid, p.centroid)
		if sim > bestSim {
			secondSim = bestSim
			bestSim = sim
			bestLabel = p.label
		} else if sim > secondSim {
			secondSim = sim
		}
	}

	minSim := a.Config.GuestMinSim
	if bestLabel == types.SpeakerHost {
		minSim = a.Config.HostMinSim
	}

	if bestSim < minSim {
		return types.SpeakerUnknown, 0, ingerr.ErrAttributionGuard + ": below minimum similarity"
	}
	if secondSim >= 0 && bestSim-secondSim < a.Config.AttrMargin {
		return types.SpeakerUnknown, 0, ingerr.ErrAttributionGuard + ": ambiguous margin between candidates"
	}
	return bestLabel, bestSim, ""
}

// cosineSimilarity is the inverse of diarization.CosineDistance, since that
// distance is defined as 1 - clamp(cosine similarity, -1, 1).
func cosineSimilarity(a, b []float32) float64 {
	return 1 - diarization.CosineDistance(a, b)
}

func toRawSegment(seg asr.Segment, label types.SpeakerLabel, confidence, duration float64) types.RawSegment {
	return types.RawSegment{
		Start:             clamp(seg.Start, 0, duration),
		End:               clamp(seg.End, 0, duration),
		Text:              seg.Text,
		SpeakerLabel:      label,
		SpeakerConfidence: confidence,
		AvgLogprob:        seg.AvgLogprob,
		CompressionRatio:  seg.CompressionRatio,
		NoSpeechProb:      seg.NoSpeechProb,
		SourceKind:        "asr",
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
