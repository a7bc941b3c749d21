// Package optimizer converts raw ASR output into retrieval-sized,
// speaker-homogeneous, deduplicated transcript units.
//
// [Optimize] is a pure function of its inputs: given the same raw segments
// and config it always produces the same optimized segments, with no I/O
// and no hidden state. It applies five passes in a fixed order — merge,
// split, deduplicate, coalesce, default-label — each documented on its own
// function below.
package optimizer

import (
	"fmt"
	"strings"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/store/postgres"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// Options carries the subset of configuration Optimize needs, plus the two
// policy flags that drive the default-label pass.
type Options struct {
	Segment config.SegmentConfig

	// DefaultHostDominant and SpeakerIDEnabled together gate the
	// default-label pass: a null/empty label becomes HOST only when both
	// are true, otherwise it becomes UNKNOWN.
	DefaultHostDominant bool
	SpeakerIDEnabled    bool

	// OnDefaultLabelApplied, if set, is called once per segment the
	// default-label pass rewrites. Callers use it to log the policy firing,
	// per spec.
	OnDefaultLabelApplied func(segmentIndex int, label types.SpeakerLabel)
}

// Optimize runs the fixed-order optimization passes over raw and returns
// the resulting optimized segments. raw must already be sorted by Start in
// non-decreasing order, as guaranteed by the ASR contract; Optimize does
// not re-sort it.
func Optimize(raw []types.RawSegment, opts Options) ([]types.OptimizedSegment, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	segs := merge(raw, opts.Segment)
	segs = split(segs, opts.Segment)
	segs = deduplicate(segs)
	segs = coalesce(segs, opts.Segment)
	segs = defaultLabel(segs, opts)

	if err := checkInvariants(segs, opts.Segment); err != nil {
		return nil, err
	}
	return segs, nil
}

// workingSegment mirrors types.OptimizedSegment but keeps normalized text
// cached alongside it so later passes don't recompute NormalizeText
// repeatedly over long spans of text.
type workingSegment struct {
	types.OptimizedSegment
	normalized string
}

// merge sweeps raw in start-time order and folds a segment into the current
// accumulator when it shares the same speaker label, the gap to it is
// within MaxGapS, and the combined duration and length stay within
// MaxDurationS/HardCapChars. Accumulation for a given run stops once its
// text reaches MaxChars, even if later segments would still qualify.
func merge(raw []types.RawSegment, cfg config.SegmentConfig) []workingSegment {
	out := make([]workingSegment, 0, len(raw))

	acc := toOptimized(raw[0])
	accChars := len(acc.Text)

	for i := 1; i < len(raw); i++ {
		next := raw[i]
		gap := next.Start - acc.End
		mergedLen := accChars + 1 + len(next.Text)
		mergedDuration := next.End - acc.Start

		canMerge := accChars < cfg.MaxChars &&
			next.SpeakerLabel == acc.SpeakerLabel &&
			gap <= cfg.MaxGapS &&
			mergedDuration <= cfg.MaxDurationS &&
			mergedLen <= cfg.HardCapChars

		if canMerge {
			acc.Text = acc.Text + " " + next.Text
			acc.End = next.End
			acc.IsOverlap = acc.IsOverlap || next.IsOverlap
			acc.AvgLogprob = (acc.AvgLogprob + next.AvgLogprob) / 2
			acc.CompressionRatio = (acc.CompressionRatio + next.CompressionRatio) / 2
			acc.NoSpeechProb = (acc.NoSpeechProb + next.NoSpeechProb) / 2
			accChars = mergedLen
			continue
		}

		out = append(out, workingSegment{OptimizedSegment: acc})
		acc = toOptimized(next)
		accChars = len(acc.Text)
	}
	out = append(out, workingSegment{OptimizedSegment: acc})
	return out
}

func toOptimized(r types.RawSegment) types.OptimizedSegment {
	return types.OptimizedSegment{
		Start:             r.Start,
		End:               r.End,
		Text:              r.Text,
		SpeakerLabel:      r.SpeakerLabel,
		SpeakerConfidence: r.SpeakerConfidence,
		AvgLogprob:        r.AvgLogprob,
		CompressionRatio:  r.CompressionRatio,
		NoSpeechProb:      r.NoSpeechProb,
		IsOverlap:         r.IsOverlap,
	}
}

// sentenceBoundaries, in priority order: a period/question mark/exclamation
// point followed by whitespace wins over a semicolon, which wins over the
// longest run of whitespace.
var sentenceEnders = []byte{'.', '?', '!'}

// split breaks any segment exceeding HardCapChars at the nearest sentence
// boundary at or before the cap, re-prepending OverlapChars of trailing
// context onto the next piece so downstream retrieval doesn't lose context
// across the cut. Timing is interpolated proportional to character offset
// within the original span.
func split(in []workingSegment, cfg config.SegmentConfig) []workingSegment {
	out := make([]workingSegment, 0, len(in))
	for _, seg := range in {
		out = append(out, splitOne(seg, cfg)...)
	}
	return out
}

func splitOne(seg workingSegment, cfg config.SegmentConfig) []workingSegment {
	if len(seg.Text) <= cfg.HardCapChars {
		return []workingSegment{seg}
	}

	cut := findSplitPoint(seg.Text, cfg.HardCapChars)
	if cut <= 0 || cut >= len(seg.Text) {
		cut = cfg.HardCapChars
	}

	duration := seg.End - seg.Start
	splitT := seg.Start + duration*float64(cut)/float64(len(seg.Text))

	head := workingSegment{OptimizedSegment: seg.OptimizedSegment}
	head.Text = strings.TrimSpace(seg.Text[:cut])
	head.End = splitT

	tailText := seg.Text[cut:]
	overlapStart := max(0, cut-cfg.OverlapChars)
	tailWithOverlap := seg.Text[overlapStart:cut] + tailText

	tail := workingSegment{OptimizedSegment: seg.OptimizedSegment}
	tail.Text = strings.TrimSpace(tailWithOverlap)
	tail.Start = splitT

	return append([]workingSegment{head}, splitOne(tail, cfg)...)
}

// findSplitPoint looks for the rightmost sentence-ending punctuation mark
// at or before limit, falling back to a semicolon and then to the longest
// run of whitespace, in that priority order.
func findSplitPoint(text string, limit int) int {
	if limit >= len(text) {
		limit = len(text) - 1
	}

	for i := limit; i >= 0; i-- {
		for _, c := range sentenceEnders {
			if text[i] == c && i+1 <= len(text) {
				return i + 1
			}
		}
	}
	for i := limit; i >= 0; i-- {
		if text[i] == ';' {
			return i + 1
		}
	}

	bestStart, bestLen, runStart, runLen := -1, 0, -1, 0
	for i := 0; i <= limit && i < len(text); i++ {
		if text[i] == ' ' || text[i] == '\t' {
			if runStart == -1 {
				runStart = i
			}
			runLen++
		} else {
			if runLen > bestLen {
				bestStart, bestLen = runStart, runLen
			}
			runStart, runLen = -1, 0
		}
	}
	if runLen > bestLen {
		bestStart, bestLen = runStart, runLen
	}
	if bestStart >= 0 {
		return bestStart + bestLen
	}
	return limit
}

// deduplicate keeps only the first occurrence of each normalized text
// within the video, using the same normalization the database's unique
// constraint is built on.
func deduplicate(in []workingSegment) []workingSegment {
	seen := make(map[string]bool, len(in))
	out := make([]workingSegment, 0, len(in))
	for _, seg := range in {
		norm := postgres.NormalizeText(seg.Text)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		seg.normalized = norm
		out = append(out, seg)
	}
	return out
}

// coalesce merges any segment shorter than MinCoalesceChars into its
// same-speaker neighbour, preferring the following segment, ignoring the
// gap limit that the merge pass enforces. It still respects MaxDurationS.
// This fixes isolated acknowledgements ("Yeah.") stranded by a large gap
// from the rest of the conversation.
func coalesce(in []workingSegment, cfg config.SegmentConfig) []workingSegment {
	out := make([]workingSegment, 0, len(in))
	i := 0
	for i < len(in) {
		seg := in[i]
		if len(seg.Text) >= cfg.MinCoalesceChars || len(in) == 1 {
			out = append(out, seg)
			i++
			continue
		}

		if i+1 < len(in) && in[i+1].SpeakerLabel == seg.SpeakerLabel &&
			in[i+1].End-seg.Start <= cfg.MaxDurationS {
			next := in[i+1]
			next.Text = seg.Text + " " + next.Text
			next.Start = seg.Start
			next.normalized = postgres.NormalizeText(next.Text)
			in[i+1] = next
			i++
			continue
		}

		if len(out) > 0 && out[len(out)-1].SpeakerLabel == seg.SpeakerLabel &&
			seg.End-out[len(out)-1].Start <= cfg.MaxDurationS {
			prev := out[len(out)-1]
			prev.Text = prev.Text + " " + seg.Text
			prev.End = seg.End
			prev.normalized = postgres.NormalizeText(prev.Text)
			out[len(out)-1] = prev
			i++
			continue
		}

		out = append(out, seg)
		i++
	}
	return out
}

// defaultLabel rewrites any segment left with a null/empty speaker label:
// HOST when host identification is enabled and the channel is known
// host-dominant, UNKNOWN otherwise. Every application of this policy is
// reported through opts.OnDefaultLabelApplied for telemetry/logging.
func defaultLabel(in []workingSegment, opts Options) []types.OptimizedSegment {
	out := make([]types.OptimizedSegment, len(in))
	fallback := types.SpeakerUnknown
	if opts.SpeakerIDEnabled && opts.DefaultHostDominant {
		fallback = types.SpeakerHost
	}

	for i, seg := range in {
		if seg.SpeakerLabel == "" {
			seg.SpeakerLabel = fallback
			if opts.OnDefaultLabelApplied != nil {
				opts.OnDefaultLabelApplied(i, fallback)
			}
		}
		out[i] = seg.OptimizedSegment
	}
	return out
}

// checkInvariants verifies the postconditions every caller of Optimize is
// entitled to rely on: every segment labelled, no duplicate normalized text,
// length within the hard cap, timing monotonically non-decreasing.
func checkInvariants(segs []types.OptimizedSegment, cfg config.SegmentConfig) error {
	seen := make(map[string]bool, len(segs))
	lastEnd := -1.0
	for i, seg := range segs {
		if seg.SpeakerLabel == "" {
			return ingerr.NewOptimizerError("non-null label", fmt.Errorf("segment %d has an empty speaker label", i))
		}
		if len(seg.Text) > cfg.HardCapChars {
			return ingerr.NewOptimizerError("hard cap length", fmt.Errorf("segment %d length %d exceeds hard cap %d", i, len(seg.Text), cfg.HardCapChars))
		}
		if seg.Start < lastEnd {
			return ingerr.NewOptimizerError("monotonic timing", fmt.Errorf("segment %d starts at %f before prior segment ended at %f", i, seg.Start, lastEnd))
		}
		norm := postgres.NormalizeText(seg.Text)
		if seen[norm] {
			return ingerr.NewOptimizerError("unique normalized text", fmt.Errorf("segment %d duplicates normalized text %q", i, norm))
		}
		seen[norm] = true
		lastEnd = seg.End
	}
	return nil
}
