// Package types defines the shared data model used across all chaffee-ingest
// packages: video references, persisted sources, raw and optimized
// transcript segments, voice profiles, and the in-memory task/stats types
// that flow through the orchestrator.
//
// These types are intentionally minimal — each package defines its own
// internal types, but cross-cutting data structures live here to avoid
// circular imports between providers, the store, and the orchestrator.
package types

import (
	"context"
	"sync"
	"time"
)

// SourceType identifies where a VideoReference originated.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourceLocal   SourceType = "local"
)

// SpeakerLabel is the closed set of speaker attributions a segment may carry.
type SpeakerLabel string

const (
	SpeakerHost    SpeakerLabel = "HOST"
	SpeakerGuest   SpeakerLabel = "GUEST"
	SpeakerUnknown SpeakerLabel = "UNKNOWN"
)

// IsValid reports whether l is one of the three recognized speaker labels.
func (l SpeakerLabel) IsValid() bool {
	switch l {
	case SpeakerHost, SpeakerGuest, SpeakerUnknown:
		return true
	default:
		return false
	}
}

// VideoReference identifies one unit of source video content. It is
// immutable once created; VideoID is globally unique within its SourceType.
type VideoReference struct {
	VideoID         string
	SourceType      SourceType
	Title           string
	DurationSeconds int
	PublishedAt     time.Time
	ChannelName     string
	ChannelURL      string
	Tags            []string
	ThumbnailURL    string
	LikeCount       int
	CommentCount    int
	Description     string
	CanonicalURL    string

	// LocalPath is set by the local-file listing adapter; empty for
	// remote sources where the Audio Acquirer resolves the media itself.
	LocalPath string
}

// AudioArtifact is the output of the Audio Acquirer: a local, normalized
// (mono, fixed sample rate, PCM) audio file plus its measured duration.
// Path lives under a task-unique temporary directory that the caller is
// responsible for removing once the task completes.
type AudioArtifact struct {
	Path            string
	DurationSeconds float64
	SampleRate      int
	Channels        int
}

// Source is the persisted projection of a VideoReference plus ingestion
// provenance. There is exactly one Source per (SourceType, VideoID).
type Source struct {
	ID               int64
	SourceType       SourceType
	VideoID          string
	Title            string
	PublishedAt      time.Time
	DurationSeconds  int
	ViewCount        int
	ChannelName      string
	ChannelURL       string
	ThumbnailURL     string
	LikeCount        int
	CommentCount     int
	Description      string
	Tags             []string
	URL              string
	Metadata         map[string]any
	TranscriptMethod string
	ModelIdentifier  string
	ProfileVersion   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RawSegment is ASR output before optimization. Transient — never
// persisted directly. Within a single video, Start is monotonically
// non-decreasing across a RawSegment slice in emission order.
type RawSegment struct {
	Start              float64
	End                float64
	Text               string
	SpeakerLabel       SpeakerLabel
	SpeakerConfidence  float64
	AvgLogprob         float64
	CompressionRatio   float64
	NoSpeechProb       float64
	TemperatureUsed    float64
	IsOverlap          bool
	NeedsRefinement    bool
	SourceKind         string // "asr" today; reserved for future caption producers
}

// OptimizedSegment is a retrieval-sized, speaker-homogeneous, deduplicated
// unit of transcript with a dense embedding attached.
type OptimizedSegment struct {
	Start                         float64
	End                           float64
	Text                          string
	SpeakerLabel                  SpeakerLabel
	SpeakerConfidence             float64
	AvgLogprob                    float64
	CompressionRatio              float64
	NoSpeechProb                  float64
	IsOverlap                     bool
	Embedding                     []float32
	AttributedWithProfileVersion  int
}

// VoiceProfile is a persisted, read-only centroid embedding for an
// enrolled speaker (host or guest).
type VoiceProfile struct {
	Name         string
	Centroid     []float32
	SampleCount  int
	ThresholdHint float64
	Version      int
}

// CommitResult reports the outcome of a Store Writer commit.
type CommitResult struct {
	SourceID          int64
	SegmentsInserted  int
	SegmentsConflicted int
}

// IngestionTask is in-memory bookkeeping for a single VideoReference as it
// moves through the pipeline. It is owned exclusively by whichever worker
// currently holds it; ownership transfers across queue handoffs.
type IngestionTask struct {
	Ref        VideoReference
	Stage      Stage
	Attempt    int
	StartedAt  time.Time
	TempDir    string
	Ctx        context.Context
	CancelFunc context.CancelFunc

	Artifact          *AudioArtifact
	RawSegments       []RawSegment
	OptimizedSegments []OptimizedSegment
	Source            Source
}

// Stage enumerates the pipeline stage a task currently occupies.
type Stage int

const (
	StagePrefilter Stage = iota
	StageAudio
	StageASR
	StageEmbed
	StageWrite
	StageDone
	StageFailed
	StageCancelled
)

func (s Stage) String() string {
	switch s {
	case StagePrefilter:
		return "prefilter"
	case StageAudio:
		return "audio"
	case StageASR:
		return "asr"
	case StageEmbed:
		return "embed"
	case StageWrite:
		return "write"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IngestionStats holds process-wide counters guarded by a mutex. Updated at
// coarse (per-task, per-batch) granularity by the orchestrator and workers.
type IngestionStats struct {
	mu sync.Mutex

	Attempted         int
	Persisted         int
	Skipped           int
	Failed            int
	Cancelled         int
	SegmentsProduced  int
	SegmentsEmbedded  int
	DuplicatesRemoved int

	ByTranscriptMethod map[string]int
	ByFailureKind      map[string]int
	QueueDepths        map[string]int
	GPUUtilSamples     []float64
}

// NewIngestionStats returns a zero-valued, ready-to-use IngestionStats.
func NewIngestionStats() *IngestionStats {
	return &IngestionStats{
		ByTranscriptMethod: make(map[string]int),
		ByFailureKind:      make(map[string]int),
		QueueDepths:        make(map[string]int),
	}
}

// IncAttempted increments the attempted counter by one.
func (s *IngestionStats) IncAttempted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempted++
}

// RecordPersisted records one successfully persisted video with its
// transcript method and segment counts.
func (s *IngestionStats) RecordPersisted(method string, segmentsProduced, segmentsEmbedded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Persisted++
	s.SegmentsProduced += segmentsProduced
	s.SegmentsEmbedded += segmentsEmbedded
	s.ByTranscriptMethod[method]++
}

// RecordFailure records one terminally failed task under the given
// classification kind (e.g. "AcquisitionError", "ModelError").
func (s *IngestionStats) RecordFailure(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.ByFailureKind[kind]++
}

// RecordSkipped records one video rejected by the prefilter.
func (s *IngestionStats) RecordSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
}

// RecordCancelled records one task discarded due to cancellation.
func (s *IngestionStats) RecordCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancelled++
}

// RecordDuplicatesRemoved adds n to the running duplicate-segment counter.
func (s *IngestionStats) RecordDuplicatesRemoved(n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DuplicatesRemoved += n
}

// SetQueueDepth records the most recent observed depth of a named queue.
func (s *IngestionStats) SetQueueDepth(queue string, depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueueDepths[queue] = depth
}

// RecordGPUUtilSample appends a GPU utilization sample in [0,1].
func (s *IngestionStats) RecordGPUUtilSample(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GPUUtilSamples = append(s.GPUUtilSamples, v)
}

// Snapshot returns a point-in-time copy safe to read without holding the lock.
func (s *IngestionStats) Snapshot() IngestionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := IngestionStats{
		Attempted:          s.Attempted,
		Persisted:          s.Persisted,
		Skipped:            s.Skipped,
		Failed:             s.Failed,
		Cancelled:          s.Cancelled,
		SegmentsProduced:   s.SegmentsProduced,
		SegmentsEmbedded:   s.SegmentsEmbedded,
		DuplicatesRemoved:  s.DuplicatesRemoved,
		ByTranscriptMethod: make(map[string]int, len(s.ByTranscriptMethod)),
		ByFailureKind:      make(map[string]int, len(s.ByFailureKind)),
		QueueDepths:        make(map[string]int, len(s.QueueDepths)),
		GPUUtilSamples:     append([]float64(nil), s.GPUUtilSamples...),
	}
	for k, v := range s.ByTranscriptMethod {
		out.ByTranscriptMethod[k] = v
	}
	for k, v := range s.ByFailureKind {
		out.ByFailureKind[k] = v
	}
	for k, v := range s.QueueDepths {
		out.QueueDepths[k] = v
	}
	return out
}
