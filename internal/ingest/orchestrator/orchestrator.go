// Package orchestrator implements spec.md §4.1: the concurrent, bounded,
// GPU-aware pipeline that drives every VideoReference from discovery
// through persistence. Five bounded queues (Q_prefilter -> Q_audio ->
// Q_asr -> Q_embed -> Q_write) connect worker pools sized by
// config.PoolConfig; the Model Pool (internal/ingest/modelpool) arbitrates
// GPU memory across them. Workers never fail the whole run on a per-task
// error — only ConfigError/EnvironmentError or config.RunConfig.FailFast
// do that — so one bad video never stops the rest of the channel from
// ingesting.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingest/attribution"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingest/embedder"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingest/modelpool"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingest/optimizer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/diarization"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource"
	"github.com/chaffee-dev/chaffee-ingest/pkg/voiceprofile"
)

// SampleLoader decodes an audio file into mono float32 samples for
// attribution's monologue probe and diarizer. It is independent of
// whichever asr.Provider transcribes the same file, since that interface
// only ever returns text segments, never raw samples.
type SampleLoader func(path string) (samples []float32, sampleRate int, err error)

// IngestionSummary is the terminal report from one Run call, per spec.md
// §4.1's `run(video_source, config) -> IngestionSummary` contract.
type IngestionSummary struct {
	Stats     types.IngestionStats
	Duration  time.Duration
	Cancelled bool
}

// Store is the subset of pkg/store/postgres.Store the orchestrator needs:
// the prefilter's dedup check and the write stage's commit. Declared here,
// at the point of use, so tests can exercise the pipeline against a stub
// rather than a live database.
type Store interface {
	AlreadyIngested(ctx context.Context, sourceType types.SourceType, videoID string, profileVersion int) (bool, error)
	Commit(ctx context.Context, source types.Source, segments []types.OptimizedSegment) (types.CommitResult, error)
}

// Orchestrator wires every pipeline dependency together. Config, Source,
// Acquirer, Pool, Store and SampleLoader must be set before calling Run;
// Voices, Stats, TempRoot, Logger and OnTelemetry are optional.
type Orchestrator struct {
	Config   config.Config
	Source   videosource.Lister
	Acquirer audioacquirer.Acquirer
	Pool     *modelpool.Pool
	Voices   *voiceprofile.Store
	Store    Store
	Stats    *types.IngestionStats

	// SampleLoader decodes an AudioArtifact for attribution.
	SampleLoader SampleLoader

	// TempRoot is the parent directory under which each task gets its own
	// unique subdirectory, removed on every exit path. Defaults to
	// os.TempDir() if empty.
	TempRoot string

	Logger *slog.Logger

	// OnTelemetry, if set, is invoked with a stats snapshot every
	// config.Run.TelemetryInterval. It must not block: spec.md §4.1
	// requires sampling to never hold up pipeline work.
	OnTelemetry func(types.IngestionStats)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) profileVersion() int {
	if o.Voices == nil {
		return 0
	}
	if host := o.Voices.Host(); host != nil {
		return host.Version
	}
	return 0
}

func (o *Orchestrator) sourceType() types.SourceType {
	if o.Config.Source.Type == "local" {
		return types.SourceLocal
	}
	return types.SourceYouTube
}

// Run drives every VideoReference produced by o.Source through the
// pipeline and returns a summary once every task has reached a terminal
// state or the run was cancelled and its grace period elapsed.
func (o *Orchestrator) Run(ctx context.Context) (IngestionSummary, error) {
	start := time.Now()
	if o.Stats == nil {
		o.Stats = types.NewIngestionStats()
	}
	tempRoot := o.TempRoot
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}

	cap := o.Config.Pool.QueueCapacity
	if cap <= 0 {
		cap = 1
	}
	qPrefilter := make(chan types.VideoReference, cap)
	qAudio := make(chan *types.IngestionTask, cap)
	qASR := make(chan *types.IngestionTask, cap)
	qEmbed := make(chan *types.IngestionTask, cap)
	qWrite := make(chan *types.IngestionTask, cap)

	// runCtx is independent of ctx's Done channel so that external
	// cancellation drains in-flight work for the configured grace period
	// rather than instantly aborting every blocking call.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)
	done := make(chan struct{})
	cancelled := false

	go func() {
		select {
		case <-ctx.Done():
			cancelled = true
			grace := time.Duration(o.Config.Run.CancelGraceS) * time.Second
			if grace <= 0 {
				grace = 30 * time.Second
			}
			select {
			case <-done:
			case <-time.After(grace):
				o.logger().Warn("ingest: grace period elapsed, forcing cancellation", "grace", grace)
				cancelRun()
			}
		case <-done:
		}
	}()

	o.startTelemetry(gctx, done, map[string]chan struct{}{})
	_ = o.startQueueTelemetry(gctx, done, qPrefilter, qAudio, qASR, qEmbed, qWrite)

	g.Go(func() error { return o.feed(gctx, ctx.Done(), qPrefilter) })
	g.Go(func() error { return o.prefilter(gctx, tempRoot, qPrefilter, qAudio) })

	ioWorkers := max(1, o.Config.Pool.IOWorkers)
	for i := 0; i < ioWorkers; i++ {
		g.Go(func() error { return o.acquireAudio(gctx, qAudio, qASR) })
	}

	asrWorkers := max(1, o.Config.Pool.ASRWorkers)
	for i := 0; i < asrWorkers; i++ {
		g.Go(func() error { return o.transcribeAndOptimize(gctx, qASR, qEmbed) })
	}

	embedWorkers := max(1, o.Config.Pool.EmbedWorkers)
	for i := 0; i < embedWorkers; i++ {
		g.Go(func() error { return o.embed(gctx, qEmbed, qWrite) })
	}

	dbWorkers := max(1, o.Config.Pool.DBWorkers)
	for i := 0; i < dbWorkers; i++ {
		g.Go(func() error { return o.write(gctx, qWrite) })
	}

	err := g.Wait()
	close(done)

	summary := IngestionSummary{
		Stats:     o.Stats.Snapshot(),
		Duration:  time.Since(start),
		Cancelled: cancelled,
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return summary, err
	}
	return summary, nil
}

// feed lists every candidate video once and pushes it onto qPrefilter,
// honouring backpressure and both the hard cancellation (gctx) and the
// soft intake-stop signal (extCancelled) that lets in-flight work drain.
func (o *Orchestrator) feed(gctx context.Context, extCancelled <-chan struct{}, qPrefilter chan<- types.VideoReference) error {
	defer close(qPrefilter)

	refs, err := o.Source.List(gctx, o.Config.Source.Limit)
	if err != nil {
		return ingerr.NewEnvironmentError("video source listing failed", err)
	}

	for _, ref := range refs {
		select {
		case qPrefilter <- ref:
		case <-extCancelled:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	}
	return nil
}

// prefilter applies the cheap admission test from spec.md §4.1: reject
// videos outside the configured duration bounds or already persisted at
// the current profile version; everything else becomes an IngestionTask.
func (o *Orchestrator) prefilter(gctx context.Context, tempRoot string, qPrefilter <-chan types.VideoReference, qAudio chan<- *types.IngestionTask) error {
	defer close(qAudio)

	for ref := range qPrefilter {
		if gctx.Err() != nil {
			return gctx.Err()
		}

		if o.rejectedByDuration(ref) {
			o.Stats.RecordSkipped()
			continue
		}

		if o.Store != nil {
			already, err := o.Store.AlreadyIngested(gctx, o.sourceType(), ref.VideoID, o.profileVersion())
			if err != nil {
				o.logger().Warn("ingest: already-ingested check failed, proceeding anyway", "video_id", ref.VideoID, "error", err)
			} else if already {
				o.Stats.RecordSkipped()
				continue
			}
		}

		taskDir, err := os.MkdirTemp(tempRoot, "ingest-task-*")
		if err != nil {
			o.Stats.RecordFailure("AcquisitionError")
			continue
		}

		taskCtx := gctx
		var cancel context.CancelFunc = func() {}
		if timeout := o.Config.Run.TaskTimeoutS; timeout > 0 {
			taskCtx, cancel = context.WithTimeout(gctx, time.Duration(timeout)*time.Second)
		} else {
			taskCtx, cancel = context.WithCancel(gctx)
		}

		task := &types.IngestionTask{
			Ref:        ref,
			Stage:      types.StageAudio,
			StartedAt:  time.Now(),
			TempDir:    taskDir,
			Ctx:        taskCtx,
			CancelFunc: cancel,
		}

		o.Stats.IncAttempted()

		select {
		case qAudio <- task:
		case <-gctx.Done():
			o.cleanup(task)
			return gctx.Err()
		}
	}
	return nil
}

func (o *Orchestrator) rejectedByDuration(ref types.VideoReference) bool {
	d := float64(ref.DurationSeconds)
	if minS := o.Config.Source.SkipShorterThanS; minS > 0 && d < minS {
		return true
	}
	if maxS := o.Config.Source.SkipLongerThanS; maxS > 0 && d > maxS {
		return true
	}
	return false
}

func (o *Orchestrator) cleanup(task *types.IngestionTask) {
	if task.CancelFunc != nil {
		task.CancelFunc()
	}
	if task.TempDir != "" {
		_ = os.RemoveAll(task.TempDir)
	}
}

// acquireAudio drains qAudio, resolves each task's VideoReference to a
// local AudioArtifact, and forwards successes to qASR.
func (o *Orchestrator) acquireAudio(gctx context.Context, qAudio <-chan *types.IngestionTask, qASR chan<- *types.IngestionTask) error {
	for task := range qAudio {
		if gctx.Err() != nil {
			o.cleanup(task)
			continue
		}

		artifact, err := o.Acquirer.Acquire(task.Ctx, task.Ref, task.TempDir)
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}
		task.Artifact = artifact
		task.Stage = types.StageASR

		select {
		case qASR <- task:
		case <-gctx.Done():
			o.cleanup(task)
		}
	}
	return nil
}

// transcribeAndOptimize runs ASR, speaker attribution, and the Segment
// Optimizer inline (per spec.md §4.1: the optimizer is cheap and CPU-bound,
// so it is coupled to the ASR worker rather than given its own queue hop).
func (o *Orchestrator) transcribeAndOptimize(gctx context.Context, qASR <-chan *types.IngestionTask, qEmbed chan<- *types.IngestionTask) error {
	for task := range qASR {
		if gctx.Err() != nil {
			o.cleanup(task)
			continue
		}

		segments, modelID, err := o.transcribeWithDegradation(task.Ctx, task)
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}

		raw, err := o.attribute(task.Ctx, task, segments)
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}
		task.RawSegments = raw

		optimized, err := optimizer.Optimize(raw, optimizer.Options{
			Segment:             o.Config.Segment,
			DefaultHostDominant: o.Config.Attrib.DefaultHostDominant,
			SpeakerIDEnabled:    o.Config.Voices.EnableSpeakerID,
		})
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}
		task.OptimizedSegments = optimized
		task.Source = o.buildSource(task, modelID)
		task.Stage = types.StageEmbed

		select {
		case qEmbed <- task:
		case <-gctx.Done():
			o.cleanup(task)
		}
	}
	return nil
}

func (o *Orchestrator) transcribeWithDegradation(gctx context.Context, task *types.IngestionTask) ([]asr.Segment, string, error) {
	ladderLen := 8 // upper bound on degradation attempts; Degrade itself reports exhaustion.
	for attempt := 0; attempt < ladderLen; attempt++ {
		handle, err := o.Pool.AcquireASR(gctx)
		if err != nil {
			return nil, "", err
		}

		opts := asr.Options{
			ComputePrecision: handle.Params.ComputePrecision,
			ChunkLengthS:     handle.Params.ChunkLengthS,
			BeamSize:         o.Config.ASR.BeamSize,
		}
		segments, err := handle.Provider.Transcribe(gctx, task.Artifact, opts)
		modelID := handle.Provider.ModelID()
		handle.Release()

		if err == nil {
			return segments, modelID, nil
		}

		var modErr *ingerr.ModelError
		if errors.As(err, &modErr) && modErr.OOM {
			if degradeErr := o.Pool.Degrade(gctx); degradeErr != nil {
				return nil, "", degradeErr
			}
			o.logger().Warn("ingest: ASR OOM, stepping degradation ladder", "video_id", task.Ref.VideoID, "attempt", attempt)
			continue
		}
		return nil, "", err
	}
	return nil, "", ingerr.NewModelOOMError(fmt.Errorf("transcribe: degradation ladder exhausted after %d attempts", ladderLen))
}

func (o *Orchestrator) attribute(gctx context.Context, task *types.IngestionTask, segments []asr.Segment) ([]types.RawSegment, error) {
	if o.SampleLoader == nil {
		return nil, ingerr.NewEnvironmentError("no sample loader configured", nil)
	}
	samples, sampleRate, err := o.SampleLoader(task.Artifact.Path)
	if err != nil {
		return nil, ingerr.NewAcquisitionError(false, fmt.Errorf("decode audio for attribution: %w", err))
	}

	handle, err := o.Pool.AcquireSpeakerEmbedder(gctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	var guests []types.VoiceProfile
	if o.Voices != nil {
		guests = o.Voices.Guests()
	}
	var host *types.VoiceProfile
	if o.Voices != nil {
		host = o.Voices.Host()
	}

	attributor := attribution.New(handle.Embedder, diarization.New(handle.Embedder), host, guests, o.Config.Attrib)
	attributor.OnGuardrailFired = func(i int, reason string) {
		o.logger().Debug("ingest: attribution guardrail fired", "video_id", task.Ref.VideoID, "segment", i, "reason", reason)
	}

	return attributor.Attribute(gctx, samples, sampleRate, segments)
}

func (o *Orchestrator) buildSource(task *types.IngestionTask, modelID string) types.Source {
	ref := task.Ref
	return types.Source{
		SourceType:       o.sourceType(),
		VideoID:          ref.VideoID,
		Title:            ref.Title,
		PublishedAt:      ref.PublishedAt,
		DurationSeconds:  ref.DurationSeconds,
		ChannelName:      ref.ChannelName,
		ChannelURL:       ref.ChannelURL,
		ThumbnailURL:     ref.ThumbnailURL,
		LikeCount:        ref.LikeCount,
		CommentCount:     ref.CommentCount,
		Description:      ref.Description,
		Tags:             ref.Tags,
		URL:              ref.CanonicalURL,
		TranscriptMethod: "asr",
		ModelIdentifier:  modelID,
		ProfileVersion:   o.profileVersion(),
	}
}

// embed computes embeddings for a task's optimized segments, sharing the
// text-embedding model via the Model Pool.
func (o *Orchestrator) embed(gctx context.Context, qEmbed <-chan *types.IngestionTask, qWrite chan<- *types.IngestionTask) error {
	for task := range qEmbed {
		if gctx.Err() != nil {
			o.cleanup(task)
			continue
		}

		handle, err := o.Pool.AcquireEmbeddings(task.Ctx)
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}
		embedded, err := embedder.Embed(task.Ctx, handle.Provider, task.OptimizedSegments, o.Config.Embed.BatchSize)
		handle.Release()
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}
		task.OptimizedSegments = embedded
		task.Stage = types.StageWrite

		select {
		case qWrite <- task:
		case <-gctx.Done():
			o.cleanup(task)
		}
	}
	return nil
}

// write commits a task's source and segments, retrying transient database
// failures up to config.Run.IORetries times with exponential backoff and
// full jitter (the same shape pkg/audioacquirer.WithRetry uses for
// network retries).
func (o *Orchestrator) write(gctx context.Context, qWrite <-chan *types.IngestionTask) error {
	for task := range qWrite {
		if gctx.Err() != nil {
			o.cleanup(task)
			continue
		}

		result, err := o.commitWithRetry(task.Ctx, task)
		if err != nil {
			if ffErr := o.failTask(task, err); ffErr != nil {
				return ffErr
			}
			continue
		}

		o.Stats.RecordDuplicatesRemoved(result.SegmentsConflicted)
		o.Stats.RecordPersisted(task.Source.TranscriptMethod, len(task.OptimizedSegments), len(task.OptimizedSegments))

		task.Stage = types.StageDone
		o.cleanup(task)
	}
	return nil
}

func (o *Orchestrator) commitWithRetry(gctx context.Context, task *types.IngestionTask) (types.CommitResult, error) {
	maxAttempts := max(1, o.Config.Run.IORetries+1)
	backoff := 1.0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := o.Store.Commit(gctx, task.Source, task.OptimizedSegments)
		if err == nil {
			return result, nil
		}
		if !ingerr.IsRetriable(err) || attempt == maxAttempts-1 {
			return types.CommitResult{}, err
		}
		delay := time.Duration(rand.Float64() * backoff * float64(time.Second))
		select {
		case <-time.After(delay):
		case <-gctx.Done():
			return types.CommitResult{}, gctx.Err()
		}
		backoff = min(backoff*2, 30)
	}
	return types.CommitResult{}, fmt.Errorf("write: unreachable")
}

// failTask records and logs a terminal task failure, then cleans it up. It
// returns a non-nil error only when config.Run.FailFast is set, in which
// case the caller must return that error from its worker loop so errgroup
// cancels gctx and stops every other worker.
func (o *Orchestrator) failTask(task *types.IngestionTask, err error) error {
	kind := ingerr.Kind(err)
	o.Stats.RecordFailure(kind)
	task.Stage = types.StageFailed
	o.logger().Error("ingest: task failed", "video_id", task.Ref.VideoID, "stage", task.Stage.String(), "kind", kind, "error", err)
	o.cleanup(task)

	if o.Config.Run.FailFast {
		return fmt.Errorf("ingest: aborting run after failure on video %q: %w", task.Ref.VideoID, err)
	}
	return nil
}

// startTelemetry is reserved for GPU utilization sampling once a real
// sampler is wired in; no backend in this codebase currently exposes one,
// so it is a no-op placeholder kept separate from startQueueTelemetry so
// wiring one later doesn't touch queue-depth sampling.
func (o *Orchestrator) startTelemetry(gctx context.Context, done <-chan struct{}, _ map[string]chan struct{}) {
}

func (o *Orchestrator) startQueueTelemetry(gctx context.Context, done <-chan struct{}, qPrefilter chan types.VideoReference, qAudio, qASR, qEmbed, qWrite chan *types.IngestionTask) <-chan struct{} {
	interval := o.Config.Run.TelemetryInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.Stats.SetQueueDepth("prefilter", len(qPrefilter))
				o.Stats.SetQueueDepth("audio", len(qAudio))
				o.Stats.SetQueueDepth("asr", len(qASR))
				o.Stats.SetQueueDepth("embed", len(qEmbed))
				o.Stats.SetQueueDepth("write", len(qWrite))
				if o.OnTelemetry != nil {
					o.OnTelemetry(o.Stats.Snapshot())
				}
			case <-done:
				return
			case <-gctx.Done():
				return
			}
		}
	}()
	return stopped
}
