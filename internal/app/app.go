// Package app wires the chaffee-ingest subsystems into a runnable
// application.
//
// The App struct owns the full lifecycle: New constructs and connects every
// subsystem (store, video source, audio acquirer, voice profiles, the Model
// Pool, and the orchestrator), Run drives one ingestion pass to completion,
// and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithSource, etc.). When an option is not provided, New builds the real
// implementation selected by config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/health"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingest/modelpool"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingest/orchestrator"
	"github.com/chaffee-dev/chaffee-ingest/internal/observe"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer/localfile"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer/ytdlp"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr/whisper"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/embeddings"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/embeddings/ollama"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/embeddings/openai"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed/spectral"
	"github.com/chaffee-dev/chaffee-ingest/pkg/store/postgres"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource/local"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource/youtube"
	"github.com/chaffee-dev/chaffee-ingest/pkg/voiceprofile"
)

// whisperSampleRate is the sample rate whisper.cpp models expect and the
// rate pkg/provider/asr/whisper.LoadWAV decodes every artifact to; the
// spectral speaker encoder must agree with it since both read the same
// decoded samples during attribution.
const whisperSampleRate = 16000

// App owns every subsystem's lifetime and drives one ingestion run.
type App struct {
	cfg *config.Config

	store    orchestrator.Store
	pgStore  *postgres.Store
	source   videosource.Lister
	acquirer audioacquirer.Acquirer
	voices   *voiceprofile.Store
	pool     *modelpool.Pool
	orch     *orchestrator.Orchestrator

	metrics *observe.Metrics
	httpSrv *http.Server

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of connecting to config.Store.PostgresDSN.
func WithStore(s orchestrator.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSource injects a video source lister instead of building one from config.Source.
func WithSource(s videosource.Lister) Option {
	return func(a *App) { a.source = s }
}

// WithAcquirer injects an audio acquirer instead of building one from config.Source.
func WithAcquirer(ac audioacquirer.Acquirer) Option {
	return func(a *App) { a.acquirer = ac }
}

// WithVoices injects a voice profile store instead of loading config.Voices.Dir.
func WithVoices(v *voiceprofile.Store) Option {
	return func(a *App) { a.voices = v }
}

// WithPool injects a Model Pool instead of constructing one from config.
func WithPool(p *modelpool.Pool) Option {
	return func(a *App) { a.pool = p }
}

// New constructs an App by wiring every subsystem together. Construction is
// synchronous: store connection + migration, voice profile loading, and
// Model Pool assembly (which does not itself load any model — loading is
// lazy per spec.md §4.7) all happen here. Use Option functions to inject
// test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, metrics: observe.DefaultMetrics()}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init source: %w", err)
	}
	if err := a.initAcquirer(); err != nil {
		return nil, fmt.Errorf("app: init acquirer: %w", err)
	}
	if err := a.initVoices(); err != nil {
		return nil, fmt.Errorf("app: init voices: %w", err)
	}
	if err := a.initPool(); err != nil {
		return nil, fmt.Errorf("app: init model pool: %w", err)
	}

	a.orch = &orchestrator.Orchestrator{
		Config:       *cfg,
		Source:       a.source,
		Acquirer:     a.acquirer,
		Pool:         a.pool,
		Voices:       a.voices,
		Store:        a.store,
		Stats:        types.NewIngestionStats(),
		SampleLoader: whisper.LoadWAV,
		Logger:       slog.Default(),
		OnTelemetry:  a.recordTelemetry,
	}

	a.initHTTPServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Store.PostgresDSN == "" {
		return ingerr.NewConfigError("store.postgres_dsn", fmt.Errorf("required when no store is injected"))
	}

	dims := a.cfg.Embed.Dimension
	if dims == 0 {
		dims = 1536
	}

	store, err := postgres.NewStore(ctx, a.cfg.Store.PostgresDSN, dims)
	if err != nil {
		return err
	}
	a.pgStore = store
	a.store = store
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	return nil
}

func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	switch a.cfg.Source.Type {
	case "local":
		lister, err := local.New(a.cfg.Source.LocalDir)
		if err != nil {
			return err
		}
		a.source = lister
	case "youtube", "":
		lister, err := youtube.New(a.cfg.Source.APIKey, a.cfg.Source.Channel)
		if err != nil {
			return err
		}
		a.source = lister
	default:
		return ingerr.NewConfigError("source.type", fmt.Errorf("unknown source type %q", a.cfg.Source.Type))
	}
	return nil
}

func (a *App) initAcquirer() error {
	if a.acquirer != nil {
		return nil
	}
	retry := audioacquirer.DefaultRetryPolicy(a.cfg.Run.IORetries)
	switch a.cfg.Source.Type {
	case "local":
		a.acquirer = localfile.New(retry)
	case "youtube", "":
		a.acquirer = ytdlp.New(retry)
	default:
		return ingerr.NewConfigError("source.type", fmt.Errorf("unknown source type %q", a.cfg.Source.Type))
	}
	return nil
}

func (a *App) initVoices() error {
	if a.voices != nil {
		return nil
	}
	if a.cfg.Voices.Dir == "" {
		if a.cfg.Voices.EnableSpeakerID {
			return ingerr.NewConfigError("voices.dir", fmt.Errorf("required when voices.enable_speaker_id is true"))
		}
		return nil
	}
	voices, err := voiceprofile.LoadDir(a.cfg.Voices.Dir, a.cfg.Voices.EnableSpeakerID)
	if err != nil {
		return err
	}
	a.voices = voices
	return nil
}

// buildEmbeddingsProvider constructs the configured text-embedding provider.
func buildEmbeddingsProvider(cfg config.EmbedConfig) (embeddings.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.New(cfg.BaseURL, cfg.ModelIdentifier)
	case "openai", "":
		opts := []openai.Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.ModelIdentifier, opts...)
	default:
		return nil, ingerr.NewConfigError("embedding.provider", fmt.Errorf("unknown embedding provider %q", cfg.Provider))
	}
}

// asrFactory wraps pkg/provider/asr/whisper.New so the Model Pool stays
// backend-agnostic. Each ladder rung loads its own whisper.cpp model
// instance — ModelIdentifier names the .bin file, per spec.md §4.7.
func asrFactory(params modelpool.ASRParams) (asr.Provider, error) {
	return whisper.New(params.ModelIdentifier)
}

func (a *App) initPool() error {
	if a.pool != nil {
		return nil
	}

	embedModel, err := buildEmbeddingsProvider(a.cfg.Embed)
	if err != nil {
		return err
	}

	speakerEnc := speakerembed.Embedder(spectral.NewEncoder(whisperSampleRate))

	ladder := modelpool.DefaultLadder(a.cfg.ASR, "")
	costs := modelpool.Costs{
		ASR:          a.cfg.Pool.VRAMBudgetBytes / 2,
		SpeakerEmbed: a.cfg.Pool.VRAMBudgetBytes / 8,
		Embeddings:   a.cfg.Pool.VRAMBudgetBytes / 8,
	}

	pool, err := modelpool.New(a.cfg.Pool.VRAMBudgetBytes, costs, asrFactory, ladder, speakerEnc, embedModel)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return nil
}

func (a *App) initHTTPServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	checkers := []health.Checker{
		{Name: "store", Check: func(ctx context.Context) error {
			if a.pgStore == nil {
				return nil
			}
			return a.pgStore.Ping(ctx)
		}},
	}
	h := health.New(checkers...)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/readyz", h.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
	a.closers = append(a.closers, func() error {
		return a.httpSrv.Shutdown(context.Background())
	})
}

// recordTelemetry forwards a stats snapshot's queue depths to the
// queue-depth gauge; segment and task counters are not updated here. It is
// called at config.Run.TelemetryInterval and
// must never block, per spec.md §4.1.
func (a *App) recordTelemetry(stats types.IngestionStats) {
	ctx := context.Background()
	for queue, depth := range stats.QueueDepths {
		a.metrics.SetQueueDepth(ctx, queue, depth)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the persistent store.
func (a *App) Store() orchestrator.Store { return a.store }

// Voices returns the loaded voice profile store. May be nil if no voices
// directory is configured.
func (a *App) Voices() *voiceprofile.Store { return a.voices }

// Pool returns the Model Pool.
func (a *App) Pool() *modelpool.Pool { return a.pool }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP server (if configured) and drives one ingestion pass
// to completion, returning the terminal summary. It blocks until the
// orchestrator's Run returns — on success, on a fatal ConfigError or
// EnvironmentError, or on ctx cancellation followed by its grace period.
func (a *App) Run(ctx context.Context) (orchestrator.IngestionSummary, error) {
	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("app: http server failed", "err", err)
			}
		}()
		slog.Info("app: http server listening", "addr", a.httpSrv.Addr)
	}

	slog.Info("app: ingestion run starting",
		"source_type", a.cfg.Source.Type,
		"io_workers", a.cfg.Pool.IOWorkers,
		"asr_workers", a.cfg.Pool.ASRWorkers,
		"embed_workers", a.cfg.Pool.EmbedWorkers,
		"db_workers", a.cfg.Pool.DBWorkers,
	)

	summary, err := a.orch.Run(ctx)

	slog.Info("app: ingestion run finished",
		"duration", summary.Duration,
		"cancelled", summary.Cancelled,
		"persisted", summary.Stats.Persisted,
		"skipped", summary.Stats.Skipped,
		"failed", summary.Stats.Failed,
	)

	return summary, err
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
