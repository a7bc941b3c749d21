// Command ingest is the main entry point for the chaffee-ingest pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaffee-dev/chaffee-ingest/internal/app"
	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource/local"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource/youtube"
)

// Exit codes per spec.md §6.
const (
	exitSuccess        = 0
	exitPartialFailure = 1
	exitConfigError    = 2
	exitEnvironmentErr = 3
	exitCancelled      = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitConfigError
	}

	switch args[0] {
	case "run":
		return runIngest(args[1:])
	case "validate-config":
		return runValidateConfig(args[1:])
	case "list-pending":
		return runListPending(args[1:])
	case "-h", "--help", "help":
		usage()
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "ingest: unknown subcommand %q\n", args[0])
		usage()
		return exitConfigError
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: ingest <subcommand> [flags]

subcommands:
  run              run one ingestion pass to completion
  validate-config  load and validate the configuration file, then exit
  list-pending     list the videos the prefilter would accept, without acquiring audio`)
}

// cliFlags bundles the overlay flags shared by run and list-pending. Flags
// set on the command line take precedence over config.yaml and environment
// variables, mirroring the YAML-then-env overlay order in config.Load.
type cliFlags struct {
	configPath            string
	source                string
	channel               string
	limit                 int
	voicesDir             string
	allowExternalCaptions bool
	forceFullASR          bool
}

func parseCLIFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "config.yaml", "path to the YAML configuration file")
	fs.StringVar(&f.source, "source", "", "video source adapter: yt or local (overrides config)")
	fs.StringVar(&f.channel, "channel", "", "channel URL/ID (youtube) or directory (local) (overrides config)")
	fs.IntVar(&f.limit, "limit", 0, "cap the number of videos pulled from the source (0 = unlimited)")
	fs.StringVar(&f.voicesDir, "voices-dir", "", "directory of enrolled speaker profiles (overrides config)")
	fs.BoolVar(&f.allowExternalCaptions, "allow-external-captions", false, "permit caption-sourced transcripts when speaker ID is disabled")
	fs.BoolVar(&f.forceFullASR, "force-full-asr", false, "always re-run ASR instead of trusting external captions")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// applyCLIFlags overlays non-zero-value flags onto cfg, completing the
// YAML -> env -> CLI precedence chain that config.Load starts.
func applyCLIFlags(cfg *config.Config, f *cliFlags) {
	switch f.source {
	case "yt":
		cfg.Source.Type = "youtube"
	case "local":
		cfg.Source.Type = "local"
	case "":
	default:
		cfg.Source.Type = f.source
	}
	if f.channel != "" {
		cfg.Source.Channel = f.channel
		cfg.Source.LocalDir = f.channel
	}
	if f.limit != 0 {
		cfg.Source.Limit = f.limit
	}
	if f.voicesDir != "" {
		cfg.Voices.Dir = f.voicesDir
	}
	if f.allowExternalCaptions {
		cfg.Voices.AllowExternalCaptions = true
	}
	if f.forceFullASR {
		cfg.ASR.ForceFullASR = true
	}
}

// loadAndValidate loads cfg from configPath, overlays CLI flags, and
// validates the result. The returned int is the process exit code to use if
// err is non-nil; callers that succeed should ignore it.
func loadAndValidate(f *cliFlags) (*config.Config, int, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitConfigError, fmt.Errorf("config file %q not found — copy configs/example.yaml to get started", f.configPath)
		}
		return nil, exitConfigError, err
	}

	applyCLIFlags(cfg, f)

	if err := config.Validate(cfg); err != nil {
		return nil, exitConfigError, err
	}
	return cfg, exitSuccess, nil
}

func runValidateConfig(args []string) int {
	fs := flag.NewFlagSet("validate-config", flag.ContinueOnError)
	f, err := parseCLIFlags(fs, args)
	if err != nil {
		return exitConfigError
	}

	if _, code, err := loadAndValidate(f); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		return code
	}

	fmt.Println("configuration is valid")
	return exitSuccess
}

func runListPending(args []string) int {
	fs := flag.NewFlagSet("list-pending", flag.ContinueOnError)
	f, err := parseCLIFlags(fs, args)
	if err != nil {
		return exitConfigError
	}

	cfg, code, err := loadAndValidate(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		return code
	}

	lister, err := buildSource(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		return exitCodeForErr(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refs, err := lister.List(ctx, cfg.Source.Limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: list videos: %v\n", err)
		return exitCodeForErr(err)
	}

	for _, ref := range refs {
		if rejectedByDuration(cfg, ref) {
			continue
		}
		fmt.Printf("%s\t%s\t%ds\t%s\n", ref.VideoID, ref.Title, ref.DurationSeconds, ref.PublishedAt.Format(time.RFC3339))
	}
	return exitSuccess
}

// buildSource mirrors internal/app.initSource's adapter selection. Kept as
// a small standalone switch rather than reusing the App so list-pending
// never opens a store connection or loads a model.
func buildSource(cfg *config.Config) (videosource.Lister, error) {
	switch cfg.Source.Type {
	case "local":
		return local.New(cfg.Source.LocalDir)
	case "youtube", "":
		return youtube.New(cfg.Source.APIKey, cfg.Source.Channel)
	default:
		return nil, ingerr.NewConfigError("source.type", fmt.Errorf("unknown source type %q", cfg.Source.Type))
	}
}

// rejectedByDuration mirrors the orchestrator's prefilter so list-pending
// reports the same worklist the run subcommand would actually acquire.
func rejectedByDuration(cfg *config.Config, ref types.VideoReference) bool {
	d := float64(ref.DurationSeconds)
	if minS := cfg.Source.SkipShorterThanS; minS > 0 && d < minS {
		return true
	}
	if maxS := cfg.Source.SkipLongerThanS; maxS > 0 && d > maxS {
		return true
	}
	return false
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	f, err := parseCLIFlags(fs, args)
	if err != nil {
		return exitConfigError
	}

	cfg, code, err := loadAndValidate(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		return code
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("ingest starting",
		"config", f.configPath,
		"source_type", cfg.Source.Type,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		slog.Error("failed to initialize application", "err", err)
		return exitCodeForErr(err)
	}

	slog.Info("ingest ready — press Ctrl+C to cancel")

	summary, runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	switch {
	case errors.Is(runErr, context.Canceled), summary.Cancelled:
		slog.Info("ingest cancelled", "persisted", summary.Stats.Persisted)
		return exitCancelled
	case runErr != nil:
		slog.Error("run error", "err", runErr)
		return exitCodeForErr(runErr)
	case summary.Stats.Failed > 0:
		slog.Warn("ingest finished with failures",
			"persisted", summary.Stats.Persisted,
			"failed", summary.Stats.Failed,
			"skipped", summary.Stats.Skipped,
		)
		return exitPartialFailure
	default:
		slog.Info("ingest finished",
			"persisted", summary.Stats.Persisted,
			"skipped", summary.Stats.Skipped,
			"duration", summary.Duration,
		)
		return exitSuccess
	}
}

// exitCodeForErr maps a fatal error to its exit code per spec.md §6.
// Non-fatal errors (which app.New / Run should not return outside the
// ConfigError/EnvironmentError taxonomy) fall back to the partial-failure
// code rather than silently succeeding.
func exitCodeForErr(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	switch ingerr.Kind(err) {
	case "ConfigError":
		return exitConfigError
	case "EnvironmentError":
		return exitEnvironmentErr
	default:
		if ingerr.IsFatal(err) {
			return exitEnvironmentErr
		}
		return exitPartialFailure
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
