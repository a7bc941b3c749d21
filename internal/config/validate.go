package config

import (
	"errors"
	"fmt"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
)

// Validate checks that cfg contains a coherent set of values. It returns a
// joined [ingerr.ConfigError] list if anything is wrong; nil otherwise.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, ingerr.NewConfigError("server.log_level",
			fmt.Errorf("%q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)))
	}

	switch cfg.Source.Type {
	case "youtube":
		if cfg.Source.Channel == "" {
			errs = append(errs, ingerr.NewConfigError("source.channel", errors.New("required when source.type is youtube")))
		}
	case "local":
		if cfg.Source.LocalDir == "" {
			errs = append(errs, ingerr.NewConfigError("source.local_dir", errors.New("required when source.type is local")))
		}
	default:
		errs = append(errs, ingerr.NewConfigError("source.type",
			fmt.Errorf("%q is invalid; valid values: youtube, local", cfg.Source.Type)))
	}

	if cfg.Voices.EnableSpeakerID && cfg.Voices.Dir == "" {
		errs = append(errs, ingerr.NewConfigError("voices.dir", errors.New("required when voices.enable_speaker_id is true")))
	}

	if cfg.Voices.AllowExternalCaptions && cfg.Voices.EnableSpeakerID {
		errs = append(errs, ingerr.NewConfigError("voices.allow_external_captions",
			errors.New("forbidden together with voices.enable_speaker_id; spec requires speaker ID disabled to permit caption bypass")))
	}

	if cfg.Attrib.AttrMargin <= 0 {
		errs = append(errs, ingerr.NewConfigError("attribution.attr_margin", errors.New("must be > 0")))
	}
	if cfg.Attrib.HostMinSim <= 0 || cfg.Attrib.HostMinSim > 1 {
		errs = append(errs, ingerr.NewConfigError("attribution.host_min_sim", errors.New("must be in (0, 1]")))
	}

	if cfg.Segment.MinChars <= 0 {
		errs = append(errs, ingerr.NewConfigError("segment.min_chars", errors.New("must be > 0")))
	}
	if cfg.Segment.MaxChars < cfg.Segment.MinChars {
		errs = append(errs, ingerr.NewConfigError("segment.max_chars", errors.New("must be >= segment.min_chars")))
	}
	if cfg.Segment.HardCapChars < cfg.Segment.MaxChars {
		errs = append(errs, ingerr.NewConfigError("segment.hard_cap_chars", errors.New("must be >= segment.max_chars")))
	}
	if cfg.Segment.OverlapChars < 0 {
		errs = append(errs, ingerr.NewConfigError("segment.overlap_chars", errors.New("must be >= 0")))
	}

	if cfg.Embed.Dimension <= 0 {
		errs = append(errs, ingerr.NewConfigError("embedding.dimension", errors.New("must be > 0")))
	}
	if cfg.Embed.BatchSize <= 0 {
		errs = append(errs, ingerr.NewConfigError("embedding.batch_size", errors.New("must be > 0")))
	}
	switch cfg.Embed.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, ingerr.NewConfigError("embedding.provider",
			fmt.Errorf("%q is invalid; valid values: openai, ollama", cfg.Embed.Provider)))
	}

	if cfg.Pool.IOWorkers <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.io_workers", errors.New("must be > 0")))
	}
	if cfg.Pool.ASRWorkers <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.asr_workers", errors.New("must be > 0")))
	}
	if cfg.Pool.EmbedWorkers <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.embed_workers", errors.New("must be > 0")))
	}
	if cfg.Pool.DBWorkers <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.db_workers", errors.New("must be > 0")))
	}
	if cfg.Pool.QueueCapacity <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.queue_capacity", errors.New("must be > 0")))
	}
	if cfg.Pool.MaxInFlight <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.max_in_flight", errors.New("must be > 0")))
	}
	if cfg.Pool.VRAMBudgetBytes <= 0 {
		errs = append(errs, ingerr.NewConfigError("pool.vram_budget_bytes", errors.New("must be > 0")))
	}

	if cfg.Store.PostgresDSN == "" {
		errs = append(errs, ingerr.NewConfigError("store.postgres_dsn", errors.New("required")))
	}

	if cfg.Run.IORetries < 0 {
		errs = append(errs, ingerr.NewConfigError("run.io_retries", errors.New("must be >= 0")))
	}
	if cfg.Run.TaskTimeoutS <= 0 {
		errs = append(errs, ingerr.NewConfigError("run.task_timeout_s", errors.New("must be > 0")))
	}

	return errors.Join(errs...)
}
