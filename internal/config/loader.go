package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
)

// Load reads the YAML configuration file at path, overlays environment
// variables, and returns a validated [Config]. It is the sole entry point
// main uses to build configuration: read once, validated, frozen.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Defaults], applies
// environment variable overrides, and validates the result. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ingerr.NewConfigError("yaml", fmt.Errorf("decode: %w", err))
	}

	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envPrefix is prepended to every mirrored environment variable name.
const envPrefix = "CHAFFEE_INGEST_"

// ApplyEnv overlays environment variables onto cfg, following the mapping
// documented in SPEC_FULL.md §10.3: CHAFFEE_INGEST_<SECTION>_<FIELD>. Env
// vars take precedence over whatever the YAML file set; unset variables
// leave the existing value untouched.
func ApplyEnv(cfg *Config) {
	getEnvString(envPrefix+"SERVER_LISTEN_ADDR", &cfg.Server.ListenAddr)
	getEnvLogLevel(envPrefix+"SERVER_LOG_LEVEL", &cfg.Server.LogLevel)

	getEnvString(envPrefix+"SOURCE_TYPE", &cfg.Source.Type)
	getEnvString(envPrefix+"SOURCE_CHANNEL", &cfg.Source.Channel)
	getEnvString(envPrefix+"SOURCE_LOCAL_DIR", &cfg.Source.LocalDir)
	getEnvInt(envPrefix+"SOURCE_LIMIT", &cfg.Source.Limit)
	getEnvString(envPrefix+"SOURCE_API_KEY", &cfg.Source.APIKey)
	getEnvFloat(envPrefix+"SOURCE_SKIP_SHORTER_THAN_S", &cfg.Source.SkipShorterThanS)
	getEnvFloat(envPrefix+"SOURCE_SKIP_LONGER_THAN_S", &cfg.Source.SkipLongerThanS)

	getEnvString(envPrefix+"VOICES_DIR", &cfg.Voices.Dir)
	getEnvBool(envPrefix+"VOICES_ENABLE_SPEAKER_ID", &cfg.Voices.EnableSpeakerID)
	getEnvBool(envPrefix+"VOICES_ALLOW_EXTERNAL_CAPTIONS", &cfg.Voices.AllowExternalCaptions)

	getEnvFloat(envPrefix+"ATTRIBUTION_HOST_MIN_SIM", &cfg.Attrib.HostMinSim)
	getEnvFloat(envPrefix+"ATTRIBUTION_GUEST_MIN_SIM", &cfg.Attrib.GuestMinSim)
	getEnvFloat(envPrefix+"ATTRIBUTION_ATTR_MARGIN", &cfg.Attrib.AttrMargin)
	getEnvFloat(envPrefix+"ATTRIBUTION_OVERLAP_BONUS", &cfg.Attrib.OverlapBonus)
	getEnvFloat(envPrefix+"ATTRIBUTION_MONOLOGUE_BONUS", &cfg.Attrib.MonologueBonus)
	getEnvFloat(envPrefix+"ATTRIBUTION_MIN_ATTRIBUTION_DURATION_S", &cfg.Attrib.MinAttributionDuration)
	getEnvBool(envPrefix+"ATTRIBUTION_DEFAULT_HOST_DOMINANT", &cfg.Attrib.DefaultHostDominant)

	getEnvInt(envPrefix+"SEGMENT_MIN_CHARS", &cfg.Segment.MinChars)
	getEnvInt(envPrefix+"SEGMENT_MAX_CHARS", &cfg.Segment.MaxChars)
	getEnvInt(envPrefix+"SEGMENT_HARD_CAP_CHARS", &cfg.Segment.HardCapChars)
	getEnvInt(envPrefix+"SEGMENT_OVERLAP_CHARS", &cfg.Segment.OverlapChars)
	getEnvFloat(envPrefix+"SEGMENT_MAX_GAP_S", &cfg.Segment.MaxGapS)
	getEnvFloat(envPrefix+"SEGMENT_MAX_DURATION_S", &cfg.Segment.MaxDurationS)
	getEnvInt(envPrefix+"SEGMENT_MIN_COALESCE_CHARS", &cfg.Segment.MinCoalesceChars)

	getEnvString(envPrefix+"ASR_MODEL_IDENTIFIER", &cfg.ASR.ModelIdentifier)
	getEnvString(envPrefix+"ASR_COMPUTE_PRECISION", &cfg.ASR.ComputePrecision)
	getEnvInt(envPrefix+"ASR_CHUNK_LENGTH_S", &cfg.ASR.ChunkLengthS)
	getEnvInt(envPrefix+"ASR_BEAM_SIZE", &cfg.ASR.BeamSize)
	getEnvBool(envPrefix+"ASR_FORCE_FULL_ASR", &cfg.ASR.ForceFullASR)

	getEnvString(envPrefix+"EMBEDDING_PROVIDER", &cfg.Embed.Provider)
	getEnvString(envPrefix+"EMBEDDING_MODEL_IDENTIFIER", &cfg.Embed.ModelIdentifier)
	getEnvInt(envPrefix+"EMBEDDING_DIMENSION", &cfg.Embed.Dimension)
	getEnvInt(envPrefix+"EMBEDDING_BATCH_SIZE", &cfg.Embed.BatchSize)
	getEnvString(envPrefix+"EMBEDDING_API_KEY", &cfg.Embed.APIKey)
	getEnvString(envPrefix+"EMBEDDING_BASE_URL", &cfg.Embed.BaseURL)

	getEnvInt(envPrefix+"POOL_IO_WORKERS", &cfg.Pool.IOWorkers)
	getEnvInt(envPrefix+"POOL_ASR_WORKERS", &cfg.Pool.ASRWorkers)
	getEnvInt(envPrefix+"POOL_EMBED_WORKERS", &cfg.Pool.EmbedWorkers)
	getEnvInt(envPrefix+"POOL_DB_WORKERS", &cfg.Pool.DBWorkers)
	getEnvInt(envPrefix+"POOL_QUEUE_CAPACITY", &cfg.Pool.QueueCapacity)
	getEnvInt(envPrefix+"POOL_MAX_IN_FLIGHT", &cfg.Pool.MaxInFlight)
	getEnvInt64(envPrefix+"POOL_VRAM_BUDGET_BYTES", &cfg.Pool.VRAMBudgetBytes)

	getEnvString(envPrefix+"STORE_POSTGRES_DSN", &cfg.Store.PostgresDSN)

	getEnvBool(envPrefix+"RUN_FAIL_FAST", &cfg.Run.FailFast)
	getEnvInt(envPrefix+"RUN_IO_RETRIES", &cfg.Run.IORetries)
	getEnvInt(envPrefix+"RUN_TASK_TIMEOUT_S", &cfg.Run.TaskTimeoutS)
	getEnvDuration(envPrefix+"RUN_TELEMETRY_INTERVAL", &cfg.Run.TelemetryInterval)
	getEnvInt(envPrefix+"RUN_CANCEL_GRACE_S", &cfg.Run.CancelGraceS)
}

func getEnvString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func getEnvLogLevel(key string, dst *LogLevel) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = LogLevel(v)
	}
}

func getEnvInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func getEnvInt64(key string, dst *int64) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return
	}
	*dst = n
}

func getEnvFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = f
}

func getEnvBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = b
}

func getEnvDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return
	}
	*dst = d
}
