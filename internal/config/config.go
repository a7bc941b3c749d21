// Package config provides the configuration schema, loader, and validation
// for the chaffee-ingest pipeline.
package config

import "time"

// Config is the root configuration structure for chaffee-ingest.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// then overlaid with environment variables via [ApplyEnv].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Voices   VoicesConfig   `yaml:"voices"`
	Attrib   AttribConfig   `yaml:"attribution"`
	Segment  SegmentConfig  `yaml:"segment"`
	ASR      ASRConfig      `yaml:"asr"`
	Embed    EmbedConfig    `yaml:"embedding"`
	Pool     PoolConfig     `yaml:"pool"`
	Store    StoreConfig    `yaml:"store"`
	Run      RunConfig      `yaml:"run"`
}

// ServerConfig holds logging and operational HTTP settings.
type ServerConfig struct {
	// ListenAddr serves /healthz and /metrics. Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated log verbosity setting.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognized log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// SourceConfig selects and configures the video listing adapter.
type SourceConfig struct {
	// Type selects the adapter. Valid values: "youtube", "local".
	Type string `yaml:"type"`

	// Channel is the channel URL or ID, used when Type is "youtube".
	Channel string `yaml:"channel"`

	// LocalDir is the directory walked for media files, used when Type is "local".
	LocalDir string `yaml:"local_dir"`

	// Limit caps the number of VideoReferences pulled from the adapter. 0 means unlimited.
	Limit int `yaml:"limit"`

	// APIKey authenticates against the YouTube Data API, used when Type is "youtube".
	APIKey string `yaml:"api_key"`

	SkipShorterThanS float64 `yaml:"skip_shorter_than_s"`
	SkipLongerThanS  float64 `yaml:"skip_longer_than_s"`
}

// VoicesConfig locates the enrolled speaker profile directory.
type VoicesConfig struct {
	Dir              string `yaml:"dir"`
	EnableSpeakerID  bool   `yaml:"enable_speaker_id"`
	AllowExternalCaptions bool `yaml:"allow_external_captions"`
}

// AttribConfig holds speaker-attribution thresholds (spec §6).
type AttribConfig struct {
	HostMinSim             float64 `yaml:"host_min_sim"`
	GuestMinSim            float64 `yaml:"guest_min_sim"`
	AttrMargin             float64 `yaml:"attr_margin"`
	OverlapBonus           float64 `yaml:"overlap_bonus"`
	MonologueBonus         float64 `yaml:"monologue_bonus"`
	MinAttributionDuration float64 `yaml:"min_attribution_duration_s"`

	// DefaultHostDominant enables the optimizer's default-label policy
	// (null label -> HOST) for channels known to be host-dominant.
	DefaultHostDominant bool `yaml:"default_host_dominant"`
}

// SegmentConfig holds Segment Optimizer knobs (spec §4.4).
type SegmentConfig struct {
	MinChars          int     `yaml:"min_chars"`
	MaxChars          int     `yaml:"max_chars"`
	HardCapChars      int     `yaml:"hard_cap_chars"`
	OverlapChars      int     `yaml:"overlap_chars"`
	MaxGapS           float64 `yaml:"max_gap_s"`
	MaxDurationS      float64 `yaml:"max_duration_s"`
	MinCoalesceChars  int     `yaml:"min_coalesce_chars"`
}

// ASRConfig selects and configures the transcription model.
type ASRConfig struct {
	ModelIdentifier  string `yaml:"model_identifier"`
	ComputePrecision string `yaml:"compute_precision"`
	ChunkLengthS     int    `yaml:"chunk_length_s"`
	BeamSize         int    `yaml:"beam_size"`
	ForceFullASR     bool   `yaml:"force_full_asr"`
}

// EmbedConfig selects and configures the text-embedding model.
type EmbedConfig struct {
	Provider         string `yaml:"provider"`
	ModelIdentifier  string `yaml:"model_identifier"`
	Dimension        int    `yaml:"dimension"`
	BatchSize        int    `yaml:"batch_size"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
}

// PoolConfig holds the concurrency and resource budget (spec §5).
type PoolConfig struct {
	IOWorkers       int   `yaml:"io_workers"`
	ASRWorkers      int   `yaml:"asr_workers"`
	EmbedWorkers    int   `yaml:"embed_workers"`
	DBWorkers       int   `yaml:"db_workers"`
	QueueCapacity   int   `yaml:"queue_capacity"`
	MaxInFlight     int   `yaml:"max_in_flight"`
	VRAMBudgetBytes int64 `yaml:"vram_budget_bytes"`
}

// StoreConfig configures the persistent store connection.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RunConfig holds run-level behaviour flags.
type RunConfig struct {
	FailFast     bool          `yaml:"fail_fast"`
	IORetries    int           `yaml:"io_retries"`
	TaskTimeoutS int           `yaml:"task_timeout_s"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`

	// CancelGraceS bounds how long the orchestrator waits for in-flight
	// tasks to drain after an external cancellation (signal or
	// programmatic) before abandoning them outright, per spec.md §4.1.
	CancelGraceS int `yaml:"cancel_grace_s"`
}

// Defaults returns a Config populated with the built-in default values
// documented in spec.md §6.4. Load starts from Defaults, then applies the
// YAML file, then environment variables.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "",
			LogLevel:   LogInfo,
		},
		Source: SourceConfig{
			Type: "youtube",
		},
		Voices: VoicesConfig{
			EnableSpeakerID: true,
		},
		Attrib: AttribConfig{
			HostMinSim:             0.75,
			GuestMinSim:            0.70,
			AttrMargin:             0.05,
			OverlapBonus:           0.05,
			MonologueBonus:         0.05,
			MinAttributionDuration: 1.0,
		},
		Segment: SegmentConfig{
			MinChars:         200,
			MaxChars:         800,
			HardCapChars:     1200,
			OverlapChars:     80,
			MaxGapS:          2.0,
			MaxDurationS:     45.0,
			MinCoalesceChars: 20,
		},
		ASR: ASRConfig{
			ModelIdentifier:  "ggml-medium.en.bin",
			ComputePrecision: "fp16",
			ChunkLengthS:     30,
			BeamSize:         5,
		},
		Embed: EmbedConfig{
			Provider:        "openai",
			ModelIdentifier: "text-embedding-3-small",
			Dimension:       1536,
			BatchSize:       1024,
		},
		Pool: PoolConfig{
			IOWorkers:       4,
			ASRWorkers:      2,
			EmbedWorkers:    2,
			DBWorkers:       2,
			QueueCapacity:   64,
			MaxInFlight:     16,
			VRAMBudgetBytes: 8 << 30,
		},
		Run: RunConfig{
			FailFast:          false,
			IORetries:         3,
			TaskTimeoutS:      1800,
			TelemetryInterval: 10 * time.Second,
			CancelGraceS:      30,
		},
	}
}
