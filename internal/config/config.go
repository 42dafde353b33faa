// Package config implements the orchestration core's layered
// configuration, following the teacher's internal/config/load.go shape:
// a defaults struct literal, then file, then env, then explicit
// overrides, each layer recording where each effective value came from
// into a Metadata map.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is every knob the orchestration core needs at runtime
// (§10.3).
type RuntimeConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	DatabaseDSN            string        `yaml:"database_dsn"`
	DatabaseMaxConns       int32         `yaml:"database_max_conns"`
	DatabaseMinConns       int32         `yaml:"database_min_conns"`
	DatabaseMaxConnLife    time.Duration `yaml:"database_max_conn_life"`
	DatabaseMaxConnIdle    time.Duration `yaml:"database_max_conn_idle"`

	WorkerPoolSize int `yaml:"worker_pool_size"`

	YtDlpBinary string `yaml:"ytdlp_binary"`
	FFmpegBinary string `yaml:"ffmpeg_binary"`
	FFmpegPresetFile string `yaml:"ffmpeg_preset_file"`
	FFmpegPresetName string `yaml:"ffmpeg_preset_name"`

	WebSocketPingInterval time.Duration `yaml:"websocket_ping_interval"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	TaskRetentionSeconds int64 `yaml:"task_retention_seconds"`
	StaleSweepInterval   time.Duration `yaml:"stale_sweep_interval"`
}

// ValueSource names where an effective setting came from, the same
// provenance idiom as the teacher's Metadata.
type ValueSource string

const (
	SourceDefault ValueSource = "default"
	SourceFile    ValueSource = "file"
	SourceEnv     ValueSource = "env"
	SourceFlag    ValueSource = "flag"
)

// Metadata records, per field name, which layer last set it — so a
// running server can report where each effective setting came from.
type Metadata struct {
	Sources map[string]ValueSource
	LoadedAt time.Time
}

func newMetadata() *Metadata {
	return &Metadata{Sources: make(map[string]ValueSource), LoadedAt: time.Now()}
}

func defaults() RuntimeConfig {
	return RuntimeConfig{
		ListenAddr:            ":8080",
		DatabaseMaxConns:      10,
		DatabaseMinConns:      2,
		DatabaseMaxConnLife:   time.Hour,
		DatabaseMaxConnIdle:   30 * time.Minute,
		WorkerPoolSize:        4,
		YtDlpBinary:           "yt-dlp",
		FFmpegBinary:          "ffmpeg",
		FFmpegPresetName:      "default",
		WebSocketPingInterval: 30 * time.Second,
		LogLevel:              "info",
		LogFormat:             "text",
		TaskRetentionSeconds:  7 * 24 * 3600,
		StaleSweepInterval:    5 * time.Minute,
	}
}

// Option configures a single Load call, mirroring the teacher's
// functional-option config layering.
type Option func(*loadState)

type loadState struct {
	filePath string
	env      map[string]string
	overrides map[string]interface{}
}

// WithFile points Load at a YAML config file. A missing file is not an
// error — it simply contributes no layer.
func WithFile(path string) Option {
	return func(s *loadState) { s.filePath = path }
}

// WithEnv overrides the environment source used for the env layer
// (os.Environ() by default); tests pass a fixed map.
func WithEnv(env map[string]string) Option {
	return func(s *loadState) { s.env = env }
}

// WithOverrides applies explicit field overrides (e.g. from CLI flags)
// as the final, highest-priority layer.
func WithOverrides(overrides map[string]interface{}) Option {
	return func(s *loadState) { s.overrides = overrides }
}

// Load builds a RuntimeConfig by layering defaults -> file -> env ->
// overrides, recording provenance into the returned Metadata.
func Load(opts ...Option) (RuntimeConfig, *Metadata, error) {
	state := &loadState{}
	for _, opt := range opts {
		opt(state)
	}

	cfg := defaults()
	meta := newMetadata()
	markAll(meta, SourceDefault)

	if state.filePath != "" {
		if err := applyFile(&cfg, meta, state.filePath); err != nil {
			return cfg, meta, err
		}
	}

	env := state.env
	if env == nil {
		env = environToMap(os.Environ())
	}
	applyEnv(&cfg, meta, env)

	if state.overrides != nil {
		if err := applyOverrides(&cfg, meta, state.overrides); err != nil {
			return cfg, meta, err
		}
	}

	normalize(&cfg)
	return cfg, meta, nil
}

func markAll(meta *Metadata, source ValueSource) {
	for _, field := range []string{
		"listen_addr", "database_dsn", "database_max_conns", "database_min_conns",
		"database_max_conn_life", "database_max_conn_idle", "worker_pool_size",
		"ytdlp_binary", "ffmpeg_binary", "ffmpeg_preset_file", "ffmpeg_preset_name", "websocket_ping_interval", "otlp_endpoint",
		"log_level", "log_format", "task_retention_seconds", "stale_sweep_interval",
	} {
		meta.Sources[field] = source
	}
}

// applyFile applies the listen address, database DSN, worker pool size,
// binary and preset paths, OTLP endpoint, log level/format and task
// retention from the YAML file. The Postgres pool tuning fields, the
// WebSocket ping interval and the stale sweep interval are not read from
// the file.
func applyFile(cfg *RuntimeConfig, meta *Metadata, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fileCfg RuntimeConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if fileCfg.ListenAddr != "" {
		cfg.ListenAddr = fileCfg.ListenAddr
		meta.Sources["listen_addr"] = SourceFile
	}
	if fileCfg.DatabaseDSN != "" {
		cfg.DatabaseDSN = fileCfg.DatabaseDSN
		meta.Sources["database_dsn"] = SourceFile
	}
	if fileCfg.WorkerPoolSize != 0 {
		cfg.WorkerPoolSize = fileCfg.WorkerPoolSize
		meta.Sources["worker_pool_size"] = SourceFile
	}
	if fileCfg.YtDlpBinary != "" {
		cfg.YtDlpBinary = fileCfg.YtDlpBinary
		meta.Sources["ytdlp_binary"] = SourceFile
	}
	if fileCfg.FFmpegBinary != "" {
		cfg.FFmpegBinary = fileCfg.FFmpegBinary
		meta.Sources["ffmpeg_binary"] = SourceFile
	}
	if fileCfg.FFmpegPresetFile != "" {
		cfg.FFmpegPresetFile = fileCfg.FFmpegPresetFile
		meta.Sources["ffmpeg_preset_file"] = SourceFile
	}
	if fileCfg.FFmpegPresetName != "" {
		cfg.FFmpegPresetName = fileCfg.FFmpegPresetName
		meta.Sources["ffmpeg_preset_name"] = SourceFile
	}
	if fileCfg.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = fileCfg.OTLPEndpoint
		meta.Sources["otlp_endpoint"] = SourceFile
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
		meta.Sources["log_level"] = SourceFile
	}
	if fileCfg.LogFormat != "" {
		cfg.LogFormat = fileCfg.LogFormat
		meta.Sources["log_format"] = SourceFile
	}
	if fileCfg.TaskRetentionSeconds != 0 {
		cfg.TaskRetentionSeconds = fileCfg.TaskRetentionSeconds
		meta.Sources["task_retention_seconds"] = SourceFile
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, env map[string]string) {
	setStr := func(key, field string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
			meta.Sources[field] = SourceEnv
		}
	}
	setInt := func(key, field string, dst *int) {
		if v, ok := env[key]; ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
				meta.Sources[field] = SourceEnv
			}
		}
	}
	setDuration := func(key, field string, dst *time.Duration) {
		if v, ok := env[key]; ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
				meta.Sources[field] = SourceEnv
			}
		}
	}

	setStr("MEDIAFLOW_LISTEN_ADDR", "listen_addr", &cfg.ListenAddr)
	setStr("MEDIAFLOW_DATABASE_DSN", "database_dsn", &cfg.DatabaseDSN)
	setInt("MEDIAFLOW_WORKER_POOL_SIZE", "worker_pool_size", &cfg.WorkerPoolSize)
	setStr("MEDIAFLOW_YTDLP_BINARY", "ytdlp_binary", &cfg.YtDlpBinary)
	setStr("MEDIAFLOW_FFMPEG_BINARY", "ffmpeg_binary", &cfg.FFmpegBinary)
	setStr("MEDIAFLOW_FFMPEG_PRESET_FILE", "ffmpeg_preset_file", &cfg.FFmpegPresetFile)
	setStr("MEDIAFLOW_FFMPEG_PRESET_NAME", "ffmpeg_preset_name", &cfg.FFmpegPresetName)
	setStr("MEDIAFLOW_OTLP_ENDPOINT", "otlp_endpoint", &cfg.OTLPEndpoint)
	setStr("MEDIAFLOW_LOG_LEVEL", "log_level", &cfg.LogLevel)
	setStr("MEDIAFLOW_LOG_FORMAT", "log_format", &cfg.LogFormat)
	setDuration("MEDIAFLOW_STALE_SWEEP_INTERVAL", "stale_sweep_interval", &cfg.StaleSweepInterval)
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides map[string]interface{}) error {
	for field, value := range overrides {
		switch field {
		case "listen_addr":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("config: override %s must be a string", field)
			}
			cfg.ListenAddr = s
		case "database_dsn":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("config: override %s must be a string", field)
			}
			cfg.DatabaseDSN = s
		case "worker_pool_size":
			n, ok := value.(int)
			if !ok {
				return fmt.Errorf("config: override %s must be an int", field)
			}
			cfg.WorkerPoolSize = n
		case "otlp_endpoint":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("config: override %s must be a string", field)
			}
			cfg.OTLPEndpoint = s
		default:
			return fmt.Errorf("config: unknown override field %q", field)
		}
		meta.Sources[field] = SourceFlag
	}
	return nil
}

func normalize(cfg *RuntimeConfig) {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
}

func environToMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
