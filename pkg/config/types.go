// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for Framecast.
// It aggregates all other specific configuration structs.
type Config struct {
	Log      LogConfig      `description:"Logging configuration" koanf:"log"`
	Server   ServerConfig   `description:"Server configuration" koanf:"server"`
	Queue    QueueConfig    `description:"Job queue configuration" koanf:"queue"`
	Pipeline PipelineConfig `description:"Render pipeline configuration" koanf:"pipeline"`
	Renderer RendererConfig `description:"Renderer configuration" koanf:"renderer"`
	Cache    CacheConfig    `description:"Render cache configuration" koanf:"cache"`
	Hardware HardwareConfig `description:"Hardware profile configuration" koanf:"hardware"`
	Storage  StorageConfig  `description:"Job archive configuration" koanf:"storage"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level (debug, info, warn, error)" koanf:"level"`
	Format string `description:"Log format: json | text" koanf:"format"`
}

// ServerConfig holds configuration for the HTTP server.
// Used by 'framecast server start' command.
type ServerConfig struct {
	// Network settings
	Addr string `description:"Server listen address" koanf:"addr"`
	Port int    `description:"Server listen port" koanf:"port"`

	// Component toggles
	APIEnabled  bool `description:"Enable REST API endpoints" koanf:"api_enabled"`
	JobsEnabled bool `description:"Enable the dispatch loop" koanf:"jobs_enabled"`

	// HTTP timeouts
	ReadTimeout  time.Duration `description:"HTTP read timeout" koanf:"read_timeout"`
	WriteTimeout time.Duration `description:"HTTP write timeout" koanf:"write_timeout"`

	Auth AuthConfig `description:"Authentication configuration" koanf:"auth"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode  string `description:"Authentication mode: none|token" koanf:"mode"`
	Token string `description:"Static bearer token (required for token mode)" koanf:"token"`
}

// QueueConfig holds the job queue settings.
type QueueConfig struct {
	MaxConcurrent int           `description:"Jobs rendered at the same time" koanf:"max_concurrent"`
	PollInterval  time.Duration `description:"Dispatch loop tick" koanf:"poll_interval"`
	MaxAttempts   int           `description:"Attempts allowed per job including retries" koanf:"max_attempts"`
}

// PipelineConfig holds where renders work and land.
type PipelineConfig struct {
	WorkDir       string `description:"Parent of per-job temporary directories" koanf:"work_dir"`
	OutputDir     string `description:"Directory for finished exports" koanf:"output_dir"`
	PublicBaseURL string `description:"Base URL exports are served from" koanf:"public_base_url"`
	Strategy      string `description:"Optimization strategy: SPEED|QUALITY|BALANCED|ADAPTIVE" koanf:"strategy"`
}

// RendererConfig selects and tunes the stage renderer.
type RendererConfig struct {
	Mode          string        `description:"Renderer: passthrough|http" koanf:"mode"`
	URL           string        `description:"Render service base URL (http mode)" koanf:"url"`
	Token         string        `description:"Render service bearer token" koanf:"token"`
	Timeout       time.Duration `description:"Per-call timeout (http mode)" koanf:"timeout"`
	RetryAttempts int           `description:"Calls per stage before giving up (http mode)" koanf:"retry_attempts"`
}

// CacheConfig holds the render cache settings.
type CacheConfig struct {
	Backend     string        `description:"Cache store: memory|disk|redis|none" koanf:"backend"`
	MaxEntries  int           `description:"Entries kept before eviction" koanf:"max_entries"`
	Dir         string        `description:"Index directory (disk backend)" koanf:"dir"`
	RedisAddr   string        `description:"Redis address (redis backend)" koanf:"redis_addr"`
	RedisPrefix string        `description:"Redis key prefix (redis backend)" koanf:"redis_prefix"`
	TTL         time.Duration `description:"Entry lifetime (redis backend)" koanf:"ttl"`
}

// HardwareConfig describes where the hardware profile comes from. An empty
// ProfileFile means the inline values are used.
type HardwareConfig struct {
	ProfileFile string  `description:"YAML or JSON hardware profile file" koanf:"profile_file"`
	Watch       bool    `description:"Reload the profile file when it changes" koanf:"watch"`
	Tier        string  `description:"Explicit tier: LOW|MEDIUM|HIGH|ULTRA" koanf:"tier"`
	CPUCores    int     `description:"CPU cores" koanf:"cpu_cores"`
	MemoryGB    float64 `description:"Memory in GB" koanf:"memory_gb"`
	GPU         bool    `description:"GPU available" koanf:"gpu"`
}

// StorageConfig holds the job archive settings.
type StorageConfig struct {
	Backend       string `description:"Archive: none|local|postgres" koanf:"backend"`
	WorkspaceRoot string `description:"Workspace root (local backend)" koanf:"workspace_root"`
	DatabaseURL   string `description:"PostgreSQL URL (postgres backend)" koanf:"database_url"`
}
