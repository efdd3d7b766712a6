// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex // protects koanfInstance and currentConfig
}

// NewManager creates a Manager with an empty koanf instance.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New(".")}
}

// DefaultConfig returns a new Config struct populated with hardcoded default values.
// These serve as the baseline configuration if no other sources override them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: DefaultServerConfig(),
		Queue: QueueConfig{
			MaxConcurrent: 2,
			PollInterval:  time.Second,
			MaxAttempts:   3,
		},
		Pipeline: PipelineConfig{
			WorkDir:   os.TempDir(),
			OutputDir: filepath.Join(os.TempDir(), "framecast", "exports"),
			Strategy:  "ADAPTIVE",
		},
		Renderer: RendererConfig{
			Mode:          "passthrough",
			Timeout:       10 * time.Minute,
			RetryAttempts: 3,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			MaxEntries:  100,
			Dir:         filepath.Join(os.TempDir(), "framecast", "cache"),
			RedisPrefix: "framecast:render:",
			TTL:         24 * time.Hour,
		},
		Storage: StorageConfig{
			Backend: "none",
		},
	}
}

// Load loads configuration from the default sources: defaults, the optional
// config file, FRAMECAST_* environment variables and flags.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(customConfigFilePath, flags, debug))
}

// LoadWithSources loads sources in ascending priority order into a fresh
// koanf instance and replaces the current configuration. On error the
// previous configuration is kept.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	ordered := append([]ConfigSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	k := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := k.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.koanfInstance = k
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Override layers values (dotted keys) over the loaded configuration. The
// CLI uses it for command flags that are not named after config keys.
func (m *Manager) Override(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.koanfInstance.Copy()
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("error applying overrides: %w", err)
	}

	var newCfg Config
	if err := k.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling overridden config: %w", err)
	}
	m.koanfInstance = k
	m.currentConfig = newCfg
	return nil
}

// Section returns the raw values under path, e.g. "hardware", for consumers
// that decode loosely typed settings themselves.
func (m *Manager) Section(path string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Cut(path).Raw()
}

// DefaultConfigAsMap converts the DefaultConfig struct to a map[string]interface{}
// for Koanf's confmap.Provider. The keys double as the set of known keys for
// environment variable mapping.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"server.addr":          def.Server.Addr,
		"server.port":          def.Server.Port,
		"server.api_enabled":   def.Server.APIEnabled,
		"server.jobs_enabled":  def.Server.JobsEnabled,
		"server.read_timeout":  def.Server.ReadTimeout,
		"server.write_timeout": def.Server.WriteTimeout,
		"server.auth.mode":     def.Server.Auth.Mode,
		"server.auth.token":    def.Server.Auth.Token,

		"queue.max_concurrent": def.Queue.MaxConcurrent,
		"queue.poll_interval":  def.Queue.PollInterval,
		"queue.max_attempts":   def.Queue.MaxAttempts,

		"pipeline.work_dir":        def.Pipeline.WorkDir,
		"pipeline.output_dir":      def.Pipeline.OutputDir,
		"pipeline.public_base_url": def.Pipeline.PublicBaseURL,
		"pipeline.strategy":        def.Pipeline.Strategy,

		"renderer.mode":           def.Renderer.Mode,
		"renderer.url":            def.Renderer.URL,
		"renderer.token":          def.Renderer.Token,
		"renderer.timeout":        def.Renderer.Timeout,
		"renderer.retry_attempts": def.Renderer.RetryAttempts,

		"cache.backend":      def.Cache.Backend,
		"cache.max_entries":  def.Cache.MaxEntries,
		"cache.dir":          def.Cache.Dir,
		"cache.redis_addr":   def.Cache.RedisAddr,
		"cache.redis_prefix": def.Cache.RedisPrefix,
		"cache.ttl":          def.Cache.TTL,

		"hardware.profile_file": def.Hardware.ProfileFile,
		"hardware.watch":        def.Hardware.Watch,
		"hardware.tier":         def.Hardware.Tier,
		"hardware.cpu_cores":    def.Hardware.CPUCores,
		"hardware.memory_gb":    def.Hardware.MemoryGB,
		"hardware.gpu":          def.Hardware.GPU,

		"storage.backend":        def.Storage.Backend,
		"storage.workspace_root": def.Storage.WorkspaceRoot,
		"storage.database_url":   def.Storage.DatabaseURL,
	}
}

// BindFlags defines the global flags that feed configuration.
// The --config flag is defined directly on the root Cobra command.
func BindFlags(flags *pflag.FlagSet) {
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")

	def := DefaultConfig()
	flags.String("cache.backend", def.Cache.Backend, "Render cache store: memory|disk|redis|none")
	flags.String("storage.backend", def.Storage.Backend, "Job archive: none|local|postgres")
	flags.String("renderer.mode", def.Renderer.Mode, "Renderer: passthrough|http")
}
