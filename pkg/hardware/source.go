package hardware

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// FromMap builds a profile from loosely typed values such as a decoded YAML
// document or a koanf section. Recognised keys:
//
//	cpu_cores: 8
//	memory_gb: "16"
//	tier: high
//	gpu: true            # or a map with available/name/memory_gb
//
// Missing cpu_cores falls back to the cores visible to the runtime.
func FromMap(m map[string]any) (Profile, error) {
	var p Profile

	if v, ok := m["cpu_cores"]; ok && v != nil {
		cores, err := cast.ToIntE(v)
		if err != nil {
			return Profile{}, fmt.Errorf("cpu_cores: %w", err)
		}
		p.CPUCores = cores
	}
	if p.CPUCores <= 0 {
		p.CPUCores = runtime.NumCPU()
	}

	if v, ok := m["memory_gb"]; ok && v != nil {
		mem, err := cast.ToFloat64E(v)
		if err != nil {
			return Profile{}, fmt.Errorf("memory_gb: %w", err)
		}
		p.MemoryGB = mem
	}

	switch gpu := m["gpu"].(type) {
	case nil:
	case map[string]any:
		p.GPU.Available = cast.ToBool(gpu["available"])
		p.GPU.Name = cast.ToString(gpu["name"])
		p.GPU.MemoryGB = cast.ToFloat64(gpu["memory_gb"])
	default:
		avail, err := cast.ToBoolE(gpu)
		if err != nil {
			return Profile{}, fmt.Errorf("gpu: %w", err)
		}
		p.GPU.Available = avail
	}

	if v := cast.ToString(m["tier"]); v != "" {
		tier, err := ParseTier(v)
		if err != nil {
			return Profile{}, err
		}
		p.Tier = tier
	}

	return p.Normalize(), nil
}

// MapProvider derives a profile from a fixed set of loosely typed values.
type MapProvider struct {
	values map[string]any
}

// NewMapProvider returns a provider over values (typically the "hardware"
// configuration section).
func NewMapProvider(values map[string]any) *MapProvider {
	return &MapProvider{values: values}
}

// Detect implements Provider.
func (p *MapProvider) Detect(ctx context.Context) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	return FromMap(p.values)
}

// FileProvider reads the profile from a YAML file and keeps the last good
// snapshot. Reload is called by ProfileWatcher when the file changes.
type FileProvider struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	current Profile
	loaded  bool
}

// NewFileProvider creates a provider for the YAML profile at path.
func NewFileProvider(path string, logger zerolog.Logger) *FileProvider {
	return &FileProvider{
		path:   path,
		logger: logger.With().Str("component", "hardware").Logger(),
	}
}

// Path returns the watched profile file.
func (p *FileProvider) Path() string { return p.path }

// Detect implements Provider. The file is read lazily on first use.
func (p *FileProvider) Detect(ctx context.Context) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	p.mu.RLock()
	if p.loaded {
		prof := p.current
		p.mu.RUnlock()
		return prof, nil
	}
	p.mu.RUnlock()

	if err := p.Reload(); err != nil {
		return Profile{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}

// Reload re-reads the profile file. On failure the previous snapshot is kept.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read hardware profile %s: %w", p.path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse hardware profile %s: %w", p.path, err)
	}

	prof, err := FromMap(raw)
	if err != nil {
		return fmt.Errorf("hardware profile %s: %w", p.path, err)
	}
	prof.DetectedAt = time.Now()

	p.mu.Lock()
	p.current = prof
	p.loaded = true
	p.mu.Unlock()

	p.logger.Debug().
		Str("tier", string(prof.Tier)).
		Int("cpu_cores", prof.CPUCores).
		Float64("memory_gb", prof.MemoryGB).
		Bool("gpu", prof.GPU.Available).
		Msg("Hardware profile loaded")
	return nil
}
