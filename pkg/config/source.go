package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by EnvSource.
const EnvPrefix = "FRAMECAST_"

// Load priorities of the built-in sources. A custom source slots in
// between two of them by picking a value in the gap.
const (
	PriorityDefaults = 10
	PriorityFile     = 20
	PriorityEnv      = 30
	PriorityFlags    = 40
)

// ConfigSource is one layer of configuration. Manager.LoadWithSources
// applies layers in ascending Priority, so later layers win.
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource seeds the built-in defaults.
type DefaultSource struct{}

func (*DefaultSource) Name() string  { return "defaults" }
func (*DefaultSource) Priority() int { return PriorityDefaults }

func (*DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	return nil
}

// FileSource reads a YAML file. An empty Path or a file that does not
// exist contributes nothing.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return PriorityFile }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}
	_, err := os.Stat(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat config file %s: %w", s.Path, err)
	}
	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("parse config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource maps prefixed environment variables onto known keys. The
// lookup is built from the default key set, so underscores inside a key
// survive:
//
//	FRAMECAST_LOG_LEVEL            -> log.level
//	FRAMECAST_QUEUE_MAX_CONCURRENT -> queue.max_concurrent
//
// Unknown variables are dropped.
type EnvSource struct {
	Prefix string // defaults to EnvPrefix
}

func (*EnvSource) Name() string  { return "env" }
func (*EnvSource) Priority() int { return PriorityEnv }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	lookup := envKeyLookup()
	cb := func(name string) string {
		return lookup[strings.TrimPrefix(name, prefix)]
	}
	if err := k.Load(env.Provider(prefix, ".", cb), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

func envKeyLookup() map[string]string {
	defaults := DefaultConfigAsMap()
	out := make(map[string]string, len(defaults))
	for key := range defaults {
		out[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	return out
}

// FlagSource applies command-line flags. Only flags the user changed
// override lower layers. Debug forces log.level to debug.
type FlagSource struct {
	Flags *pflag.FlagSet
	Debug bool
}

func (*FlagSource) Name() string  { return "flags" }
func (*FlagSource) Priority() int { return PriorityFlags }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags != nil {
		if err := k.Load(posflag.Provider(s.Flags, ".", k), nil); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}
	if s.Debug {
		return k.Set("log.level", "debug")
	}
	return nil
}

// DefaultSources is the standard stack: defaults, file, env, flags.
func DefaultSources(configPath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags, Debug: debug},
	}
}
