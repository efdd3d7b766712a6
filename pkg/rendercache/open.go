package rendercache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects and configures a cache backend.
type Options struct {
	Backend     string // memory | disk | redis | none
	MaxEntries  int
	Dir         string
	RedisAddr   string
	RedisPrefix string
	TTL         time.Duration
}

// Open builds a Cache for opts. Backend "none" returns (nil, nil): callers
// treat a nil *Cache as "caching disabled".
//
// Every cache opened here verifies on hit that the cached output file still
// exists.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Cache, error) {
	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case "", "memory":
		store, err = NewMemoryStore(opts.MaxEntries)
	case "disk":
		store, err = NewDiskStore(opts.Dir, opts.MaxEntries)
	case "redis":
		store, err = DialRedis(ctx, opts.RedisAddr, opts.RedisPrefix, opts.TTL)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	backend := opts.Backend
	if backend == "" {
		backend = "memory"
	}
	return New(store, logger, WithBackendName(backend), WithVerifier(outputExists)), nil
}

func outputExists(e Entry) bool {
	if e.OutputPath == "" {
		return false
	}
	_, err := os.Stat(e.OutputPath)
	return err == nil
}
