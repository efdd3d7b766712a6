package config

import (
	"time"

	"github.com/spf13/pflag"
)

// DefaultServerConfig listens on loopback with both the REST surface and
// the dispatch loop on and no authentication.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1",
		Port:         8080,
		APIEnabled:   true,
		JobsEnabled:  true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Auth:         AuthConfig{Mode: "none"},
	}
}

// BindServerFlags registers the `server start` flags. Flag names are the
// dotted config keys so FlagSource can layer them without a mapping.
func BindServerFlags(fs *pflag.FlagSet) {
	d := DefaultServerConfig()

	fs.String("server.addr", d.Addr, "Listen address (0.0.0.0 for every interface)")
	fs.Int("server.port", d.Port, "Listen port (0 picks a free one)")
	fs.Bool("server.api_enabled", d.APIEnabled, "Serve the REST API")
	fs.Bool("server.jobs_enabled", d.JobsEnabled, "Run the dispatch loop")
	fs.Duration("server.read_timeout", d.ReadTimeout, "HTTP read timeout")
	fs.Duration("server.write_timeout", d.WriteTimeout, "HTTP write timeout")
	fs.String("server.auth.mode", d.Auth.Mode, "Authentication mode: none|token")
	fs.String("server.auth.token", "", "Bearer token accepted in token mode")
	fs.Int("queue.max_concurrent", DefaultConfig().Queue.MaxConcurrent, "Jobs rendered at the same time")
}
