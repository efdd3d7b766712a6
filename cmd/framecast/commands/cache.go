package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/server"
)

var errCacheDisabled = errors.New("render cache is disabled (cache.backend is none)")

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		Short:   "Inspect the render cache",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show render cache statistics",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every render cache entry",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	})
	return cmd
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	d, stop, err := buildRuntime(cmd, "cache")
	if err != nil {
		return fail(formatter, "read cache stats", err, server.ErrorCode(err))
	}
	defer stop()

	if d.Cache == nil {
		return fail(formatter, "read cache stats", errCacheDisabled, "CACHE_DISABLED")
	}

	stats, err := d.Cache.Stats(cmd.Context())
	if err != nil {
		return fail(formatter, "read cache stats", err, "CACHE_UNAVAILABLE")
	}

	fields := [][2]string{
		{"Backend", stats.Backend},
		{"Entries", strconv.Itoa(stats.Entries)},
		{"Total size", humanBytes(stats.TotalSize)},
		{"Hits", strconv.FormatInt(stats.Hits, 10)},
		{"Misses", strconv.FormatInt(stats.Misses, 10)},
		{"Hit rate", fmt.Sprintf("%.1f%%", stats.HitRate()*100)},
	}
	if stats.Oldest != nil {
		fields = append(fields, [2]string{"Oldest", stats.Oldest.Format(time.RFC3339)})
	}
	if stats.Newest != nil {
		fields = append(fields, [2]string{"Newest", stats.Newest.Format(time.RFC3339)})
	}
	return formatter.PrintPanel("Render cache", fields, stats)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	d, stop, err := buildRuntime(cmd, "cache")
	if err != nil {
		return fail(formatter, "clear cache", err, server.ErrorCode(err))
	}
	defer stop()

	if d.Cache == nil {
		return fail(formatter, "clear cache", errCacheDisabled, "CACHE_DISABLED")
	}
	if err := d.Cache.Clear(cmd.Context()); err != nil {
		return fail(formatter, "clear cache", err, "CACHE_UNAVAILABLE")
	}
	return formatter.PrintSuccessSummary("cache clear", "", "")
}
