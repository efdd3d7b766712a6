// Package appctx carries process-wide handles on a context so cobra
// subcommands can reach what the root command prepared.
package appctx

import (
	"context"

	"github.com/framecast/framecast/pkg/config"
)

type managerKey struct{}

// WithConfig returns a context holding manager. A nil parent is
// treated as context.Background.
func WithConfig(parent context.Context, manager *config.Manager) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, managerKey{}, manager)
}

// Config returns the manager stored by WithConfig. The boolean is false
// when nothing usable was stored.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	if mgr, ok := ctx.Value(managerKey{}).(*config.Manager); ok && mgr != nil {
		return mgr, true
	}
	return nil, false
}
