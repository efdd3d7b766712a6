package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/appctx"
	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/logging"
	"github.com/framecast/framecast/pkg/server"
	"github.com/framecast/framecast/pkg/server/deps"
)

const stopTimeout = 30 * time.Second

// configManager returns the manager loaded by the root command.
func configManager(cmd *cobra.Command) (*config.Manager, error) {
	mgr, ok := appctx.Config(cmd.Context())
	if !ok {
		return nil, server.ErrConfigUnavailable
	}
	return mgr, nil
}

// buildRuntime builds the runtime graph for a one-shot command. The caller
// must call the returned stop function.
func buildRuntime(cmd *cobra.Command, component string) (*deps.Deps, func(), error) {
	mgr, err := configManager(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.Component(component)
	d, err := deps.Build(cmd.Context(), mgr, logger)
	if err != nil {
		return nil, nil, err
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := d.Stop(ctx); err != nil {
			logger.Warn().Err(err).Msg("Runtime shutdown failed")
		}
	}
	return d, stop, nil
}

// fail prints err with suggestions for code and returns it so the process
// exits non-zero.
func fail(f format.Formatter, operation string, err error, code string) error {
	_ = f.PrintTotalFailureSummary(operation, err, code)
	return err
}

func quiet(cmd *cobra.Command) bool {
	q, _ := cmd.Flags().GetBool("quiet")
	return q
}
