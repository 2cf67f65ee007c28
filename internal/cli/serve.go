package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/testworker/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker API and message bus",
		Long: `Run the inbound API and process messages until interrupted.

Every setting can also be given in the config file or as a WORKER_*
environment variable, e.g. WORKER_DELIVERY_MAX_ATTEMPTS=5.

Examples:
  worker serve --db /var/lib/worker.db --listen :8080
  worker serve --config worker.yaml --log-format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "API listen address")
	flags.String("compiler", "compiler", "compiler binary")
	flags.String("delegator", "delegator", "test delegator binary")
	flags.String("source-dir", "/app/source", "directory uploaded sources are written to")
	flags.String("target-dir", "/app/tests", "directory compiled tests are written to")
	flags.Int("concurrency", 1, "message bus workers")

	v := rootOpts.Viper
	_ = v.BindPFlag("listen", flags.Lookup("listen"))
	_ = v.BindPFlag("compiler.binary", flags.Lookup("compiler"))
	_ = v.BindPFlag("delegator.binary", flags.Lookup("delegator"))
	_ = v.BindPFlag("compiler.source_dir", flags.Lookup("source-dir"))
	_ = v.BindPFlag("compiler.target_dir", flags.Lookup("target-dir"))
	_ = v.BindPFlag("worker.concurrency", flags.Lookup("concurrency"))

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cmd.ErrOrStderr())

	a, err := app.New(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start worker", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting",
		"listen", cfg.Listen,
		"database", cfg.Database,
		"concurrency", cfg.Worker.Concurrency,
	)
	if err := a.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "worker stopped", err)
	}
	logger.Info("worker stopped")
	return nil
}
