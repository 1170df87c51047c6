package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
)

var runFlags struct {
	listenAddress string
	noWatch       bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay server",
	Long: `Start the relay server with the specified configuration.

The server accepts routing requests on the configured address, dispatches
them to the configured providers and reloads provider and routing settings
when the config file changes.

Examples:
  # Start with default config
  relay run

  # Start with custom config
  relay run --config /etc/relay/relay.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8080

  # Validate config and build every component without serving
  relay run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build every component and exit without serving")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}

	logger, err := newLogger(cfg.Telemetry.Logging)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%d providers)\n", len(cfg.Providers))
		return a.close()
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	if err := a.start(ctx); err != nil {
		return errors.Join(err, a.close())
	}

	if !runFlags.noWatch {
		watcher := config.NewWatcher(cfgFile, logger.Logger)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := watcher.Watch(ctx, a.reload); err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("relay starting",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"providers", len(cfg.Providers),
	)

	serveErr := a.server.Start(ctx)
	if serveErr != nil {
		// Start returns early on a bind failure; release the loops too.
		stop()
	}
	<-ctx.Done()

	closeErr := a.close()
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return errors.Join(fmt.Errorf("server failed: %w", serveErr), closeErr)
	}
	logger.Info("relay stopped")
	return closeErr
}
