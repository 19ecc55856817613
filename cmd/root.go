package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/catalog"
	"github.com/Norgate-AV/riotam/internal/config"
	"github.com/Norgate-AV/riotam/internal/logging"
	"github.com/Norgate-AV/riotam/internal/version"
)

// errBuildFailed is returned after a failed build's result was printed
var errBuildFailed = errors.New("build failed")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "riotam",
		Short:        "RIOT app maker build backend",
		Long:         `Builds RIOT firmware images and stripped source archives for the RIOT app maker.`,
		SilenceUsage: true,
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().String("config", "", "Config file (replaces global and local config)")
	rootCmd.PersistentFlags().String("root", "", "Project root directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Maximum duration of a single make run")

	rootCmd.AddCommand(
		newBuildCmd(),
		newBuildExampleCmd(),
		newPrepareAllCmd(),
		newDBUpdateCmd(),
		newStripCmd(),
		newCacheCmd(),
	)

	return rootCmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(1)
	}
}

// app bundles what every command needs after configuration was loaded
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.NewLoader().LoadForCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("project_root", cfg.ProjectRoot).
		Str("riot_dir", cfg.RiotDir).
		Str("catalog", cfg.CatalogDriver).
		Msg("Loaded configuration")

	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) openCatalog(ctx context.Context) (catalog.Store, error) {
	store, err := catalog.Open(ctx, a.cfg.CatalogDriver, a.cfg.CatalogDSN)
	if err != nil {
		a.logger.Error().Err(err).Str("driver", a.cfg.CatalogDriver).Msg("Failed to open catalog")
		return nil, err
	}

	return store, nil
}

func (a *app) Close() {
	if err := a.closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
}
