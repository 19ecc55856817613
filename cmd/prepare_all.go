package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/builder"
	"github.com/Norgate-AV/riotam/internal/tasks"
)

func newPrepareAllCmd() *cobra.Command {
	prepareAllCmd := &cobra.Command{
		Use:   "prepare-all",
		Short: "Prebuild every example for every supported board",
		Long: `Build every catalog application for each board it supports and store
the binaries in the application cache.`,
		Args: cobra.NoArgs,
		RunE: runPrepareAll,
	}

	prepareAllCmd.Flags().IntP("workers", "w", 0, "Parallel builds (default: number of CPUs)")
	prepareAllCmd.Flags().Bool("no-cache", false, "Do not reuse cached module objects")

	return prepareAllCmd
}

func runPrepareAll(cmd *cobra.Command, args []string) error {
	noCache, _ := cmd.Flags().GetBool("no-cache")
	out := cmd.OutOrStdout()

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := builder.NewPipeline(a.cfg, store, a.logger)

	fmt.Fprintln(out, "preparing build tasks...")
	list, err := tasks.Collect(cmd.Context(), store, pipeline.Builder(), a.cfg.RiotDir, a.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "got %d tasks\n", len(list))
	fmt.Fprintf(out, "using cache: %t\n", !noCache)
	fmt.Fprintf(out, "starting %d workers...\n", a.cfg.Workers)

	runner := &tasks.Runner{
		Builder: pipeline,
		Workers: a.cfg.Workers,
		Caching: !noCache,
		Out:     out,
		Logger:  a.logger,
	}

	stat := runner.Run(cmd.Context(), list)
	fmt.Fprint(out, stat)

	return cmd.Context().Err()
}
