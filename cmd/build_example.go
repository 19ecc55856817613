package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/builder"
)

func newBuildExampleCmd() *cobra.Command {
	buildExampleCmd := &cobra.Command{
		Use:   "build-example",
		Short: "Build an example application",
		Long: `Build an example application from the catalog.
With --caching, cached binaries and module objects are reused. With
--prefetching, only the binaries are built and stored in the application cache.`,
		Args: cobra.NoArgs,
		RunE: runBuildExample,
	}

	buildExampleCmd.Flags().String("board", "", "Board to build for")
	buildExampleCmd.Flags().Int("application", 0, "Catalog ID of the application")
	buildExampleCmd.Flags().Bool("caching", false, "Use the module and application caches")
	buildExampleCmd.Flags().Bool("prefetching", false, "Only build binaries and store them in the application cache")
	_ = buildExampleCmd.MarkFlagRequired("board")
	_ = buildExampleCmd.MarkFlagRequired("application")

	return buildExampleCmd
}

func runBuildExample(cmd *cobra.Command, args []string) error {
	req := builder.ExampleRequest{}
	req.Board, _ = cmd.Flags().GetString("board")
	req.ApplicationID, _ = cmd.Flags().GetInt("application")
	req.Caching, _ = cmd.Flags().GetBool("caching")
	req.Prefetching, _ = cmd.Flags().GetBool("prefetching")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openCatalog(cmd.Context())
	if err != nil {
		return writeResult(cmd, failedResult(req.Board, err))
	}
	defer store.Close()

	res := builder.NewPipeline(a.cfg, store, a.logger).BuildExample(cmd.Context(), req)

	return writeResult(cmd, res)
}
