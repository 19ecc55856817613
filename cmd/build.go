package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/builder"
	"github.com/Norgate-AV/riotam/internal/utils"
)

func newBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a custom application",
		Long: `Build an application from catalog module IDs and a main.c.
The result is printed as JSON on stdout.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}

	buildCmd.Flags().String("board", "", "Board to build for")
	buildCmd.Flags().StringSlice("modules", nil, "Catalog IDs of the modules to use")
	buildCmd.Flags().String("mainfile", "", "Content of main.c")
	buildCmd.Flags().String("mainfile-path", "", "Read main.c from this file")
	_ = buildCmd.MarkFlagRequired("board")
	_ = buildCmd.MarkFlagRequired("modules")
	buildCmd.MarkFlagsOneRequired("mainfile", "mainfile-path")
	buildCmd.MarkFlagsMutuallyExclusive("mainfile", "mainfile-path")

	return buildCmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	board, _ := cmd.Flags().GetString("board")
	rawIDs, _ := cmd.Flags().GetStringSlice("modules")
	mainContent, _ := cmd.Flags().GetString("mainfile")
	mainPath, _ := cmd.Flags().GetString("mainfile-path")

	ids, err := utils.ParseIDs(rawIDs)
	if err != nil {
		return err
	}

	if mainPath != "" {
		data, err := os.ReadFile(mainPath)
		if err != nil {
			return fmt.Errorf("failed to read main file: %w", err)
		}
		mainContent = string(data)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openCatalog(cmd.Context())
	if err != nil {
		return writeResult(cmd, failedResult(board, err))
	}
	defer store.Close()

	res := builder.NewPipeline(a.cfg, store, a.logger).BuildCustom(cmd.Context(), board, ids, mainContent)

	return writeResult(cmd, res)
}

func failedResult(board string, err error) *builder.Result {
	return &builder.Result{
		CmdOutput:       err.Error(),
		Board:           board,
		ApplicationName: "application",
	}
}

// writeResult prints res as JSON and turns an unsuccessful build into an error
func writeResult(cmd *cobra.Command, res *builder.Result) error {
	if err := res.Write(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if !res.Success {
		return errBuildFailed
	}

	return nil
}
