package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/strip"
)

func newStripCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strip",
		Short: "Create the bare stripped RIOT tree",
		Long: `Copy the RIOT checkout to the stripped directory, leaving out everything
matched by the strip.ignore patterns. Download archives are assembled from it.`,
		Args: cobra.NoArgs,
		RunE: runStrip,
	}
}

func runStrip(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return strip.StripRepository(a.cfg.RiotDir, a.cfg.StrippedDir, a.cfg.StripIgnore, a.logger)
}
