package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/catalog"
)

func newDBUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "db-update",
		Short: "Rescan the RIOT tree into the catalog",
		Long: `Replace the catalog's modules, boards and applications with the ones
found in the RIOT checkout.`,
		Args: cobra.NoArgs,
		RunE: runDBUpdate,
	}
}

func runDBUpdate(cmd *cobra.Command, args []string) error {
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

	scanner := &catalog.Scanner{
		RiotDir:                a.cfg.RiotDir,
		ModuleDirectories:      a.cfg.ModuleDirectories,
		ApplicationDirectories: a.cfg.ApplicationDirectories,
		BoardDisplayNames:      a.cfg.BoardDisplayNames,
		Logger:                 a.logger,
	}

	return scanner.Update(cmd.Context(), store)
}
