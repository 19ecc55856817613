package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/riotam/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the build caches",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache usage per board",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	})

	return cacheCmd
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []cache.Option{cache.WithVersion(a.cfg.CacheVersion), cache.WithLogger(a.logger)}
	out := cmd.OutOrStdout()

	for _, c := range []struct {
		name  string
		cache *cache.Cache
	}{
		{"modules", cache.New(a.cfg.ModuleCacheDir, opts...)},
		{"applications", cache.New(a.cfg.ApplicationCacheDir, opts...)},
	} {
		stats, err := c.cache.Stats()
		if err != nil {
			return fmt.Errorf("failed to read %s cache: %w", c.name, err)
		}

		printStats(out, c.name, c.cache.Root(), stats)
	}

	return nil
}

func printStats(w io.Writer, name, root string, s cache.Stats) {
	fmt.Fprintf(w, "%s (%s)\n", name, root)
	fmt.Fprintf(w, "  entries: %d\n", s.Entries)
	fmt.Fprintf(w, "  partial: %d\n", s.Partial)
	fmt.Fprintf(w, "  size:    %d bytes\n", s.Size)

	boards := make([]string, 0, len(s.Boards))
	for b := range s.Boards {
		boards = append(boards, b)
	}
	sort.Strings(boards)

	for _, b := range boards {
		fmt.Fprintf(w, "  %-24s %d\n", b, s.Boards[b])
	}
}
