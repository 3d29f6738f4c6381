package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/pdigest/internal/config"
	"github.com/ppiankov/pdigest/internal/store"
)

var errCacheDisabled = errors.New("oembed cache is disabled (storage.path is empty)")

var pruneDays int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the oEmbed markup cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached oEmbed entries per host",
	RunE:  cacheStatsAction,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached markup older than the retention window",
	RunE:  cachePruneAction,
}

func init() {
	cachePruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (default storage.retain_days)")
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Path == "" {
		return nil, nil, errCacheDisabled
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	return cfg, db, nil
}

func cacheStatsAction(cmd *cobra.Command, _ []string) error {
	cfg, db, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	stats, err := db.Stats(commandContext(cmd))
	if err != nil {
		return err
	}
	printCacheStats(os.Stdout, cfg.Storage.Path, stats)
	return nil
}

func printCacheStats(w io.Writer, path string, stats store.Stats) {
	fmt.Fprintf(w, "oembed cache %s\n\n", path)
	if stats.Entries == 0 {
		fmt.Fprintln(w, "No cached entries.")
		return
	}
	fmt.Fprintf(w, "%d entries, fetched %s .. %s\n\n", stats.Entries,
		stats.Oldest.Local().Format(time.DateOnly), stats.Newest.Local().Format(time.DateOnly))

	fmt.Fprintf(w, "  %-28s %8s %8s  %s\n", "HOST", "ENTRIES", "HITS", "LAST FETCHED")
	for _, h := range stats.Hosts {
		fmt.Fprintf(w, "  %-28s %8d %8d  %s\n", h.Host, h.Entries, h.Hits, h.LastFetched.Local().Format(time.DateOnly))
	}
}

func cachePruneAction(cmd *cobra.Command, _ []string) error {
	cfg, db, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	days := pruneDays
	if days <= 0 {
		days = cfg.Storage.RetainDays
	}
	n, err := db.PruneOld(commandContext(cmd), days)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d entries older than %d days.\n", n, days)
	return nil
}
