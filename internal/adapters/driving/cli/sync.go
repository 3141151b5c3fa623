package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/core/services"
	"github.com/apidb-dev/apidb/internal/logger"
	"github.com/apidb-dev/apidb/internal/settings"
	"github.com/apidb-dev/apidb/internal/watch"
)

var (
	syncAllowPartial    bool
	syncAllowPrivateNet bool
	syncWatch           bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync enabled sources into the local index",
	Long: `Rebuilds the index from all enabled sources. The previous index stays
untouched until the new one is complete, so queries keep working during
a sync. With --watch, stays running and resyncs whenever the config or a
local source file changes.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncAllowPartial, "allow-partial", false, "continue syncing other sources on failure")
	syncCmd.Flags().BoolVar(&syncAllowPrivateNet, "allow-private-net", false, "allow fetching private network addresses")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep running and resync on changes")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}
	set, err := settings.Load(h)
	if err != nil {
		return err
	}

	syncer := services.NewSyncer(h, set)
	opts := services.SyncOptions{
		Strict:          !syncAllowPartial,
		AllowPrivateNet: syncAllowPrivateNet,
	}

	result, err := syncer.Sync(cmd.Context(), opts)
	if err != nil {
		return err
	}
	cmd.Printf("Sync OK (%d sources, %d docs)\n", result.SourcesProcessed, result.DocsInserted)

	if !syncWatch {
		return nil
	}

	watcher, err := watch.New(h, func(ctx context.Context) {
		r, err := syncer.Sync(ctx, opts)
		if err != nil {
			logger.Warn("Resync failed: %v", err)
			return
		}
		cmd.Printf("Sync OK (%d sources, %d docs)\n", r.SourcesProcessed, r.DocsInserted)
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Println("Watching for changes (ctrl-c to stop)")
	return watcher.Run(ctx)
}
