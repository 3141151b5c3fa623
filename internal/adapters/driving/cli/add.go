package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/config"
	"github.com/apidb-dev/apidb/internal/core/services"
	"github.com/apidb-dev/apidb/internal/settings"
)

var (
	addSourceID string
	addNoSync   bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a source",
}

var addOpenAPICmd = &cobra.Command{
	Use:   "openapi [location]",
	Short: "Add an OpenAPI source by file path or URL",
	Long: `Registers an OpenAPI 3.x document as a source. The location may be a
local file path or an http/https URL. Unless --no-sync is given, the
workspace is synced immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runAddOpenAPI,
}

func init() {
	addOpenAPICmd.Flags().StringVar(&addSourceID, "id", "", "source id (required)")
	addOpenAPICmd.Flags().BoolVar(&addNoSync, "no-sync", false, "do not sync immediately")
	if err := addOpenAPICmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	addCmd.AddCommand(addOpenAPICmd)
	rootCmd.AddCommand(addCmd)
}

func runAddOpenAPI(cmd *cobra.Command, args []string) error {
	location := args[0]
	if location == "" {
		return errors.New("location must not be empty")
	}

	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}
	if err := config.Init(h); err != nil {
		return err
	}

	cfg, err := config.Load(h)
	if err != nil {
		return err
	}
	cfg, err = config.AddOpenAPISource(cfg, addSourceID, location)
	if err != nil {
		return err
	}
	if err := config.Save(h, cfg); err != nil {
		return err
	}
	cmd.Printf("Added source %s\n", addSourceID)

	if addNoSync {
		return nil
	}

	set, err := settings.Load(h)
	if err != nil {
		return err
	}
	if _, err := services.NewSyncer(h, set).Sync(context.Background(), services.SyncOptions{Strict: true}); err != nil {
		return err
	}
	cmd.Println("Sync OK")
	return nil
}
