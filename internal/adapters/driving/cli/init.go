package cli

import (
	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the workspace config",
	Long:  `Creates .apidb/config.json in the workspace root if it does not exist yet.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}
	if err := config.Init(h); err != nil {
		return err
	}
	cmd.Printf("Initialized %s\n", h.ConfigPath())
	return nil
}
