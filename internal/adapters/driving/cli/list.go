package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/core/services"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources and their sync status",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "machine-readable JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}

	listings, err := services.NewSourceService(h).List(cmd.Context())
	if err != nil {
		return err
	}

	if listJSON {
		data, err := json.MarshalIndent(struct {
			Sources []domain.SourceListing `json:"sources"`
		}{Sources: listings}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling listing: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for _, l := range listings {
		state := "disabled"
		if l.Source.Enabled {
			state = "enabled"
		}
		cmd.Printf("%s\t%s\t%s\n", l.Source.ID, state, l.Source.Location)
		if l.Status != nil && l.Status.LastError != nil {
			cmd.Printf("\tlast error: %s\n", *l.Status.LastError)
		}
	}
	return nil
}
