package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/core/services"
)

var (
	searchKind   string
	searchSource string
	searchLimit  int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed docs",
	Long: `Runs a full-text query over indexed operations and schemas. Results
are ranked by relevance, with operations winning ties.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchKind, "kind", "any", "operation|schema|any")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict to one source id")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultSearchLimit, "maximum number of results (max 50)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "machine-readable JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	kind := domain.DocKind(searchKind)
	switch kind {
	case domain.DocKindOperation, domain.DocKindSchema, domain.DocKindAny:
	default:
		return fmt.Errorf("invalid --kind %q: must be operation, schema or any: %w",
			searchKind, domain.ErrInvalidInput)
	}

	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}

	results, err := services.NewSearchService(h).Search(cmd.Context(), query, domain.SearchOptions{
		Kind:     kind,
		SourceID: searchSource,
		Limit:    searchLimit,
	})
	if err != nil {
		return err
	}

	if searchJSON {
		data, err := json.MarshalIndent(struct {
			Query   string                `json:"query"`
			Results []domain.SearchResult `json:"results"`
		}{Query: query, Results: results}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for _, r := range results {
		cmd.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.Title, r.SourceID)
	}
	return nil
}
