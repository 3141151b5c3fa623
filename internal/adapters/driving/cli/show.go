package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/core/services"
	"github.com/apidb-dev/apidb/internal/workspace"
)

var (
	showJSON   bool
	opSource   string
	opJSON     bool
	schemaFlag struct {
		source string
		json   bool
	}
)

var showCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show a document by doc id",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var opCmd = &cobra.Command{
	Use:   "op [method] [path]",
	Short: "Show an operation doc by exact method and path",
	Long: `Resolves an operation by method and path across the enabled sources.
When the same operation exists in several sources, pass --source to pick
one.`,
	Args: cobra.ExactArgs(2),
	RunE: runOp,
}

var schemaCmd = &cobra.Command{
	Use:   "schema [name]",
	Short: "Show a schema doc by exact name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchema,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "machine-readable JSON")
	opCmd.Flags().StringVar(&opSource, "source", "", "source id")
	opCmd.Flags().BoolVar(&opJSON, "json", false, "machine-readable JSON")
	schemaCmd.Flags().StringVar(&schemaFlag.source, "source", "", "source id")
	schemaCmd.Flags().BoolVar(&schemaFlag.json, "json", false, "machine-readable JSON")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(opCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}

	doc, err := services.NewDocumentService(h).GetDoc(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printDoc(cmd, doc, "", showJSON)
}

func runOp(cmd *cobra.Command, args []string) error {
	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}

	id, err := services.NewResolveService(h).ResolveOperationDocID(cmd.Context(), args[0], args[1], opSource)
	if err != nil {
		return err
	}
	return showResolved(cmd, h, id, opJSON)
}

func runSchema(cmd *cobra.Command, args []string) error {
	h, _, err := resolveWorkspace()
	if err != nil {
		return err
	}

	id, err := services.NewResolveService(h).ResolveSchemaDocID(cmd.Context(), args[0], schemaFlag.source)
	if err != nil {
		return err
	}
	return showResolved(cmd, h, id, schemaFlag.json)
}

func showResolved(cmd *cobra.Command, h workspace.Handle, id string, asJSON bool) error {
	doc, err := services.NewDocumentService(h).GetDoc(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printDoc(cmd, doc, id, asJSON)
}

func printDoc(cmd *cobra.Command, doc *domain.Doc, resolvedID string, asJSON bool) error {
	if asJSON {
		var payload any = doc
		if resolvedID != "" {
			payload = struct {
				DocID string      `json:"docId"`
				Doc   *domain.Doc `json:"doc"`
			}{DocID: resolvedID, Doc: doc}
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling doc: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Print(renderDoc(doc))
	return nil
}

// renderDoc formats a document for humans: a heading line plus the most
// useful payload fields.
func renderDoc(doc *domain.Doc) string {
	var lines []string
	switch doc.Kind {
	case domain.DocKindOperation:
		lines = append(lines, doc.Method+" "+doc.Path)
		if doc.Operation != nil {
			if doc.Operation.Summary != "" {
				lines = append(lines, "Summary: "+doc.Operation.Summary)
			}
			if doc.Operation.OperationID != "" {
				lines = append(lines, "OperationId: "+doc.Operation.OperationID)
			}
		}
	case domain.DocKindSchema:
		lines = append(lines, "Schema "+doc.SchemaName)
		if doc.Schema != nil && doc.Schema.Description != "" {
			lines = append(lines, "Description: "+doc.Schema.Description)
		}
	default:
		lines = append(lines, doc.Title)
	}
	return strings.Join(lines, "\n") + "\n"
}
