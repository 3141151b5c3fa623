// Package cli implements the apidb command-line interface on top of the
// core services. Commands resolve the workspace, call a service, and
// format the result; all behaviour lives in the services.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apidb-dev/apidb/internal/logger"
	"github.com/apidb-dev/apidb/internal/workspace"
)

var (
	flagRoot    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "apidb",
	Short: "Local queryable index of OpenAPI operations and schemas",
	Long: `apidb maintains a local full-text index over the operations and
component schemas of configured OpenAPI sources. Sources are synced into
the index with 'apidb sync' and queried with 'search', 'show', 'op' and
'schema'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "workspace root (overrides auto-discovery)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// resolveWorkspace selects the workspace root: --root if given, else the
// nearest ancestor with a .apidb directory, else the current directory.
func resolveWorkspace() (workspace.Handle, workspace.RootSelection, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return workspace.Handle{}, workspace.RootSelection{}, fmt.Errorf("getting working directory: %w", err)
	}

	sel, err := workspace.FindRoot(cwd, flagRoot)
	if err != nil {
		return workspace.Handle{}, workspace.RootSelection{}, err
	}
	logger.Debug("Workspace root: %s (%s)", sel.Root, sel.Reason)
	return workspace.NewHandle(sel.Root), sel, nil
}

var rootShowCmd = &cobra.Command{
	Use:   "root",
	Short: "Print the selected workspace root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, sel, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cmd.Println(sel.Root)
		if flagVerbose {
			cmd.Println(sel.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rootShowCmd)
}
