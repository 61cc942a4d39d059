// Command docqa-upload submits a document to the document API from a terminal
// through the same upload widget the web page uses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docqa-upload",
		Short: "Upload financial statements to the document Q&A API",
		Long: `docqa-upload sends a PDF to the document API exactly like the web page does:
one multipart POST per attempt, reporting either the API's JSON result or a
single error line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		uploadCmd(),
		inspectCmd(),
		versionCmd(),
	)
	return rootCmd
}
