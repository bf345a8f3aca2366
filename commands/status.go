package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a vector index is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			status := a.rag.Status()
			out := cmd.OutOrStdout()
			if !status.HasVectorDB {
				fmt.Fprintln(out, "No vector index. Upload or ingest a PDF first.")
				return nil
			}
			fmt.Fprintf(out, "Vector index available at %s\n", *status.VectorDBPath)
			return nil
		},
	}
}
