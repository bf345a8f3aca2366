// Package commands implements the minirag command line.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/itish2003/minirag/config"
	"github.com/itish2003/minirag/logging"
	"github.com/itish2003/minirag/services"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "minirag",
		Short: "Minimal retrieval-augmented generation backend",
		Long: `minirag indexes a PDF into overlapping text chunks and answers
questions with the most relevant chunks as context.

Run "minirag serve" for the HTTP API, or use the subcommands directly.
Settings come from the environment, a .env file and CONFIG_FILE.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			services.SetPDFLicense(cfg.UnidocLicenseKey)
			return nil
		},
	}

	cmd.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewStatusCmd(),
		NewClearCmd(),
		NewModelsCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
