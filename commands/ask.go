package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itish2003/minirag/models"
)

var askNoContext bool

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question, using the indexed document as context",
		Long: `Ask a question. The top matching chunks of the indexed document are
sent along with it unless --no-context is given or nothing is indexed.

Examples:
  minirag ask "What is the refund policy?"
  minirag ask --no-context "Write a haiku about PDFs"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().BoolVar(&askNoContext, "no-context", false, "Do not retrieve context from the index")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	useContext := !askNoContext
	resp, err := a.rag.AskWithContext(cmd.Context(), models.AskWithContextRequest{
		Message:    strings.Join(args, " "),
		UseContext: &useContext,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Response)
	if resp.ContextUsed {
		fmt.Fprintf(out, "\n(context: %d characters)\n", resp.ContextLength)
	}
	return nil
}
