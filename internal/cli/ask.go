package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [text...]",
	Short: "Ask the assistant one thing",
	Long:  "Classify and route a single utterance. Mutating requests become pending approvals instead of executing.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := context.Background()
		text := strings.Join(args, " ")

		classification := app.classifier.Classify(ctx, text, nil)
		result, err := app.router.Route(ctx, app.cfg.Global.DefaultUser, classification)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Reply)
		if result.ApprovalID != "" {
			fmt.Fprintf(os.Stdout, "\nApproval id: %s\nDecide with: aide approvals approve %s\n", result.ApprovalID, result.ApprovalID)
		}
		return nil
	},
}
