package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aide/internal/tui"
)

var (
	approveReason string
	rejectReason  string
)

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
	approvalsCmd.AddCommand(approvalsReviewCmd)

	approvalsApproveCmd.Flags().StringVar(&approveReason, "reason", "", "optional decision note")
	approvalsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "optional decision note")
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Manage pending approvals",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		pending, err := app.gateway.ListPending(context.Background(), app.cfg.Global.DefaultUser)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(os.Stdout, "No pending approvals.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tACTION\tREQUESTED")
		for _, approval := range pending {
			fmt.Fprintf(writer, "%s\t%s\t%s\n",
				approval.ID,
				approval.ActionType,
				approval.RequestedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return writer.Flush()
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve and execute a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := context.Background()
		if _, err := app.gateway.Decide(ctx, args[0], true, approveReason, "cli"); err != nil {
			return err
		}

		result, err := app.gateway.Execute(ctx, args[0])
		if err != nil {
			return err
		}
		if result.Success {
			fmt.Fprintf(os.Stdout, "Approved and executed: %s\n", result.Output)
		} else {
			fmt.Fprintf(os.Stdout, "Approved, but execution failed: %s\n", result.Error)
		}
		return nil
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.gateway.Decide(context.Background(), args[0], false, rejectReason, "cli"); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Rejected.")
		return nil
	},
}

var approvalsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending approvals interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		return tui.Run(app.gateway, tui.Config{UserID: app.cfg.Global.DefaultUser})
	},
}
