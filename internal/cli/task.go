package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aide/internal/engine"
	"aide/internal/models"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskEventsCmd)
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage multi-step tasks",
}

var taskStartCmd = &cobra.Command{
	Use:   "start [prompt...]",
	Short: "Run a multi-step task to completion",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		prompt := strings.Join(args, " ")
		if !engine.IsMultiStep(prompt) {
			return fmt.Errorf("%s", engine.MultiStepHint)
		}

		result, err := app.engine.Run(context.Background(), app.cfg.Global.DefaultUser, prompt)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Task %s finished: %s after %d iteration(s)\n",
			result.TaskID, result.FinalStatus, result.IterationCount)
		if result.Output != "" {
			fmt.Fprintln(os.Stdout, result.Output)
		}
		if result.Error != "" {
			fmt.Fprintln(os.Stdout, "Error:", result.Error)
		}
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a task and its iterations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		task, err := app.engine.Status(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Task:    %s\nStatus:  %s\nPrompt:  %s\nProgress: %d/%d\n",
			task.ID, task.Status, task.Prompt, task.CurrentIteration, task.MaxIterations)
		if task.Error != "" {
			fmt.Fprintln(os.Stdout, "Error:  ", task.Error)
		}
		if len(task.Iterations) == 0 {
			return nil
		}

		fmt.Fprintln(os.Stdout)
		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "N\tTIME\tDONE\tRESULT")
		for _, it := range task.Iterations {
			fmt.Fprintf(writer, "%d\t%s\t%v\t%s\n",
				it.Number,
				it.Timestamp.Format("15:04:05"),
				it.CompletionDetected,
				truncate(it.Result, 60),
			)
		}
		return writer.Flush()
	},
}

var taskEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "Show the audit trail for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		events, err := app.events.ListByEntity(context.Background(), models.EntityTypeTask, args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(os.Stdout, "No events recorded.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "TIME\tEVENT\tDETAIL")
		for _, event := range events {
			fmt.Fprintf(writer, "%s\t%s\t%s\n",
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.Type,
				truncate(string(event.Payload), 60),
			)
		}
		return writer.Flush()
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Ask a running task to stop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.engine.Cancel(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Stop requested. The task halts at its next iteration boundary.")
		return nil
	},
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
