package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/bpmnflow/internal/runlog"
)

const timeLayout = "2006-01-02 15:04:05"

// NewLogCmd создаёт группу команд для журнала запусков.
func NewLogCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and clean up the run log",
	}

	cmd.AddCommand(
		newLogCleanupCmd(appFn, outputFn),
		newLogRunsCmd(appFn, outputFn),
		newLogStepsCmd(appFn, outputFn),
	)

	return cmd
}

func newLogCleanupCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete runs older than the retention period",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if cmd.Flags().Changed("days") {
				if days < 0 {
					return &UsageError{Err: fmt.Errorf("days must not be negative: %d", days)}
				}
				app.Config.RunLog.RetentionDays = days
			}

			sink, err := app.Sink(ctx)
			if err != nil {
				return err
			}
			n, err := sink.Cleanup(ctx, app.Config.RunLog.RetentionPeriod())
			if err != nil {
				return fmt.Errorf("cleanup run log: %w", err)
			}

			out := outputFn()
			if out.JSONMode() {
				return out.JSON(map[string]any{"deleted_runs": n})
			}
			out.Success(fmt.Sprintf("Deleted %d run(s) older than %d day(s)", n, app.Config.RunLog.RetentionDays))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default from config)")

	return cmd
}

func newLogRunsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			reader, err := logReader(app, cmd)
			if err != nil {
				return err
			}
			runs, err := reader.Runs(ctx, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLOW", "STARTED", "FINISHED", "RESULT"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				finished := ""
				if r.Finished != nil {
					finished = r.Finished.Local().Format(timeLayout)
				}
				rows[i] = []string{r.ID, r.FlowName, r.Started.Local().Format(timeLayout), finished, r.Result}
			}

			return outputFn().Print(headers, rows, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	return cmd
}

func newLogStepsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps RUN_ID",
		Short: "Show step records of a run",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			reader, err := logReader(app, cmd)
			if err != nil {
				return err
			}
			steps, err := reader.Steps(ctx, args[0])
			if err != nil {
				return err
			}

			headers := []string{"#", "TIME", "STEP", "STATUS", "RESULT"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{fmt.Sprint(s.StepNumber), s.Timestamp.Local().Format(time.TimeOnly), s.StepName, s.Status, s.Result}
			}

			return outputFn().Print(headers, rows, steps)
		},
	}
}

func logReader(app *App, cmd *cobra.Command) (runlog.Reader, error) {
	sink, err := app.Sink(cmd.Context())
	if err != nil {
		return nil, err
	}
	reader, ok := sink.(runlog.Reader)
	if !ok {
		return nil, fmt.Errorf("run log backend %q cannot be read", app.Config.RunLog.Backend)
	}
	return reader, nil
}
