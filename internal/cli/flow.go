package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/bpmnflow/internal/engine"
	"github.com/shaiso/bpmnflow/internal/variables"
)

// NewRunCmd создаёт команду однократного запуска flow.
func NewRunCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "run DIAGRAM [INPUT]",
		Short: "Run a flow once without checkpoints",
		Long: "Run a flow from start to end. INPUT is bound to %input%; " +
			"valid JSON is decoded, anything else is passed as a string.",
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.LoadFlow(ResolveDiagram(args[0]))
			if err != nil {
				return err
			}
			if len(args) == 2 {
				st.Input = ParseInput(args[1])
			}

			eng, err := app.Engine(ctx, false)
			if err != nil {
				return err
			}
			res, err := eng.Run(ctx, st, "")
			return report(outputFn(), res, err)
		},
	}
}

// NewStartCmd создаёт команду запуска именованного экземпляра.
func NewStartCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "start DIAGRAM INSTANCE",
		Short: "Start a named flow instance with checkpoints and step approval",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.LoadFlow(ResolveDiagram(args[0]))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				st.Input = ParseInput(input)
			}

			key := args[1]
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			exists, err := store.Exists(ctx, key)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("instance %q already exists, use resume", key)
			}

			eng, err := app.Engine(ctx, true)
			if err != nil {
				return err
			}
			res, err := eng.Run(ctx, st, key)
			return report(outputFn(), res, err)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Value bound to %input%")

	return cmd
}

// NewResumeCmd создаёт команду продолжения экземпляра.
func NewResumeCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume INSTANCE",
		Short: "Resume a saved flow instance by path or name",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			eng, err := app.Engine(ctx, true)
			if err != nil {
				return err
			}
			res, err := eng.Resume(ctx, app.InstanceKey(args[0]))
			return report(outputFn(), res, err)
		},
	}
}

// ParseInput декодирует вход flow: JSON, если он корректен, иначе строка.
func ParseInput(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// resultView — представление итога запуска для вывода.
type resultView struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	StepID string `json:"step_id,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func report(out *Output, res *engine.Result, runErr error) error {
	if res == nil {
		return runErr
	}

	view := resultView{
		Status: string(res.Status),
		RunID:  res.RunID,
		StepID: res.StepID,
	}
	if res.Output != nil {
		view.Output = variables.Format(res.Output)
	}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	if out.JSONMode() {
		if err := out.JSON(view); err != nil {
			return err
		}
	}

	switch res.Status {
	case engine.StatusCompleted:
		out.Success(fmt.Sprintf("Flow completed (run %s).", res.RunID))
	case engine.StatusDeclined:
		out.Success(fmt.Sprintf("Flow paused before step %s.", res.StepID))
	case engine.StatusFailed:
		return errors.Join(fmt.Errorf("%w at step %s: %w", ErrFlowFailed, res.StepID, res.Err), runErr)
	}
	return runErr
}
