package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/shaiso/bpmnflow/internal/config"
	"github.com/shaiso/bpmnflow/internal/telemetry"
)

// AppFunc создаёт App после разбора флагов.
type AppFunc func(ctx context.Context) (*App, error)

// Streams — стандартные потоки процесса.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewRootCmd создаёт корневую команду bpmnflow.
func NewRootCmd(version string, s Streams) *cobra.Command {
	var configPath string
	var metricsAddr string
	var jsonOutput bool

	root := &cobra.Command{
		Use:           "bpmnflow",
		Short:         "bpmnflow — run BPMN flows drawn in draw.io",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(s.In)
	root.SetOut(s.Out)
	root.SetErr(s.Err)
	root.SetFlagErrorFunc(flagError)

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	appFn := func(ctx context.Context) (*App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}

		logger := telemetry.NewLogger(s.Err, cfg.Log.Level, cfg.Log.Format)

		// В режиме JSON stdout занят результатом, журнал шагов уходит в stderr.
		progress := s.Out
		if jsonOutput {
			progress = s.Err
		}
		app := NewApp(cfg, logger, s.In, progress)
		app.ServeMetrics(ctx)
		return app, nil
	}
	outputFn := func() *Output { return NewOutput(jsonOutput, s.Out, s.Err) }

	root.AddCommand(
		NewRunCmd(appFn, outputFn),
		NewStartCmd(appFn, outputFn),
		NewResumeCmd(appFn, outputFn),
		NewDiagramCmd(outputFn),
		NewLogCmd(appFn, outputFn),
		NewEventsCmd(appFn, outputFn),
	)

	return root
}
