package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/bpmnflow/internal/diagram"
	"github.com/shaiso/bpmnflow/internal/graph"
)

// NewDiagramCmd создаёт группу команд для работы с файлами диаграмм.
func NewDiagramCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Decode, encode and inspect diagram files",
	}

	cmd.AddCommand(
		newDiagramDecodeCmd(outputFn),
		newDiagramEncodeCmd(outputFn),
		newDiagramInspectCmd(outputFn),
	)

	return cmd
}

func newDiagramDecodeCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE",
		Short: "Print the inner XML of a compressed diagram",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read diagram: %w", err)
			}
			inner, err := diagram.InnerXML(data)
			if err != nil {
				return err
			}

			w := outputFn().Writer()
			if _, err := w.Write(inner); err != nil {
				return err
			}
			_, err = fmt.Fprintln(w)
			return err
		},
	}
}

func newDiagramEncodeCmd(outputFn func() *Output) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "encode XML_FILE OUT_FILE",
		Short: "Write inner XML into a compressed diagram file",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			inner, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read xml: %w", err)
			}
			if _, err := diagram.ParseGraphModel(inner); err != nil {
				return err
			}
			if err := diagram.WriteFile(args[1], name, inner); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Diagram written to %s", args[1]))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Diagram page name (default Page-1)")

	return cmd
}

// diagramView — шаги и рёбра графа для вывода в JSON.
type diagramView struct {
	Start      string             `json:"start"`
	Steps      []*graph.Step      `json:"steps"`
	Connectors []*graph.Connector `json:"connectors"`
}

func newDiagramInspectCmd(outputFn func() *Output) *cobra.Command {
	var firstStart bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show steps and connectors of a diagram",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := diagram.Load(args[0])
			if err != nil {
				return err
			}

			opts := []graph.Option{graph.WithLogger(slog.New(slog.DiscardHandler))}
			if firstStart {
				opts = append(opts, graph.WithFirstStart())
			}
			g, err := graph.Build(raw, opts...)
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				return out.JSON(diagramView{Start: g.Start().ID, Steps: g.Steps, Connectors: g.Connectors})
			}

			headers := []string{"ID", "NAME", "KIND", "ACTION", "OUTPUT", "START", "LOOP"}
			rows := make([][]string, len(g.Steps))
			for i, s := range g.Steps {
				rows[i] = []string{s.ID, s.Name, string(s.Kind), actionString(s), s.OutputVariable, flag(s.IsStart), loopString(s)}
			}
			if err := out.Table(headers, rows); err != nil {
				return err
			}
			fmt.Fprintln(out.Writer())

			headers = []string{"ID", "SOURCE", "TARGET", "LABEL"}
			rows = make([][]string, len(g.Connectors))
			for i, c := range g.Connectors {
				rows[i] = []string{c.ID, c.Source, c.Target, c.Value}
			}
			return out.Table(headers, rows)
		},
	}

	cmd.Flags().BoolVar(&firstStart, "first-start", false, "Pick the first start candidate instead of failing")

	return cmd
}

func actionString(s *graph.Step) string {
	if s.Disabled {
		return "(disabled)"
	}
	if s.Action == nil {
		return ""
	}
	return s.Action.String()
}

func loopString(s *graph.Step) string {
	if !s.IsLoop() {
		return ""
	}
	return strconv.Itoa(*s.LoopCounterStart)
}

func flag(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
