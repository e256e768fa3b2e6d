package approval

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/shaiso/bpmnflow/internal/graph"
)

// Renderer показывает граф с выделенным текущим шагом.
type Renderer interface {
	Render(w io.Writer, flow string, g *graph.Graph, current string) error
}

// NopRenderer ничего не выводит.
type NopRenderer struct{}

// Render реализует Renderer.
func (NopRenderer) Render(io.Writer, string, *graph.Graph, string) error { return nil }

// TextRenderer рисует список шагов и переходов в рамке.
type TextRenderer struct{}

// Render реализует Renderer.
func (TextRenderer) Render(w io.Writer, flow string, g *graph.Graph, current string) error {
	r := lipgloss.NewRenderer(w)

	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	normal := r.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	active := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	edge := r.NewStyle().Foreground(lipgloss.Color("#888888"))
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1)

	lines := []string{title.Render(fmt.Sprintf("Flow '%s' stopped", flow)), ""}
	for _, s := range g.Steps {
		marker, style := "  ", normal
		if s.ID == current {
			marker, style = "▶ ", active
		}
		lines = append(lines, style.Render(marker+describe(s)))

		for _, c := range g.Outgoing(s.ID) {
			target := c.Target
			if t := g.Step(c.Target); t != nil {
				target = t.DisplayName()
			}
			label := ""
			if c.Value != "" {
				label = " [" + c.Value + "]"
			}
			lines = append(lines, edge.Render("    → "+target+label))
		}
	}

	_, err := fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
	return err
}

func describe(s *graph.Step) string {
	var b strings.Builder
	b.WriteString(s.DisplayName())
	switch {
	case s.IsStart:
		b.WriteString(" (start)")
	case s.Kind != graph.KindShape:
		b.WriteString(" (" + string(s.Kind) + ")")
	}
	if s.Disabled {
		b.WriteString(" [disabled]")
	}
	return b.String()
}

// RendererByName возвращает Renderer по имени из конфигурации.
func RendererByName(name string) Renderer {
	if name == "none" {
		return NopRenderer{}
	}
	return TextRenderer{}
}
