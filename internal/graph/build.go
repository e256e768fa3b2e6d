package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/bpmnflow/internal/diagram"
)

// Атрибуты узла, которые интерпретирует построитель.
const (
	attrType           = "type"
	attrModule         = "module"
	attrClass          = "classname"
	attrClassShort     = "class"
	attrFunction       = "function"
	attrOutputVariable = "output_variable"
	attrLoopCounter    = "loopcounter"
	attrDescription    = "shape_description"
	attrDescriptionAlt = "description"
)

// Build строит граф из узлов диаграммы.
//
// Алгоритм:
//  1. Узлы с source/target (или edge="1") становятся рёбрами.
//  2. Подписи рёбер (style содержит edgeLabel) передают value ребру-родителю.
//  3. Остальные узлы классифицируются и становятся шагами.
//  4. Определяется единственный стартовый шаг.
func Build(raw *diagram.RawGraph, opts ...Option) (*Graph, error) {
	if raw == nil {
		return nil, NewValidationError("", "steps", "flow graph has no steps", ErrNoSteps)
	}

	var (
		connectors []*Connector
		labels     []*diagram.RawNode
		shapes     []*diagram.RawNode
	)
	byID := make(map[string]*Connector)

	for _, n := range raw.Nodes {
		switch {
		case n.IsEdgeLabel():
			labels = append(labels, n)
		case n.IsConnector():
			if n.ID == "" {
				return nil, NewValidationError("", "id", "connector has empty ID", ErrEmptyID)
			}
			c := &Connector{
				ID:     n.ID,
				Source: n.Source,
				Target: n.Target,
				Value:  strings.TrimSpace(n.Value),
			}
			connectors = append(connectors, c)
			byID[c.ID] = c
		case isScaffolding(n):
			// корневые ячейки слоёв draw.io
		default:
			shapes = append(shapes, n)
		}
	}

	for _, l := range labels {
		c, ok := byID[l.Parent]
		if !ok {
			return nil, NewValidationError(l.ID, "parent",
				fmt.Sprintf("edge label parent %q is not a connector", l.Parent), ErrDanglingLabel)
		}
		c.Value = strings.TrimSpace(l.Value)
	}

	steps := make([]*Step, 0, len(shapes))
	for _, n := range shapes {
		s, err := stepFromNode(n)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	return New(steps, connectors, opts...)
}

// isScaffolding сообщает, является ли узел служебной ячейкой без содержимого.
func isScaffolding(n *diagram.RawNode) bool {
	return !n.Vertex && !n.Edge && n.Tag == "mxCell" && n.Value == "" && len(n.Attrs) == 0
}

func stepFromNode(n *diagram.RawNode) (*Step, error) {
	if n.ID == "" {
		return nil, NewValidationError("", "id", "step has empty ID", ErrEmptyID)
	}

	s := &Step{
		ID:   n.ID,
		Name: strings.TrimSpace(n.Value),
		Kind: Classify(n),
	}

	for _, a := range n.Attrs {
		s.Attributes = append(s.Attributes, Attribute{Name: a.Name, Value: a.Value})
	}

	if t, ok := n.Attr(attrType); ok && strings.EqualFold(strings.TrimSpace(t), "disabled") {
		s.Disabled = true
	}

	ref := ActionRef{}
	ref.Module, _ = n.Attr(attrModule)
	if ref.Class, _ = n.Attr(attrClass); ref.Class == "" {
		ref.Class, _ = n.Attr(attrClassShort)
	}
	ref.Function, _ = n.Attr(attrFunction)
	if ref.Module != "" || ref.Class != "" || ref.Function != "" {
		s.Action = &ref
	}

	s.OutputVariable, _ = n.Attr(attrOutputVariable)
	s.OutputVariable = strings.TrimSpace(s.OutputVariable)

	if lc, ok := n.Attr(attrLoopCounter); ok && strings.TrimSpace(lc) != "" {
		start, err := strconv.Atoi(strings.TrimSpace(lc))
		if err != nil {
			return nil, NewValidationError(n.ID, attrLoopCounter,
				fmt.Sprintf("loop counter %q is not an integer", lc), ErrInvalidLoopCounter)
		}
		s.LoopCounterStart = &start
	}

	return s, nil
}

// Classify определяет тип узла по type, style и описанию.
func Classify(n *diagram.RawNode) Kind {
	kind, _ := n.Attr(attrType)
	kind = strings.ToLower(kind)
	style := strings.ToLower(n.Style)

	switch {
	case strings.Contains(kind, "gateway"):
		if strings.Contains(kind, "parallel") {
			return KindParallelGateway
		}
		return KindExclusiveGateway
	case strings.Contains(style, "gateway"):
		if strings.Contains(style, "gwtype=parallel") {
			return KindParallelGateway
		}
		return KindExclusiveGateway
	case strings.Contains(kind, "end event"):
		return KindEndEvent
	}

	for _, name := range []string{attrDescription, attrDescriptionAlt} {
		if v, ok := n.Attr(name); ok && isEndEvent(v) {
			return KindEndEvent
		}
	}
	if isEndEvent(n.Value) {
		return KindEndEvent
	}
	return KindShape
}

func isEndEvent(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "end event." || s == "end event"
}
