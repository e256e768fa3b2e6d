package graph

import (
	"fmt"
	"log/slog"
)

// Graph — построенный граф шагов и рёбер.
type Graph struct {
	// Steps — шаги в порядке документа.
	Steps []*Step

	// Connectors — рёбра в порядке документа.
	Connectors []*Connector

	// Warnings — замечания о качестве диаграммы, не мешающие выполнению.
	Warnings []string

	steps    map[string]*Step
	outgoing map[string][]*Connector
	incoming map[string][]*Connector
	start    *Step
}

// Option настраивает построение графа.
type Option func(*options)

type options struct {
	firstStart bool
	logger     *slog.Logger
}

// WithFirstStart разрешает несколько кандидатов на старт:
// выбирается первый по порядку документа, остальные попадают в Warnings.
func WithFirstStart() Option {
	return func(o *options) { o.firstStart = true }
}

// WithLogger задаёт логгер для предупреждений.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New собирает граф из готовых шагов и рёбер, проверяет ссылки
// и определяет стартовый шаг. Используется и при восстановлении из checkpoint.
func New(steps []*Step, connectors []*Connector, opts ...Option) (*Graph, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if len(steps) == 0 {
		return nil, NewValidationError("", "steps", "flow graph has no steps", ErrNoSteps)
	}

	g := &Graph{
		Steps:      steps,
		Connectors: connectors,
		steps:      make(map[string]*Step, len(steps)),
		outgoing:   make(map[string][]*Connector),
		incoming:   make(map[string][]*Connector),
	}

	seen := make(map[string]bool, len(steps)+len(connectors))
	for _, s := range steps {
		if s.ID == "" {
			return nil, NewValidationError("", "id", "step has empty ID", ErrEmptyID)
		}
		if seen[s.ID] {
			return nil, NewValidationError(s.ID, "id", "duplicate node ID", ErrDuplicateID)
		}
		seen[s.ID] = true
		s.IsStart = false
		g.steps[s.ID] = s
	}

	for _, c := range connectors {
		if c.ID == "" {
			return nil, NewValidationError("", "id", "connector has empty ID", ErrEmptyID)
		}
		if seen[c.ID] {
			return nil, NewValidationError(c.ID, "id", "duplicate node ID", ErrDuplicateID)
		}
		seen[c.ID] = true

		if _, ok := g.steps[c.Source]; !ok {
			return nil, NewValidationError(c.ID, "source",
				fmt.Sprintf("connector source %q is not a step", c.Source), ErrDanglingConnector)
		}
		if _, ok := g.steps[c.Target]; !ok {
			return nil, NewValidationError(c.ID, "target",
				fmt.Sprintf("connector target %q is not a step", c.Target), ErrDanglingConnector)
		}

		g.outgoing[c.Source] = append(g.outgoing[c.Source], c)
		g.incoming[c.Target] = append(g.incoming[c.Target], c)
	}

	if err := g.findStart(o); err != nil {
		return nil, err
	}
	return g, nil
}

// findStart определяет стартовый шаг: без входящих и хотя бы с одним исходящим ребром.
func (g *Graph) findStart(o options) error {
	var candidates []*Step
	for _, s := range g.Steps {
		if len(g.incoming[s.ID]) == 0 && len(g.outgoing[s.ID]) > 0 {
			candidates = append(candidates, s)
		}
	}

	switch {
	case len(candidates) == 0:
		return NewValidationError("", "start", "no step without incoming connectors", ErrNoStartStep)
	case len(candidates) > 1 && !o.firstStart:
		return NewValidationError(candidates[1].ID, "start",
			fmt.Sprintf("%d steps qualify as start", len(candidates)), ErrMultipleStarts)
	case len(candidates) > 1:
		for _, c := range candidates[1:] {
			msg := fmt.Sprintf("step %s also qualifies as start, using %s", c.ID, candidates[0].ID)
			g.Warnings = append(g.Warnings, msg)
			o.logger.Warn("multiple start candidates", "chosen", candidates[0].ID, "ignored", c.ID)
		}
	}

	g.start = candidates[0]
	g.start.IsStart = true
	return nil
}

// Start возвращает стартовый шаг.
func (g *Graph) Start() *Step {
	return g.start
}

// Step возвращает шаг по ID или nil.
func (g *Graph) Step(id string) *Step {
	return g.steps[id]
}

// Outgoing возвращает исходящие рёбра шага в порядке документа.
func (g *Graph) Outgoing(id string) []*Connector {
	return g.outgoing[id]
}

// Incoming возвращает входящие рёбра шага.
func (g *Graph) Incoming(id string) []*Connector {
	return g.incoming[id]
}

// Size возвращает количество шагов.
func (g *Graph) Size() int {
	return len(g.Steps)
}
