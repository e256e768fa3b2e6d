package engine

import (
	"strings"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/graph"
)

// Подписи веток исключающего шлюза.
var (
	trueLabels  = []string{"true", "yes"}
	falseLabels = []string{"false", "no"}
)

// next возвращает следующий шаг после step или nil, если рёбер нет.
//
// Исключающий шлюз выбирает ветку по истинности output. Параллельный шлюз
// и обычные шаги идут по первому исходящему ребру.
func (r *runner) next(step *graph.Step, output any) (*graph.Step, error) {
	out := r.g.Outgoing(step.ID)
	if len(out) == 0 {
		return nil, nil
	}

	if step.Kind == graph.KindExclusiveGateway && !step.Disabled {
		c, err := branch(step, out, action.Truthy(output))
		if err != nil {
			return nil, err
		}
		return r.g.Step(c.Target), nil
	}
	return r.g.Step(out[0].Target), nil
}

// branch выбирает ребро шлюза с подписью, соответствующей want.
func branch(step *graph.Step, out []*graph.Connector, want bool) (*graph.Connector, error) {
	labels := falseLabels
	if want {
		labels = trueLabels
	}
	for _, c := range out {
		v := strings.ToLower(strings.TrimSpace(c.Value))
		for _, l := range labels {
			if v == l {
				return c, nil
			}
		}
	}

	seen := make([]string, len(out))
	for i, c := range out {
		seen[i] = c.Value
	}
	return nil, &GatewayLabelError{StepID: step.ID, Want: want, Labels: seen}
}
