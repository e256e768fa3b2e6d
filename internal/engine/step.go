package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/graph"
	"github.com/shaiso/bpmnflow/internal/mq"
	"github.com/shaiso/bpmnflow/internal/runlog"
	"github.com/shaiso/bpmnflow/internal/telemetry"
	"github.com/shaiso/bpmnflow/internal/variables"
)

// Статусы шагов для метрик.
const (
	stepOK      = "ok"
	stepError   = "error"
	stepSkipped = "skipped"
	stepLooped  = "looped"
)

// execute выполняет один шаг и возвращает его результат.
func (r *runner) execute(ctx context.Context, step *graph.Step, prev any) (any, error) {
	st := r.st
	st.StepCounter++
	started := r.e.clock()
	logger := telemetry.WithStepID(r.logger, step.ID).With("step", st.StepCounter)

	out, status, err := r.dispatch(ctx, step, prev)

	r.e.metrics.ObserveStep(string(step.Kind), status, r.e.clock().Sub(started))
	if err != nil {
		return nil, err
	}

	logger.Debug("step executed", "kind", step.Kind, "status", status)
	r.publish(ctx, mq.Event{
		Type:     mq.EventStepCompleted,
		StepID:   step.ID,
		StepName: step.Name,
		Step:     st.StepCounter,
		Result:   variables.Format(out),
	})
	return out, nil
}

func (r *runner) dispatch(ctx context.Context, step *graph.Step, prev any) (any, string, error) {
	name := step.DisplayName()

	switch {
	case step.Disabled:
		r.record(ctx, name, runlog.StatusRunning, fmt.Sprintf("Ignoring disabled step '%s'.", name))
		return prev, stepSkipped, nil

	case step.Kind.IsGateway():
		r.record(ctx, name, runlog.StatusRunning,
			fmt.Sprintf("%s executed with value %s.", name, variables.Format(prev)))
		return prev, stepOK, nil
	}

	if cursor := r.st.LoopCursors[step.ID]; cursor != nil && cursor.Materialized {
		return r.reenterLoop(ctx, step, cursor)
	}

	if step.Action == nil {
		// Шаг-владелец цикла без действия перебирает выход предыдущего шага.
		if cursor := r.st.LoopCursors[step.ID]; cursor != nil {
			out, status, err := r.startLoop(ctx, step, cursor, prev)
			if step.OutputVariable != "" {
				r.vars.Set(step.OutputVariable, cursor.Items)
			}
			return out, status, err
		}
		r.record(ctx, name, runlog.StatusRunning, fmt.Sprintf("%s executed.", name))
		return prev, stepOK, nil
	}

	out, err := r.invoke(ctx, step)
	if err != nil {
		return nil, stepError, err
	}

	if step.OutputVariable != "" {
		r.vars.Set(step.OutputVariable, out)
	}

	if cursor := r.st.LoopCursors[step.ID]; cursor != nil {
		return r.startLoop(ctx, step, cursor, out)
	}

	if !isQuiet(step) {
		r.record(ctx, name, runlog.StatusRunning, executedMessage(name, out))
	}
	return out, stepOK, nil
}

// startLoop фиксирует элементы цикла при первом выполнении шага-владельца.
// Переменная шага хранит весь список, результатом шага становится текущий элемент.
func (r *runner) startLoop(ctx context.Context, step *graph.Step, cursor *variables.LoopCursor, out any) (any, string, error) {
	cursor.Materialize(out)
	r.logger.Debug("loop materialized", "step_id", step.ID, "items", cursor.TotalCount)

	item, ok := cursor.Current()
	if !ok {
		r.record(ctx, step.DisplayName(), "Ending loop", "There are no more items to loop.")
		r.loopDone = true
		return out, stepLooped, nil
	}
	r.record(ctx, step.DisplayName(), "Looping", fmt.Sprintf("Loopitem '%s' returned.", variables.Format(item)))
	return item, stepLooped, nil
}

// reenterLoop возвращает следующий элемент цикла без вызова действия.
func (r *runner) reenterLoop(ctx context.Context, step *graph.Step, cursor *variables.LoopCursor) (any, string, error) {
	cursor.Reenter()

	item, ok := cursor.Current()
	if !ok || cursor.Exhausted() {
		r.record(ctx, step.DisplayName(), "Ending loop", "There are no more items to loop.")
		r.loopDone = true
		return nil, stepLooped, nil
	}
	r.record(ctx, step.DisplayName(), "Looping", fmt.Sprintf("Loopitem '%s' returned.", variables.Format(item)))
	return item, stepLooped, nil
}

// invoke разрешает действие шага, его аргументы и вызывает его.
func (r *runner) invoke(ctx context.Context, step *graph.Step) (any, error) {
	ref, err := r.actionRef(step)
	if err != nil {
		return nil, err
	}

	inv, err := r.registry.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	sig := inv.Signature()
	in := r.vars.Resolve(step, sig.Params, r.st.LoopCursors)
	call := callFor(in, sig)
	if in != nil && in.HasPositional && call.Shape == action.ShapeNone {
		r.logger.Debug("input ignored: action takes no parameters", "step_id", step.ID, "action", ref.String())
	}

	r.logger.Debug("invoking action", "step_id", step.ID, "action", ref.String(), "shape", call.Shape)

	out, err := inv.Invoke(ctx, call)
	if err != nil {
		var rt *action.RuntimeError
		if errors.As(err, &rt) {
			return nil, err
		}
		return nil, &action.RuntimeError{Ref: ref, Err: err}
	}
	return out, nil
}

// actionRef строит ссылку на действие. Класс вида %var% берёт экземпляр из переменной.
func (r *runner) actionRef(step *graph.Step) (action.Ref, error) {
	a := step.Action
	ref := action.Ref{Module: a.Module, Class: a.Class, Function: a.Function}

	if !isVariableRef(a.Class) {
		return ref, nil
	}
	v, ok := r.vars.Get(a.Class)
	if !ok || v == nil {
		return ref, &action.ResolutionError{
			Ref: ref,
			Err: fmt.Errorf("%w: variable %s is not set", action.ErrClassNotFound, a.Class),
		}
	}
	ref.Class = ""
	ref.Receiver = v
	return ref, nil
}

func isVariableRef(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > 2 && strings.HasPrefix(s, "%") && strings.HasSuffix(s, "%")
}

// callFor выбирает форму вызова:
// именованные аргументы, позиционный вход (в первый параметр) или вызов без аргументов.
func callFor(in *variables.Input, sig action.Signature) action.Call {
	switch {
	case in == nil:
		return action.Call{Shape: action.ShapeNone}
	case in.HasPositional && len(sig.Params) > 0:
		return action.Call{Shape: action.ShapePositional, Positional: in.Positional}
	case in.Named != nil:
		return action.Call{Shape: action.ShapeNamed, Named: in.Named}
	}
	return action.Call{Shape: action.ShapeNone}
}

// isQuiet сообщает, что шаг сам пишет в журнал и своя запись ему не нужна.
func isQuiet(step *graph.Step) bool {
	return isBuiltinModule(step.Action.Module) && strings.EqualFold(step.Action.Function, "print_log")
}

func executedMessage(name string, out any) string {
	if out == nil {
		return fmt.Sprintf("%s executed.", name)
	}
	return fmt.Sprintf("%s executed with value %s.", name, variables.Format(out))
}
