package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/expr-lang/expr"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/runlog"
	"github.com/shaiso/bpmnflow/internal/variables"
)

// builtinModules — имена модулей встроенных действий движка.
var builtinModules = []string{"", "engine", "workflowengine"}

func isBuiltinModule(module string) bool {
	for _, m := range builtinModules {
		if strings.EqualFold(strings.TrimSpace(module), m) {
			return true
		}
	}
	return false
}

// builtins регистрирует действия, которым нужен доступ к состоянию запуска.
func (r *runner) builtins() *action.FuncRegistry {
	reg := action.NewFuncRegistry()
	for _, m := range builtinModules {
		reg.Register(m, "loop_items_check", action.Function{
			Params: []action.Param{{Name: "loop_variable"}},
			Fn:     r.loopItemsCheck,
		})
		reg.Register(m, "reset_loopcounter", action.Function{
			Params: []action.Param{{Name: "reset_for_loop_variable"}},
			Fn:     r.resetLoopCounter,
		})
		reg.Register(m, "set_variable_value", action.Function{
			Params: []action.Param{{Name: "variable_name"}, {Name: "value", HasDefault: true}},
			Fn:     r.setVariableValue,
		})
		reg.Register(m, "evaluate", action.Function{
			Params: []action.Param{{Name: "expression"}},
			Fn:     r.evaluate,
		})
		reg.Register(m, "render_template", action.Function{
			Params: []action.Param{{Name: "template"}},
			Fn:     r.renderTemplate,
		})
		reg.Register(m, "print_log", action.Function{
			Params: []action.Param{{Name: "text"}, {Name: "status", Default: runlog.StatusRunning, HasDefault: true}},
			Fn:     r.printLog,
		})
		reg.Register(m, "exit_flow", action.Function{
			Fn: r.exitFlow,
		})
	}
	return reg
}

// loopItemsCheck сдвигает счётчик цикла и сообщает, остались ли элементы.
// Исчерпанный курсор удаляется: следующий вход в шаг-владелец начнёт цикл заново.
// Переменная без активного цикла — ошибка шага (ErrNoLoop).
func (r *runner) loopItemsCheck(_ context.Context, args action.Args) (any, error) {
	name := args.String("loop_variable")
	id, cursor := r.cursorFor(name)
	if cursor == nil {
		return false, fmt.Errorf("%w: %s", ErrNoLoop, name)
	}

	more := cursor.Advance()
	if !more {
		delete(r.st.LoopCursors, id)
		r.logger.Debug("loop finished", "step_id", id, "variable", name)
	}
	return more, nil
}

// resetLoopCounter удаляет исчерпанный курсор цикла.
func (r *runner) resetLoopCounter(ctx context.Context, args action.Args) (any, error) {
	name := args.String("reset_for_loop_variable")
	id, cursor := r.cursorFor(name)
	if cursor == nil {
		r.record(ctx, r.currentName(), runlog.StatusRunning,
			fmt.Sprintf("Loopcounter '%s' has not yet been initiated. No reset needed.", name))
		return nil, nil
	}
	if cursor.TotalCount <= cursor.Counter {
		delete(r.st.LoopCursors, id)
		r.record(ctx, r.currentName(), runlog.StatusRunning,
			fmt.Sprintf("Loopcounter reset for loopvariable '%s'.", name))
	}
	return nil, nil
}

func (r *runner) cursorFor(name string) (string, *variables.LoopCursor) {
	k := variables.Key(name)
	for id, c := range r.st.LoopCursors {
		if c.VariableName == k {
			return id, c
		}
	}
	return "", nil
}

func (r *runner) setVariableValue(_ context.Context, args action.Args) (any, error) {
	name := args.String("variable_name")
	if strings.Trim(name, "% ") == "" {
		return nil, fmt.Errorf("variable_name is empty")
	}
	v, _ := args.Value("value")
	r.vars.Set(name, v)
	return v, nil
}

// evaluate вычисляет выражение expr над переменными: %x% доступна как x.
func (r *runner) evaluate(_ context.Context, args action.Args) (any, error) {
	v, _ := args.Value("expression")
	text, ok := v.(string)
	if !ok {
		// Весь атрибут был одной переменной и уже вычислен.
		return v, nil
	}

	env := templateData(r.vars.Snapshot())
	program, err := expr.Compile(text, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run expression: %w", err)
	}
	return out, nil
}

func (r *runner) renderTemplate(_ context.Context, args action.Args) (any, error) {
	return Render(args.String("template"), r.vars.Snapshot())
}

// printLog пишет строку в журнал шагов: с заглавной буквы и с точкой в конце.
func (r *runner) printLog(ctx context.Context, args action.Args) (any, error) {
	text := sentence(strings.ReplaceAll(args.String("text"), "<br>", " "))
	status := args.String("status")
	if status == "" {
		status = runlog.StatusRunning
	}
	r.record(ctx, r.currentName(), status, text)
	return nil, nil
}

func (r *runner) exitFlow(context.Context, action.Args) (any, error) {
	r.exit = true
	return nil, nil
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(first)) + s[size:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func (r *runner) currentName() string {
	if s := r.g.Step(r.st.CurrentStep); s != nil {
		return s.DisplayName()
	}
	return ""
}
