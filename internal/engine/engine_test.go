package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/approval"
	"github.com/shaiso/bpmnflow/internal/checkpoint"
	"github.com/shaiso/bpmnflow/internal/graph"
	"github.com/shaiso/bpmnflow/internal/mq"
	"github.com/shaiso/bpmnflow/internal/runlog"
	"github.com/shaiso/bpmnflow/internal/variables"
)

var testNow = time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

// --- построение графов ---

type stepOpt func(*graph.Step)

func newStep(id string, kind graph.Kind, opts ...stepOpt) *graph.Step {
	s := &graph.Step{ID: id, Name: id, Kind: kind}
	for _, o := range opts {
		o(s)
	}
	return s
}

func shape(id string, opts ...stepOpt) *graph.Step {
	return newStep(id, graph.KindShape, opts...)
}

func call(module, function string, attrs ...string) stepOpt {
	return func(s *graph.Step) {
		s.Action = &graph.ActionRef{Module: module, Function: function}
		for i := 0; i+1 < len(attrs); i += 2 {
			s.Attributes = append(s.Attributes, graph.Attribute{Name: attrs[i], Value: attrs[i+1]})
		}
	}
}

func class(module, className, function string, attrs ...string) stepOpt {
	return func(s *graph.Step) {
		call(module, function, attrs...)(s)
		s.Action.Class = className
	}
}

func output(name string) stepOpt {
	return func(s *graph.Step) { s.OutputVariable = name }
}

func loop(start int) stepOpt {
	return func(s *graph.Step) { s.LoopCounterStart = &start }
}

func disabled() stepOpt {
	return func(s *graph.Step) { s.Disabled = true }
}

func conn(id, source, target, label string) *graph.Connector {
	return &graph.Connector{ID: id, Source: source, Target: target, Value: label}
}

func newTestState(t *testing.T, steps []*graph.Step, connectors []*graph.Connector) *State {
	t.Helper()
	g, err := graph.New(steps, connectors)
	require.NoError(t, err)
	return NewState(g, "/flows/test.drawio", "test")
}

// --- действия для тестов ---

type recorder struct {
	mu    sync.Mutex
	items []any
}

func (r *recorder) add(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder) Items() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.items...)
}

func testRegistry(rec *recorder) *action.FuncRegistry {
	reg := action.NewFuncRegistry()
	action.RegisterStandard(reg)

	reg.Register("test", "collect", action.Function{
		Params: []action.Param{{Name: "item"}},
		Fn: func(_ context.Context, args action.Args) (any, error) {
			v, _ := args.Value("item")
			rec.add(v)
			return v, nil
		},
	})
	reg.Register("test", "items", action.Function{
		Params: []action.Param{{Name: "count", Default: 0, HasDefault: true}},
		Fn: func(_ context.Context, args action.Args) (any, error) {
			n, err := args.Int("count")
			if err != nil {
				return nil, err
			}
			items := make([]any, n)
			for i := range items {
				items[i] = string(rune('a' + i))
			}
			return items, nil
		},
	})
	reg.Register("test", "echo", action.Function{
		Params: []action.Param{{Name: "value"}},
		Fn: func(_ context.Context, args action.Args) (any, error) {
			v, _ := args.Value("value")
			return v, nil
		},
	})
	return reg
}

type testEnv struct {
	engine *Engine
	sink   *runlog.MemorySink
	store  *checkpoint.FileStore
	rec    *recorder
	out    *bytes.Buffer
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		sink:  runlog.NewMemorySink(runlog.WithClock(func() time.Time { return testNow })),
		store: checkpoint.NewFileStore(t.TempDir()),
		rec:   &recorder{},
		out:   &bytes.Buffer{},
	}
	cfg := Config{
		Registry: testRegistry(env.rec),
		Sink:     env.sink,
		Store:    env.store,
		Out:      env.out,
		Clock:    func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	env.engine = New(cfg)
	return env
}

func (e *testEnv) stepRecords(name string) []runlog.Record {
	var out []runlog.Record
	for _, r := range e.sink.Records() {
		if r.StepName == name && r.Status == runlog.StatusRunning {
			out = append(out, r)
		}
	}
	return out
}

func (e *testEnv) hasResult(text string) bool {
	for _, r := range e.sink.Records() {
		if strings.Contains(r.Result, text) {
			return true
		}
	}
	return false
}

func approveWith(a approval.Approver) func(*Config) {
	return func(c *Config) { c.Approver = a }
}

// --- тесты ---

func TestRun_AddEndToEnd(t *testing.T) {
	env := newTestEnv(t, approveWith(approval.Always))
	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("add", call("math", "add", "a", "2", "b", "3"), output("%sum%")),
			newStep("end", graph.KindEndEvent),
		},
		[]*graph.Connector{
			conn("c1", "start", "add", ""),
			conn("c2", "add", "end", ""),
		},
	)

	res, err := env.engine.Run(context.Background(), st, "inst-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 5, res.Output)
	assert.Equal(t, 5, st.Variables["%sum%"])

	records := env.stepRecords("add")
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Result, "5")

	run, ok := env.sink.Run(res.RunID)
	require.True(t, ok)
	assert.Equal(t, runlog.ResultEnded, run.Result)

	exists, err := env.store.Exists(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.False(t, exists, "checkpoint must be deleted on completion")
}

func TestRun_Gateway(t *testing.T) {
	build := func(t *testing.T, trueLabel, falseLabel string) *State {
		return newTestState(t,
			[]*graph.Step{
				shape("start"),
				shape("check", call("", "evaluate", "expression", "input > 3")),
				newStep("gw", graph.KindExclusiveGateway),
				shape("a", call("", "set_variable_value", "variable_name", "%branch%", "value", "A")),
				shape("b", call("", "set_variable_value", "variable_name", "%branch%", "value", "B")),
				newStep("end_a", graph.KindEndEvent),
				newStep("end_b", graph.KindEndEvent),
			},
			[]*graph.Connector{
				conn("c1", "start", "check", ""),
				conn("c2", "check", "gw", ""),
				conn("c3", "gw", "a", trueLabel),
				conn("c4", "gw", "b", falseLabel),
				conn("c5", "a", "end_a", ""),
				conn("c6", "b", "end_b", ""),
			},
		)
	}

	tests := []struct {
		name       string
		input      any
		trueLabel  string
		falseLabel string
		want       string
	}{
		{"true branch", 5, "True", "False", "A"},
		{"false branch", 1, "True", "False", "B"},
		{"yes label", 5, "Yes", "No", "A"},
		{"no label", 2, "yes", "no", "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			st := build(t, tt.trueLabel, tt.falseLabel)
			st.Input = tt.input

			res, err := env.engine.Run(context.Background(), st, "")
			require.NoError(t, err)
			require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)
			assert.Equal(t, tt.want, st.Variables["%branch%"])
		})
	}

	t.Run("unlabelled branches", func(t *testing.T) {
		env := newTestEnv(t)
		st := build(t, "", "")
		st.Input = 5

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusFailed, res.Status)
		assert.True(t, errors.Is(res.Err, ErrGatewayLabel))

		var gwErr *GatewayLabelError
		require.True(t, errors.As(res.Err, &gwErr))
		assert.Equal(t, "gw", gwErr.StepID)
		assert.True(t, gwErr.Want)

		run, ok := env.sink.Run(res.RunID)
		require.True(t, ok)
		assert.Equal(t, runlog.ResultEndedWithErrors, run.Result)
	})
}

func loopFlow(t *testing.T, count int) *State {
	return newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("list", call("test", "items", "count", itoa(count)), output("%files%"), loop(0)),
			shape("body", call("test", "collect", "item", "%files%")),
			shape("check", call("", "loop_items_check", "loop_variable", "%files%")),
			newStep("gw", graph.KindExclusiveGateway),
			shape("after", call("", "set_variable_value", "variable_name", "%done%", "value", "True")),
			newStep("end", graph.KindEndEvent),
		},
		[]*graph.Connector{
			conn("c1", "start", "list", ""),
			conn("c2", "list", "body", ""),
			conn("c3", "body", "check", ""),
			conn("c4", "check", "gw", ""),
			conn("c5", "gw", "list", "true"),
			conn("c6", "gw", "after", "false"),
			conn("c7", "after", "end", ""),
		},
	)
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func TestRun_Loop(t *testing.T) {
	t.Run("three items", func(t *testing.T) {
		env := newTestEnv(t)
		st := loopFlow(t, 3)

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)

		assert.Equal(t, []any{"a", "b", "c"}, env.rec.Items())
		assert.Equal(t, []any{"a", "b", "c"}, st.Variables["%files%"])
		assert.Equal(t, true, st.Variables["%done%"])
		assert.Empty(t, st.LoopCursors, "exhausted cursor is removed")
	})

	t.Run("no items", func(t *testing.T) {
		env := newTestEnv(t)
		st := loopFlow(t, 0)

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status)

		assert.Empty(t, env.rec.Items(), "loop body must not run")
		assert.Nil(t, st.Variables["%done%"])
		assert.True(t, env.hasResult("There are no more items to loop."))
	})

	t.Run("reentry without check", func(t *testing.T) {
		env := newTestEnv(t)
		st := newTestState(t,
			[]*graph.Step{
				shape("start"),
				shape("list", call("test", "items", "count", "2"), output("%files%"), loop(0)),
				shape("body", call("test", "collect", "item", "%files%")),
			},
			[]*graph.Connector{
				conn("c1", "start", "list", ""),
				conn("c2", "list", "body", ""),
				conn("c3", "body", "list", ""),
			},
		)

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, []any{"a", "b"}, env.rec.Items())
	})

	t.Run("owner without action", func(t *testing.T) {
		env := newTestEnv(t)
		st := newTestState(t,
			[]*graph.Step{
				shape("start"),
				shape("list", call("test", "items", "count", "3"), output("%files%")),
				shape("iter", output("%file%"), loop(0)),
				shape("body", call("test", "collect", "item", "%file%")),
				shape("check", call("", "loop_items_check", "loop_variable", "%file%")),
				newStep("gw", graph.KindExclusiveGateway),
				newStep("end", graph.KindEndEvent),
			},
			[]*graph.Connector{
				conn("c1", "start", "list", ""),
				conn("c2", "list", "iter", ""),
				conn("c3", "iter", "body", ""),
				conn("c4", "body", "check", ""),
				conn("c5", "check", "gw", ""),
				conn("c6", "gw", "iter", "true"),
				conn("c7", "gw", "end", "false"),
			},
		)

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)

		assert.Equal(t, []any{"a", "b", "c"}, env.rec.Items())
		assert.Equal(t, []any{"a", "b", "c"}, st.Variables["%file%"])
		assert.Empty(t, st.LoopCursors)
	})

	t.Run("start step owns loop", func(t *testing.T) {
		env := newTestEnv(t)
		st := newTestState(t,
			[]*graph.Step{
				shape("start", call("test", "items", "count", "2"), output("%files%"), loop(0)),
				shape("body", call("test", "collect", "item", "%files%")),
				shape("check", call("", "loop_items_check", "loop_variable", "%files%"), output("%more%")),
			},
			[]*graph.Connector{
				conn("c1", "start", "body", ""),
				conn("c2", "body", "check", ""),
			},
		)

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)

		assert.Equal(t, []any{"a"}, env.rec.Items())
		assert.Equal(t, true, st.Variables["%more%"])
		require.Contains(t, st.LoopCursors, "start")
		assert.Equal(t, 1, st.LoopCursors["start"].Counter)
	})

	t.Run("check without loop", func(t *testing.T) {
		env := newTestEnv(t)
		st := newTestState(t,
			[]*graph.Step{
				shape("start"),
				shape("check", call("", "loop_items_check", "loop_variable", "%files%")),
			},
			[]*graph.Connector{conn("c1", "start", "check", "")},
		)

		res, err := env.engine.Run(context.Background(), st, "")
		require.NoError(t, err)
		require.Equal(t, StatusFailed, res.Status)
		assert.True(t, errors.Is(res.Err, ErrNoLoop))
		assert.True(t, errors.Is(res.Err, action.ErrActionRuntime))
	})
}

func TestSaveLoadState(t *testing.T) {
	codecs := []checkpoint.Codec{checkpoint.JSONCodec{}, checkpoint.MsgpackCodec{}}

	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			ctx := context.Background()
			store := checkpoint.NewFileStore(t.TempDir())

			st := loopFlow(t, 3)
			st.CurrentStep = "body"
			st.PreviousStep = "list"
			st.CurrentDone = true
			st.LastOutput = "c"
			st.StepCounter = 7
			st.RunID = "run-1"
			st.Variables = map[string]any{
				"%sum%":   5,
				"%files%": []any{"a", "b", "c"},
				"%cfg%":   map[string]any{"name": "bob", "age": 42},
				"%ok%":    true,
				"%inst%":  &action.Instance{Module: "text", Class: "Builder"},
			}
			cursor := variables.NewLoopCursor("list", "%files%", 0)
			cursor.Materialize([]any{"a", "b", "c"})
			cursor.Counter = 2
			st.LoopCursors["list"] = cursor

			require.NoError(t, SaveState(ctx, store, codec, "inst", st))

			got, err := LoadState(ctx, store, "inst")
			require.NoError(t, err)

			assert.Equal(t, Version, got.Version)
			assert.Equal(t, "body", got.CurrentStep)
			assert.True(t, got.CurrentDone)
			assert.Equal(t, "c", got.LastOutput)
			assert.Equal(t, 7, got.StepCounter)
			assert.Equal(t, 5, got.Variables["%sum%"])
			assert.Equal(t, []any{"a", "b", "c"}, got.Variables["%files%"])
			assert.Equal(t, map[string]any{"name": "bob", "age": 42}, got.Variables["%cfg%"])
			assert.Equal(t, true, got.Variables["%ok%"])
			assert.NotContains(t, got.Variables, "%inst%")

			require.Contains(t, got.LoopCursors, "list")
			assert.Equal(t, 2, got.LoopCursors["list"].Counter)
			assert.Equal(t, 3, got.LoopCursors["list"].TotalCount)
			assert.Equal(t, []any{"a", "b", "c"}, got.LoopCursors["list"].Items)

			require.Len(t, got.Steps, len(st.Steps))
			require.NotNil(t, got.Steps[1].LoopCounterStart)
			assert.Equal(t, 0, *got.Steps[1].LoopCounterStart)

			g, err := got.Graph()
			require.NoError(t, err)
			assert.Equal(t, "start", g.Start().ID)
		})
	}
}

func TestLoadState_Errors(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewFileStore(t.TempDir())

	_, err := LoadState(ctx, store, "missing")
	assert.True(t, errors.Is(err, checkpoint.ErrPersistence))
	assert.True(t, errors.Is(err, checkpoint.ErrNotFound))

	require.NoError(t, store.Save(ctx, "future", []byte(`{"version": 99}`)))
	_, err = LoadState(ctx, store, "future")
	assert.True(t, errors.Is(err, checkpoint.ErrPersistence))
	assert.True(t, errors.Is(err, checkpoint.ErrUnsupportedVersion))

	require.NoError(t, store.Save(ctx, "broken", []byte(`{not json`)))
	_, err = LoadState(ctx, store, "broken")
	assert.True(t, errors.Is(err, checkpoint.ErrPersistence))
}

// declineAt отклоняет шаг с заданным ID и одобряет остальные.
func declineAt(id string) approval.Approver {
	return approval.ApproverFunc(func(_ context.Context, _ string, step *graph.Step) (bool, error) {
		return step.ID != id, nil
	})
}

func TestRun_DeclineAndResume(t *testing.T) {
	ctx := context.Background()
	steps := func() []*graph.Step {
		return []*graph.Step{
			shape("start"),
			shape("first", call("test", "collect", "item", "one")),
			shape("second", call("test", "collect", "item", "two"), output("%last%")),
			newStep("end", graph.KindEndEvent),
		}
	}
	connectors := []*graph.Connector{
		conn("c1", "start", "first", ""),
		conn("c2", "first", "second", ""),
		conn("c3", "second", "end", ""),
	}

	env := newTestEnv(t, approveWith(declineAt("second")), func(c *Config) {
		c.Renderer = approval.TextRenderer{}
	})
	st := newTestState(t, steps(), connectors)

	res, err := env.engine.Run(ctx, st, "inst")
	require.NoError(t, err)
	require.Equal(t, StatusDeclined, res.Status)
	assert.Equal(t, "second", res.StepID)
	assert.Equal(t, []any{"one"}, env.rec.Items())
	assert.Contains(t, env.out.String(), "second")

	saved, err := LoadState(ctx, env.store, "inst")
	require.NoError(t, err)
	assert.Equal(t, "second", saved.CurrentStep)
	assert.False(t, saved.CurrentDone)
	assert.Equal(t, res.RunID, saved.RunID)

	resumed := New(Config{
		Registry: testRegistry(env.rec),
		Sink:     env.sink,
		Store:    env.store,
		Approver: approval.Always,
		Clock:    func() time.Time { return testNow },
	})
	res2, err := resumed.Resume(ctx, "inst")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res2.Status)
	assert.Equal(t, res.RunID, res2.RunID)
	assert.Equal(t, []any{"one", "two"}, env.rec.Items())

	exists, err := env.store.Exists(ctx, "inst")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestResume_CurrentDoneComputesSuccessor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, approveWith(approval.Always))

	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("first", call("test", "collect", "item", "one")),
			shape("second", call("test", "collect", "item", "two")),
			newStep("end", graph.KindEndEvent),
		},
		[]*graph.Connector{
			conn("c1", "start", "first", ""),
			conn("c2", "first", "second", ""),
			conn("c3", "second", "end", ""),
		},
	)
	st.RunID = "run-1"
	st.CurrentStep = "first"
	st.CurrentDone = true
	st.LastOutput = "one"
	require.NoError(t, SaveState(ctx, env.store, nil, "inst", st))

	res, err := env.engine.Resume(ctx, "inst")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []any{"two"}, env.rec.Items(), "completed step must not run again")
}

func TestRun_ActionFailureKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, approveWith(approval.Always))
	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("div", call("math", "divide", "a", "1", "b", "0")),
			shape("never", call("test", "collect", "item", "x")),
		},
		[]*graph.Connector{
			conn("c1", "start", "div", ""),
			conn("c2", "div", "never", ""),
		},
	)

	res, err := env.engine.Run(ctx, st, "inst")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, action.ErrActionRuntime))
	assert.Contains(t, res.Err.Error(), "division by zero")
	assert.Empty(t, env.rec.Items())

	saved, err := LoadState(ctx, env.store, "inst")
	require.NoError(t, err)
	assert.True(t, saved.ErrorFlag)
	assert.Equal(t, "div", saved.CurrentStep)
	assert.Contains(t, saved.ErrorText, "division by zero")

	run, ok := env.sink.Run(res.RunID)
	require.True(t, ok)
	assert.Equal(t, runlog.ResultEndedWithErrors, run.Result)
}

func TestRun_UnknownAction(t *testing.T) {
	env := newTestEnv(t)
	st := newTestState(t,
		[]*graph.Step{shape("start"), shape("x", call("nope", "missing"))},
		[]*graph.Connector{conn("c1", "start", "x", "")},
	)

	res, err := env.engine.Run(context.Background(), st, "")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, action.ErrActionResolution))
	assert.True(t, errors.Is(res.Err, action.ErrModuleNotFound))
}

func TestRun_DisabledStep(t *testing.T) {
	env := newTestEnv(t)
	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("skip", call("test", "collect", "item", "x"), disabled()),
			shape("run", call("test", "collect", "item", "y")),
		},
		[]*graph.Connector{
			conn("c1", "start", "skip", ""),
			conn("c2", "skip", "run", ""),
		},
	)

	res, err := env.engine.Run(context.Background(), st, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []any{"y"}, env.rec.Items())
	assert.True(t, env.hasResult("Ignoring disabled step 'skip'."))
}

func TestRun_Builtins(t *testing.T) {
	env := newTestEnv(t)
	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("set", call("engine", "set_variable_value", "variable_name", "%greeting%", "value", "hello")),
			shape("render", call("", "render_template", "template", "{{ .greeting }} world"), output("%msg%")),
			shape("calc", call("workflowengine", "evaluate", "expression", "len(msg) * 2"), output("%size%")),
			shape("log", call("", "print_log", "text", "message is %msg%")),
			shape("exit", call("", "exit_flow")),
			shape("never", call("test", "collect", "item", "x")),
		},
		[]*graph.Connector{
			conn("c1", "start", "set", ""),
			conn("c2", "set", "render", ""),
			conn("c3", "render", "calc", ""),
			conn("c4", "calc", "log", ""),
			conn("c5", "log", "exit", ""),
			conn("c6", "exit", "never", ""),
		},
	)

	res, err := env.engine.Run(context.Background(), st, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)

	assert.Equal(t, "hello", st.Variables["%greeting%"])
	assert.Equal(t, "hello world", st.Variables["%msg%"])
	assert.Equal(t, 22, st.Variables["%size%"])
	assert.True(t, env.hasResult("Message is hello world."))
	assert.Empty(t, env.rec.Items(), "exit_flow stops the flow")
}

func TestRun_ClassInstanceAndPositionalInput(t *testing.T) {
	env := newTestEnv(t)
	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("new", class("text", "Builder", ""), output("%b%")),
			shape("add", class("text", "%b%", "add", "text", "hi")),
			shape("build", class("text", "%b%", "build"), output("%built%")),
			shape("echo", call("test", "echo", "input", "%built%"), output("%echoed%")),
		},
		[]*graph.Connector{
			conn("c1", "start", "new", ""),
			conn("c2", "new", "add", ""),
			conn("c3", "add", "build", ""),
			conn("c4", "build", "echo", ""),
		},
	)

	res, err := env.engine.Run(context.Background(), st, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)
	assert.Equal(t, "hi", st.Variables["%built%"])
	assert.Equal(t, "hi", st.Variables["%echoed%"])
	assert.IsType(t, &action.Instance{}, st.Variables["%b%"])
}

func TestRun_PositionalInputBindsFirstParam(t *testing.T) {
	env := newTestEnv(t)
	st := newTestState(t,
		[]*graph.Step{
			shape("start"),
			shape("join", call("text", "concat", "input", "hi"), output("%joined%")),
		},
		[]*graph.Connector{conn("c1", "start", "join", "")},
	)

	res, err := env.engine.Run(context.Background(), st, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status, "err: %v", res.Err)
	assert.Equal(t, "hi", st.Variables["%joined%"])
}

type eventLog struct {
	mu     sync.Mutex
	events []mq.Event
}

func (l *eventLog) PublishEvent(_ context.Context, ev mq.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func TestRun_PublishesEvents(t *testing.T) {
	events := &eventLog{}
	env := newTestEnv(t, func(c *Config) { c.Events = events })
	st := newTestState(t,
		[]*graph.Step{shape("start"), shape("add", call("math", "add", "a", "1", "b", "1"))},
		[]*graph.Connector{conn("c1", "start", "add", "")},
	)

	res, err := env.engine.Run(context.Background(), st, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	var types []mq.EventType
	for _, ev := range events.events {
		types = append(types, ev.Type)
		assert.Equal(t, res.RunID, ev.RunID)
		assert.Equal(t, "test", ev.Flow)
	}
	assert.Equal(t, []mq.EventType{
		mq.EventFlowStarted,
		mq.EventStepCompleted,
		mq.EventStepCompleted,
		mq.EventFlowEnded,
	}, types)
}

func TestRender(t *testing.T) {
	vars := map[string]any{
		"%name%":  "bob",
		"%items%": []any{"a", "b"},
		"%ok%":    true,
	}

	tests := []struct {
		name    string
		tmpl    string
		want    string
		wantErr error
	}{
		{"no template", "plain", "plain", nil},
		{"variable", "hi {{ .name }}", "hi bob", nil},
		{"condition", "{{ if .ok }}yes{{ else }}no{{ end }}", "yes", nil},
		{"json func", "{{ json .items }}", `["a","b"]`, nil},
		{"upper", "{{ upper .name }}", "BOB", nil},
		{"parse error", "{{ .name", "", ErrTemplateParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, vars)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
