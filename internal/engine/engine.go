package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/approval"
	"github.com/shaiso/bpmnflow/internal/checkpoint"
	"github.com/shaiso/bpmnflow/internal/graph"
	"github.com/shaiso/bpmnflow/internal/mq"
	"github.com/shaiso/bpmnflow/internal/runlog"
	"github.com/shaiso/bpmnflow/internal/telemetry"
	"github.com/shaiso/bpmnflow/internal/variables"
)

// Status — итог вызова Run.
type Status string

const (
	// StatusCompleted — flow дошёл до конца.
	StatusCompleted Status = "completed"
	// StatusDeclined — оператор отклонил шаг, состояние сохранено.
	StatusDeclined Status = "declined"
	// StatusFailed — шаг завершился ошибкой, дальнейшие шаги не выполнялись.
	StatusFailed Status = "failed"
)

// Result — итог выполнения экземпляра.
type Result struct {
	Status Status
	RunID  string

	// StepID — шаг, на котором выполнение остановилось.
	StepID string

	// Output — результат последнего выполненного шага.
	Output any

	// Err — ошибка шага при StatusFailed.
	Err error
}

// EventPublisher публикует события жизненного цикла flow.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev mq.Event) error
}

// Engine выполняет экземпляры flow.
type Engine struct {
	registry action.Registry
	sink     runlog.Sink
	store    checkpoint.Store
	codec    checkpoint.Codec
	approver approval.Approver
	renderer approval.Renderer
	events   EventPublisher
	metrics  *telemetry.Metrics
	out      io.Writer
	clock    func() time.Time
	env      *variables.SystemEnv
	logger   *slog.Logger
}

// Config — конфигурация Engine.
type Config struct {
	// Registry разрешает действия шагов. Встроенные действия движка
	// опрашиваются раньше него.
	Registry action.Registry

	// Sink — журнал запусков (default: runlog.NopSink).
	Sink runlog.Sink

	// Store и Codec включают режим checkpoint для запусков с непустым ключом.
	Store checkpoint.Store
	Codec checkpoint.Codec // default: checkpoint.JSONCodec

	// Approver спрашивает разрешение перед шагами в режиме checkpoint.
	// nil отключает согласование.
	Approver approval.Approver
	Renderer approval.Renderer // снимок графа при отказе (default: NopRenderer)

	// Events — издатель событий (опционально).
	Events EventPublisher

	// Metrics — метрики Prometheus (опционально).
	Metrics *telemetry.Metrics

	// Out получает строки журнала шагов и снимок графа (default: io.Discard).
	Out io.Writer

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	// SystemEnv подменяет окружение системных переменных.
	SystemEnv *variables.SystemEnv

	Logger *slog.Logger
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	e := &Engine{
		registry: cfg.Registry,
		sink:     cfg.Sink,
		store:    cfg.Store,
		codec:    cfg.Codec,
		approver: cfg.Approver,
		renderer: cfg.Renderer,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		out:      cfg.Out,
		clock:    cfg.Clock,
		env:      cfg.SystemEnv,
		logger:   cfg.Logger,
	}
	if e.registry == nil {
		e.registry = action.NewFuncRegistry()
	}
	if e.sink == nil {
		e.sink = runlog.NopSink{}
	}
	if e.codec == nil {
		e.codec = checkpoint.JSONCodec{}
	}
	if e.renderer == nil {
		e.renderer = approval.NopRenderer{}
	}
	if e.out == nil {
		e.out = io.Discard
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run выполняет экземпляр от текущего шага состояния.
//
// Непустой key при заданном Store включает режим checkpoint: состояние
// сохраняется после каждого шага, перед шагами спрашивается Approver,
// при завершении checkpoint удаляется. Пустой key — однократный запуск.
//
// Ошибки шагов не возвращаются как error: они дают Result со StatusFailed.
// error означает сбой инфраструктуры (сохранение состояния, отмена ctx).
func (e *Engine) Run(ctx context.Context, st *State, key string) (*Result, error) {
	if st == nil {
		return nil, ErrNilState
	}
	g, err := st.Graph()
	if err != nil {
		return nil, err
	}
	if st.Variables == nil {
		st.Variables = make(map[string]any)
	}
	if st.LoopCursors == nil {
		st.LoopCursors = make(variables.LoopMap)
	}
	if key != "" && st.Instance == "" {
		st.Instance = key
	}

	r := newRunner(e, st, g, key)
	return r.run(ctx)
}

// Resume загружает checkpoint по ключу и продолжает выполнение.
func (e *Engine) Resume(ctx context.Context, key string) (*Result, error) {
	if e.store == nil {
		return nil, checkpoint.NewPersistenceError("load", key, errors.New("checkpoint store is not configured"))
	}
	st, err := LoadState(ctx, e.store, key)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return e.Run(ctx, st, key)
}

// runner — один проход выполнения экземпляра.
type runner struct {
	e        *Engine
	st       *State
	g        *graph.Graph
	key      string
	vars     *variables.Store
	registry action.Registry
	logger   *slog.Logger

	// exit — exit_flow запросил завершение.
	exit bool
	// loopDone — цикл исчерпан или пуст, flow завершается.
	loopDone bool
}

func newRunner(e *Engine, st *State, g *graph.Graph, key string) *runner {
	vars := variables.NewStore()
	vars.SetClock(e.clock)
	if e.env != nil {
		vars.SetSystemEnv(*e.env)
	}
	vars.Restore(st.Variables)

	r := &runner{
		e:    e,
		st:   st,
		g:    g,
		key:  key,
		vars: vars,
	}
	r.registry = action.Chain{r.builtins(), e.registry}
	r.logger = telemetry.WithFlowName(e.logger, st.FlowName)
	return r
}

// checkpointing сообщает, работает ли запуск в режиме checkpoint.
func (r *runner) checkpointing() bool {
	return r.key != "" && r.e.store != nil
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	st := r.st

	if st.RunID == "" {
		r.begin(ctx)
	} else {
		r.logger = telemetry.WithRunID(r.logger, st.RunID)
		r.logger.Info("resuming flow", "step_id", st.CurrentStep, "current_done", st.CurrentDone)
	}

	step := r.g.Step(st.CurrentStep)
	if step == nil {
		return nil, checkpoint.NewPersistenceError("load", r.key,
			fmt.Errorf("%w: %q", ErrStepNotFound, st.CurrentStep))
	}

	output := st.LastOutput
	if !st.CurrentDone {
		// Начальный шаг тоже может быть владельцем цикла.
		r.ensureCursor(step)
	} else {
		next, err := r.next(step, output)
		if err != nil {
			return r.fail(ctx, step, err)
		}
		if next == nil {
			return r.end(ctx, step)
		}
		step = r.enter(next)
	}

	for {
		if err := ctx.Err(); err != nil {
			if saveErr := r.checkpoint(ctx); saveErr != nil {
				r.logger.Error("save state on cancel failed", "error", saveErr)
			}
			return nil, err
		}

		if step.Kind == graph.KindEndEvent {
			return r.end(ctx, step)
		}

		if r.gated(step) {
			ok, err := r.e.approver.Approve(ctx, st.FlowName, step)
			if err != nil {
				if saveErr := r.checkpoint(ctx); saveErr != nil {
					return nil, errors.Join(err, saveErr)
				}
				return nil, fmt.Errorf("approve step %s: %w", step.ID, err)
			}
			r.e.metrics.ObserveApproval(ok)
			if !ok {
				return r.decline(ctx, step)
			}
		}

		out, err := r.execute(ctx, step, output)
		if err != nil {
			return r.fail(ctx, step, err)
		}
		output = out
		st.LastOutput = out
		st.CurrentDone = true
		st.Variables = r.vars.Snapshot()

		if err := r.checkpoint(ctx); err != nil {
			return nil, err
		}
		if r.exit || r.loopDone {
			return r.end(ctx, step)
		}

		next, err := r.next(step, output)
		if err != nil {
			return r.fail(ctx, step, err)
		}
		if next == nil {
			return r.end(ctx, step)
		}
		step = r.enter(next)
	}
}

// begin открывает запуск в журнале и привязывает вход flow.
func (r *runner) begin(ctx context.Context) {
	st := r.st

	runID, err := r.e.sink.RecordFlowStart(ctx, st.FlowName, st.DocumentRef)
	if err != nil || runID == "" {
		r.logger.Warn("record flow start failed", "error", err)
		runID = uuid.NewString()
	}
	st.RunID = runID
	r.logger = telemetry.WithRunID(r.logger, runID)

	r.record(ctx, "Start", runlog.StatusStarting,
		fmt.Sprintf("%s Starting flow '%s'...", r.e.clock().Format("02-01-2006"), st.FlowName))

	if st.Input != nil {
		r.vars.Set(InputVariable, st.Input)
		st.Variables = r.vars.Snapshot()
		r.record(ctx, "Start", runlog.StatusRunning,
			fmt.Sprintf("Got input parameter %s.", variables.Format(st.Input)))
	}

	r.logger.Info("flow started", "document", st.DocumentRef, "instance", st.Instance)
	r.e.metrics.ObserveFlow("started")
	r.publish(ctx, mq.Event{Type: mq.EventFlowStarted})
}

// InputVariable — переменная со входом flow.
const InputVariable = "%input%"

// enter делает next текущим шагом и создаёт курсор цикла при первом входе.
func (r *runner) enter(next *graph.Step) *graph.Step {
	st := r.st
	st.PreviousStep = st.CurrentStep
	st.CurrentStep = next.ID
	st.CurrentDone = false
	r.ensureCursor(next)
	return next
}

// ensureCursor создаёт курсор цикла для шага-владельца, если его ещё нет.
func (r *runner) ensureCursor(step *graph.Step) {
	if !step.IsLoop() || r.st.LoopCursors[step.ID] != nil {
		return
	}
	r.st.LoopCursors[step.ID] = variables.NewLoopCursor(step.ID, step.OutputVariable, *step.LoopCounterStart)
	r.logger.Debug("loop cursor created", "step_id", step.ID, "variable", step.OutputVariable)
}

// gated сообщает, нужно ли согласование перед шагом.
func (r *runner) gated(step *graph.Step) bool {
	if r.e.approver == nil || !r.checkpointing() {
		return false
	}
	return !step.IsStart && !step.Kind.IsGateway() && step.Kind != graph.KindEndEvent && !step.Disabled
}

func (r *runner) checkpoint(ctx context.Context) error {
	if !r.checkpointing() {
		return nil
	}
	r.st.UpdatedAt = r.e.clock().UTC()
	if err := SaveState(ctx, r.e.store, r.e.codec, r.key, r.st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// end завершает запуск.
func (r *runner) end(ctx context.Context, step *graph.Step) (*Result, error) {
	st := r.st
	result := runlog.ResultEnded
	if st.ErrorFlag {
		result = runlog.ResultEndedWithErrors
	}

	r.record(ctx, step.DisplayName(), runlog.StatusEnded, result)
	if err := r.e.sink.RecordFlowEnd(ctx, st.RunID, result); err != nil {
		r.logger.Warn("record flow end failed", "error", err)
	}

	if r.checkpointing() {
		if err := r.e.store.Delete(ctx, r.key); err != nil {
			return nil, fmt.Errorf("delete state: %w", err)
		}
	}

	r.logger.Info("flow ended", "steps", st.StepCounter, "errors", st.ErrorFlag)
	r.e.metrics.ObserveFlow(string(StatusCompleted))
	r.publish(ctx, mq.Event{Type: mq.EventFlowEnded, StepID: step.ID, StepName: step.Name, Result: result})

	return &Result{
		Status: StatusCompleted,
		RunID:  st.RunID,
		StepID: step.ID,
		Output: st.LastOutput,
	}, nil
}

// decline сохраняет состояние перед отклонённым шагом и показывает снимок графа.
func (r *runner) decline(ctx context.Context, step *graph.Step) (*Result, error) {
	st := r.st
	st.CurrentDone = false
	st.Variables = r.vars.Snapshot()
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	if err := r.e.renderer.Render(r.e.out, st.FlowName, r.g, step.ID); err != nil {
		r.logger.Warn("render snapshot failed", "error", err)
	}

	r.logger.Info("step declined", "step_id", step.ID, "instance", r.key)
	r.e.metrics.ObserveFlow(string(StatusDeclined))
	r.publish(ctx, mq.Event{Type: mq.EventFlowDeclined, StepID: step.ID, StepName: step.Name})

	return &Result{
		Status: StatusDeclined,
		RunID:  st.RunID,
		StepID: step.ID,
		Output: st.LastOutput,
	}, nil
}

// fail фиксирует ошибку шага: журнал, checkpoint, запуск помечается неуспешным.
func (r *runner) fail(ctx context.Context, step *graph.Step, stepErr error) (*Result, error) {
	st := r.st
	st.ErrorFlag = true
	st.ErrorText = stepErr.Error()
	st.Variables = r.vars.Snapshot()

	r.logger.Error("step failed", "step_id", step.ID, "error", stepErr)
	r.record(ctx, step.DisplayName(), runlog.StatusError,
		fmt.Sprintf("Error in step '%s': %v.", step.DisplayName(), stepErr))

	saveErr := r.checkpoint(ctx)

	if err := r.e.sink.RecordFlowEnd(ctx, st.RunID, runlog.ResultEndedWithErrors); err != nil {
		r.logger.Warn("record flow end failed", "error", err)
	}
	r.e.metrics.ObserveFlow(string(StatusFailed))
	r.publish(ctx, mq.Event{
		Type:     mq.EventStepFailed,
		StepID:   step.ID,
		StepName: step.Name,
		Step:     st.StepCounter,
		Error:    stepErr.Error(),
	})

	return &Result{
		Status: StatusFailed,
		RunID:  st.RunID,
		StepID: step.ID,
		Output: st.LastOutput,
		Err:    stepErr,
	}, saveErr
}

// record пишет строку журнала шагов. Сбой журнала не прерывает flow.
func (r *runner) record(ctx context.Context, stepName, status, result string) {
	now := r.e.clock()
	rec := runlog.Record{
		RunID:      r.st.RunID,
		FlowName:   r.st.FlowName,
		StepName:   stepName,
		StepNumber: r.st.StepCounter,
		Status:     status,
		Result:     result,
		Timestamp:  now,
	}
	if err := r.e.sink.Append(ctx, rec); err != nil {
		r.logger.Warn("append run log record failed", "error", err)
	}

	if r.st.StepCounter > 0 {
		fmt.Fprintf(r.e.out, "%s: Step %d - %s\n", now.Format("15:04:05"), r.st.StepCounter, result)
	} else {
		fmt.Fprintf(r.e.out, "%s: %s\n", now.Format("15:04:05"), result)
	}
}

func (r *runner) publish(ctx context.Context, ev mq.Event) {
	if r.e.events == nil {
		return
	}
	ev.RunID = r.st.RunID
	ev.Flow = r.st.FlowName
	ev.Instance = r.key
	if err := r.e.events.PublishEvent(ctx, ev); err != nil {
		r.logger.Warn("publish event failed", "type", ev.Type, "error", err)
	}
}
