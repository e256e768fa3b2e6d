package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/approval"
	"github.com/shaiso/bpmnflow/internal/checkpoint"
	"github.com/shaiso/bpmnflow/internal/config"
	"github.com/shaiso/bpmnflow/internal/diagram"
	"github.com/shaiso/bpmnflow/internal/engine"
	"github.com/shaiso/bpmnflow/internal/graph"
	"github.com/shaiso/bpmnflow/internal/mq"
	"github.com/shaiso/bpmnflow/internal/runlog"
	"github.com/shaiso/bpmnflow/internal/telemetry"
)

// DiagramExt — расширение файлов диаграмм по умолчанию.
const DiagramExt = ".drawio"

// App — ресурсы одного вызова CLI: конфигурация, логгер, журнал,
// хранилище состояний и издатель событий. Ресурсы открываются лениво
// и закрываются через Close.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	in  io.Reader
	out io.Writer

	sink    runlog.Sink
	store   checkpoint.Store
	events  engine.EventPublisher
	closers []func() error
}

// NewApp создаёт App. in и out — терминал оператора: вопросы согласования,
// строки журнала шагов и снимок графа.
func NewApp(cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *App {
	return &App{Config: cfg, Logger: logger, in: in, out: out}
}

// ServeMetrics регистрирует метрики движка и, если адрес задан,
// отдаёт их по HTTP до отмены ctx.
func (a *App) ServeMetrics(ctx context.Context) {
	reg := prometheus.NewRegistry()
	a.Metrics = telemetry.NewMetrics(reg)
	if a.Config.Metrics.Addr != "" {
		telemetry.ServeMetrics(ctx, a.Config.Metrics.Addr, reg, a.Logger)
	}
}

// Registry собирает реестр действий: встроенные модули, каталоги скриптов
// и внешние программы, в порядке приоритета.
func (a *App) Registry() action.Registry {
	funcs := action.NewFuncRegistry()
	action.RegisterStandard(funcs)
	action.RegisterWeb(funcs)

	chain := action.Chain{funcs}
	if dirs := a.Config.Actions.ScriptDirs; len(dirs) > 0 {
		chain = append(chain, action.NewScriptRegistry(dirs...))
	}
	if mods := a.Config.Actions.Exec; len(mods) > 0 {
		modules := make([]action.ExecModule, len(mods))
		for i, m := range mods {
			modules[i] = action.ExecModule{
				Module:  m.Module,
				Command: m.Command,
				Args:    m.Args,
				Env:     envList(m.Env),
				Dir:     m.Dir,
			}
		}
		chain = append(chain, action.NewExecRegistry(modules...))
	}
	return chain
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// Sink открывает журнал запусков.
func (a *App) Sink(ctx context.Context) (runlog.Sink, error) {
	if a.sink != nil {
		return a.sink, nil
	}

	c := a.Config.RunLog
	dsn := c.Path
	if c.Backend == runlog.BackendPostgres {
		dsn = c.DSN
	} else if c.Backend == runlog.BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	sink, err := runlog.Open(ctx, c.Backend, dsn)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	a.sink = sink
	a.closers = append(a.closers, sink.Close)
	return sink, nil
}

// Store открывает хранилище состояний экземпляров.
func (a *App) Store(ctx context.Context) (checkpoint.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	c := a.Config.Checkpoint
	switch c.Backend {
	case "redis":
		rs, err := checkpoint.OpenRedis(ctx, checkpoint.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
			TTL:      c.RedisTTL,
		})
		if err != nil {
			return nil, err
		}
		a.store = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.store = checkpoint.NewFileStore(c.Dir)
	}
	return a.store, nil
}

// InstanceKey переводит аргумент resume (путь или имя) в ключ хранилища.
func (a *App) InstanceKey(arg string) string {
	if a.Config.Checkpoint.Backend != "redis" {
		return arg
	}
	return strings.TrimSuffix(filepath.Base(arg), checkpoint.FileExt)
}

// Events подключает издателя событий. Пустой URL отключает публикацию;
// недоступный брокер не мешает запуску.
func (a *App) Events() engine.EventPublisher {
	if a.events != nil || a.Config.Events.AMQPURL == "" {
		return a.events
	}

	conn, err := mq.Dial(a.Config.Events.AMQPURL, a.Logger)
	if err != nil {
		a.Logger.Warn("events disabled", "error", err)
		return nil
	}
	if err := mq.DeclareExchange(conn, a.Config.Events.Exchange); err != nil {
		a.Logger.Warn("events disabled", "error", err)
		_ = conn.Close()
		return nil
	}

	pub := mq.NewPublisher(conn, a.Config.Events.Exchange, a.Logger)
	a.events = pub
	a.closers = append(a.closers, pub.Close)
	return pub
}

// Engine собирает движок. checkpointed включает хранилище состояний
// и согласование шагов.
func (a *App) Engine(ctx context.Context, checkpointed bool) (*engine.Engine, error) {
	sink, err := a.Sink(ctx)
	if err != nil {
		return nil, err
	}

	cfg := engine.Config{
		Registry: a.Registry(),
		Sink:     sink,
		Metrics:  a.Metrics,
		Out:      a.out,
		Logger:   a.Logger,
	}
	if ev := a.Events(); ev != nil {
		cfg.Events = ev
	}

	if checkpointed {
		store, err := a.Store(ctx)
		if err != nil {
			return nil, err
		}
		codec, err := checkpoint.CodecByName(a.Config.Checkpoint.Codec)
		if err != nil {
			return nil, err
		}
		cfg.Store = store
		cfg.Codec = codec
		cfg.Renderer = approval.RendererByName(a.Config.Approval.Snapshot)
		if a.Config.Approval.Enabled {
			cfg.Approver = approval.NewConsole(a.in, a.out)
		}
	}
	return engine.New(cfg), nil
}

// LoadFlow читает диаграмму, строит граф и возвращает состояние нового экземпляра.
func (a *App) LoadFlow(path string) (*engine.State, error) {
	raw, err := diagram.Load(path)
	if err != nil {
		return nil, err
	}

	opts := []graph.Option{graph.WithLogger(a.Logger)}
	if a.Config.Engine.FirstStart {
		opts = append(opts, graph.WithFirstStart())
	}
	g, err := graph.Build(raw, opts...)
	if err != nil {
		return nil, err
	}

	ref := path
	if abs, err := filepath.Abs(path); err == nil {
		ref = abs
	}
	return engine.NewState(g, ref, FlowName(path)), nil
}

// FlowName возвращает имя flow по пути диаграммы.
func FlowName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ResolveDiagram находит файл диаграммы по пути или по имени без расширения.
func ResolveDiagram(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if filepath.Ext(name) == "" {
		if _, err := os.Stat(name + DiagramExt); err == nil {
			return name + DiagramExt
		}
	}
	return name
}

// Close освобождает открытые ресурсы в обратном порядке.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
