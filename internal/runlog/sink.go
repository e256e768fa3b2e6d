package runlog

import (
	"context"
	"errors"
	"time"
)

// Итоговые сообщения запуска.
const (
	ResultAborted         = "The flow was aborted."
	ResultEnded           = "The flow has ended."
	ResultEndedWithErrors = "The flow has ended with ERRORS."
)

// Статусы записей шагов.
const (
	StatusStarting = "Starting"
	StatusRunning  = "Running"
	StatusError    = "Error"
	StatusEnded    = "Ended"
)

// ErrRunNotFound — запуск с таким ID не найден.
var ErrRunNotFound = errors.New("run not found")

// Record — запись о шаге.
type Record struct {
	RunID      string    `json:"run_id"`
	FlowName   string    `json:"flow_name"`
	StepName   string    `json:"step_name"`
	StepNumber int       `json:"step_number"`
	Status     string    `json:"status"`
	Result     string    `json:"result"`
	Timestamp  time.Time `json:"timestamp"`
}

// Run — запись о запуске flow.
type Run struct {
	ID       string     `json:"id"`
	FlowName string     `json:"flow_name"`
	Location string     `json:"location"`
	Result   string     `json:"result"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
}

// Sink принимает записи журнала.
type Sink interface {
	// Append добавляет запись о шаге.
	Append(ctx context.Context, rec Record) error

	// RecordFlowStart регистрирует flow (name, location) и открывает запуск.
	// Возвращает ID запуска.
	RecordFlowStart(ctx context.Context, name, location string) (string, error)

	// RecordFlowEnd закрывает запуск с итоговым сообщением.
	RecordFlowEnd(ctx context.Context, runID, result string) error

	// Cleanup удаляет запуски и шаги старше olderThan. Возвращает число удалённых запусков.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}

// Reader читает журнал.
type Reader interface {
	// Runs возвращает последние запуски, новые первыми.
	Runs(ctx context.Context, limit int) ([]Run, error)

	// Steps возвращает записи запуска в порядке добавления.
	Steps(ctx context.Context, runID string) ([]Record, error)
}

// Option настраивает sink.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp возвращает время записи или текущее время.
func (o options) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return o.now().UTC()
	}
	return t.UTC()
}
