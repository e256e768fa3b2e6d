package runlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySink хранит журнал в памяти процесса.
type MemorySink struct {
	mu      sync.RWMutex
	opts    options
	runs    map[string]*Run
	records []Record
}

// NewMemorySink создаёт пустой журнал.
func NewMemorySink(opts ...Option) *MemorySink {
	return &MemorySink{
		opts: buildOptions(opts),
		runs: make(map[string]*Run),
	}
}

// Append реализует Sink.
func (m *MemorySink) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Timestamp = m.opts.timestamp(rec.Timestamp)
	m.records = append(m.records, rec)
	return nil
}

// RecordFlowStart реализует Sink.
func (m *MemorySink) RecordFlowStart(_ context.Context, name, location string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.runs[id] = &Run{
		ID:       id,
		FlowName: name,
		Location: location,
		Result:   ResultAborted,
		Started:  m.opts.now().UTC(),
	}
	return id, nil
}

// RecordFlowEnd реализует Sink.
func (m *MemorySink) RecordFlowEnd(_ context.Context, runID, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	finished := m.opts.now().UTC()
	run.Result = result
	run.Finished = &finished
	return nil
}

// Cleanup реализует Sink.
func (m *MemorySink) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.opts.now().UTC().Add(-olderThan)

	var n int64
	for id, run := range m.runs {
		if run.Started.Before(cutoff) {
			delete(m.runs, id)
			n++
		}
	}

	kept := m.records[:0]
	for _, rec := range m.records {
		if _, ok := m.runs[rec.RunID]; ok && !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	m.records = kept
	return n, nil
}

// Close реализует Sink.
func (m *MemorySink) Close() error { return nil }

// Runs реализует Reader.
func (m *MemorySink) Runs(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Started.After(runs[j].Started) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Steps реализует Reader.
func (m *MemorySink) Steps(_ context.Context, runID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Records возвращает копию всех записей.
func (m *MemorySink) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// Run возвращает запуск по ID.
func (m *MemorySink) Run(id string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return *r, true
}
