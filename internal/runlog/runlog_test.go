package runlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readSink interface {
	Sink
	Reader
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func testSink(t *testing.T, sink readSink, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()

	runID, err := sink.RecordFlowStart(ctx, "invoice", "/flows/invoice.drawio")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, sink.Append(ctx, Record{
		RunID: runID, FlowName: "invoice", StepName: "Add", StepNumber: 1,
		Status: StatusRunning, Result: "5",
	}))
	require.NoError(t, sink.Append(ctx, Record{
		RunID: runID, FlowName: "invoice", StepName: "End", StepNumber: 2,
		Status: StatusEnded, Result: ResultEnded,
	}))

	runs, err := sink.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ResultAborted, runs[0].Result)
	assert.Equal(t, "/flows/invoice.drawio", runs[0].Location)
	assert.Nil(t, runs[0].Finished)

	require.NoError(t, sink.RecordFlowEnd(ctx, runID, ResultEnded))

	runs, err = sink.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ResultEnded, runs[0].Result)
	assert.NotNil(t, runs[0].Finished)

	steps, err := sink.Steps(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Add", steps[0].StepName)
	assert.Equal(t, "5", steps[0].Result)
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, clock.now.UTC(), steps[0].Timestamp)

	err = sink.RecordFlowEnd(ctx, "00000000-0000-0000-0000-000000000000", ResultEnded)
	assert.ErrorIs(t, err, ErrRunNotFound)

	// Второй запуск того же flow переиспользует запись Flows
	clock.now = clock.now.Add(48 * time.Hour)
	second, err := sink.RecordFlowStart(ctx, "invoice", "/flows/invoice.drawio")
	require.NoError(t, err)
	assert.NotEqual(t, runID, second)

	n, err := sink.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err = sink.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, second, runs[0].ID)
}

func TestMemorySink(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	testSink(t, NewMemorySink(WithClock(clock.Now)), clock)
}

func TestSQLiteSink(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "logs", "runs.db")

	sink, err := OpenSQLite(context.Background(), path, WithClock(clock.Now))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	testSink(t, sink, clock)

	_, err = sink.Steps(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	// Повторное открытие не ломает существующую схему
	again, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("BPMNFLOW_TEST_DB_URL")
	if dsn == "" {
		t.Skip("BPMNFLOW_TEST_DB_URL not set")
	}

	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Microsecond)}
	sink, err := OpenPostgres(context.Background(), dsn, WithClock(clock.Now))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	testSink(t, sink, clock)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	sink, err := Open(ctx, BackendNone, "")
	require.NoError(t, err)
	id, err := sink.RecordFlowStart(ctx, "f", "l")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	sink, err = Open(ctx, "", filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteSink{}, sink)
	require.NoError(t, sink.Close())

	_, err = Open(ctx, "mysql", "")
	assert.Error(t, err)
}
