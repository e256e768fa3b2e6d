package telemetry

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")
	WithStepID(WithRunID(logger, "r1"), "s1").Info("step executed")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"step_id":"s1"`)
	assert.NotContains(t, out, "hidden")

	buf.Reset()
	WithFlowName(NewLogger(&buf, "debug", "text"), "invoice").Debug("shown")
	assert.True(t, strings.Contains(buf.String(), "flow=invoice"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStep("shape", "ok", 10*time.Millisecond)
	m.ObserveStep("shape", "ok", 20*time.Millisecond)
	m.ObserveFlow("completed")
	m.ObserveApproval(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("shape", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvalsTotal.WithLabelValues("declined")))

	n, err := testutil.GatherAndCount(reg, "bpmnflow_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.ObserveStep("shape", "ok", time.Second)
		nilMetrics.ObserveFlow("failed")
		nilMetrics.ObserveApproval(true)
	})
}
