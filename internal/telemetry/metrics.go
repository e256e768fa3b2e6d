package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — счётчики движка. Методы безопасны для nil.
type Metrics struct {
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	flowsTotal     *prometheus.CounterVec
	approvalsTotal *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bpmnflow_steps_total",
			Help: "Total executed steps by kind and status",
		}, []string{"kind", "status"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bpmnflow_step_duration_seconds",
			Help:    "Step execution duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		flowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bpmnflow_flows_total",
			Help: "Total finished flow runs by status",
		}, []string{"status"}),
		approvalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bpmnflow_approvals_total",
			Help: "Approval gate decisions",
		}, []string{"decision"}),
	}
}

// ObserveStep учитывает выполненный шаг.
func (m *Metrics) ObserveStep(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(kind, status).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveFlow учитывает завершение запуска.
func (m *Metrics) ObserveFlow(status string) {
	if m == nil {
		return
	}
	m.flowsTotal.WithLabelValues(status).Inc()
}

// ObserveApproval учитывает решение по шагу.
func (m *Metrics) ObserveApproval(approved bool) {
	if m == nil {
		return
	}
	decision := "declined"
	if approved {
		decision = "approved"
	}
	m.approvalsTotal.WithLabelValues(decision).Inc()
}

// ServeMetrics отдаёт /metrics на addr до отмены ctx.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
