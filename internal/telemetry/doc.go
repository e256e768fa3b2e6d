// Package telemetry обеспечивает наблюдаемость движка.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики шагов и запусков
//
// Логи пишутся в stderr, чтобы stdout CLI оставался для данных.
// Метрики отдаются на /metrics, если задан --metrics-addr.
package telemetry
