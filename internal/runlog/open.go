package runlog

import (
	"context"
	"fmt"
	"strings"
)

// Бэкенды журнала.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// Open открывает журнал выбранного бэкенда.
// Для sqlite dsn — путь к файлу базы, для postgres — строка подключения.
func Open(ctx context.Context, backend, dsn string, opts ...Option) (Sink, error) {
	switch strings.ToLower(backend) {
	case "", BackendSQLite:
		return OpenSQLite(ctx, dsn, opts...)
	case BackendPostgres:
		return OpenPostgres(ctx, dsn, opts...)
	case BackendNone:
		return NopSink{}, nil
	}
	return nil, fmt.Errorf("unknown log backend %q", backend)
}
