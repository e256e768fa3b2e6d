package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

// Коды завершения процесса.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// ErrFlowFailed — шаг flow завершился ошибкой.
var ErrFlowFailed = errors.New("flow failed")

// UsageError — неверные аргументы или флаги команды.
type UsageError struct {
	Err error
}

// Error реализует интерфейс error.
func (e *UsageError) Error() string {
	return e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *UsageError) Unwrap() error {
	return e.Err
}

// ExitCode переводит ошибку команды в код завершения.
// Отказ оператора ошибкой не считается и даёт 0.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	// cobra сообщает о неизвестной команде обычной ошибкой.
	if strings.HasPrefix(err.Error(), "unknown command") {
		return ExitUsage
	}
	return ExitError
}

// usageArgs помечает ошибки проверки аргументов как UsageError.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

func flagError(_ *cobra.Command, err error) error {
	return &UsageError{Err: err}
}
