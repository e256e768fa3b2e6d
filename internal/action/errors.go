package action

import (
	"errors"
	"fmt"
)

// Базовые ошибки действий.
var (
	// ErrActionResolution — действие не найдено по ссылке.
	ErrActionResolution = errors.New("action resolution failed")

	// ErrActionRuntime — действие вернуло ошибку или упало.
	ErrActionRuntime = errors.New("action failed")
)

// Причины ошибок разрешения.
var (
	// ErrModuleNotFound — модуль не найден.
	ErrModuleNotFound = errors.New("module not found")

	// ErrClassNotFound — класс не найден в модуле.
	ErrClassNotFound = errors.New("class not found")

	// ErrFunctionNotFound — функция или метод не найдены.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrUnsupported — реестр не поддерживает такой вид ссылки.
	ErrUnsupported = errors.New("reference kind not supported")
)

// ResolutionError — ошибка разрешения ссылки на действие.
type ResolutionError struct {
	Ref Ref
	Err error
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve action %s: %v", e.Ref, e.Err)
}

// Unwrap возвращает причину.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять errors.Is(err, ErrActionResolution).
func (e *ResolutionError) Is(target error) bool {
	return target == ErrActionResolution
}

// RuntimeError — ошибка выполнения действия.
type RuntimeError struct {
	Ref Ref
	Err error
}

// Error реализует интерфейс error.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Ref, e.Err)
}

// Unwrap возвращает причину.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять errors.Is(err, ErrActionRuntime).
func (e *RuntimeError) Is(target error) bool {
	return target == ErrActionRuntime
}

func notFound(ref Ref, err error) error {
	return &ResolutionError{Ref: ref, Err: err}
}
