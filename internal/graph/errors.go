package graph

import "errors"

// ErrGraph — базовая ошибка построения графа. Все ошибки пакета оборачивают её.
var ErrGraph = errors.New("invalid flow graph")

// Ошибки валидации графа.
var (
	// ErrNoSteps — диаграмма не содержит шагов.
	ErrNoSteps = errors.New("flow graph has no steps")

	// ErrEmptyID — узел без ID.
	ErrEmptyID = errors.New("node has empty ID")

	// ErrDuplicateID — несколько узлов с одинаковым ID.
	ErrDuplicateID = errors.New("duplicate node ID")

	// ErrDanglingConnector — ребро ссылается на несуществующий шаг.
	ErrDanglingConnector = errors.New("connector references unknown step")

	// ErrDanglingLabel — подпись ссылается на несуществующее ребро.
	ErrDanglingLabel = errors.New("edge label references unknown connector")

	// ErrNoStartStep — нет шага без входящих и с исходящими рёбрами.
	ErrNoStartStep = errors.New("flow graph has no start step")

	// ErrMultipleStarts — несколько кандидатов на стартовый шаг.
	ErrMultipleStarts = errors.New("flow graph has multiple start steps")

	// ErrInvalidLoopCounter — loopcounter не является целым числом.
	ErrInvalidLoopCounter = errors.New("loop counter is not an integer")
)

// ValidationError — ошибка построения графа с контекстом.
type ValidationError struct {
	StepID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "node " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять любую ошибку графа через errors.Is(err, ErrGraph).
func (e *ValidationError) Is(target error) bool {
	return target == ErrGraph
}

// NewValidationError создаёт новую ошибку валидации графа.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
