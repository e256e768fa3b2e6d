package diagram

import "errors"

// ErrFormat — диаграмма не может быть декодирована или разобрана.
var ErrFormat = errors.New("diagram format error")

// Стадии декодирования.
const (
	StageRead    = "read"
	StageBase64  = "base64"
	StageInflate = "inflate"
	StageURL     = "percent-decode"
	StageXML     = "xml"
)

// FormatError — ошибка декодирования с указанием стадии.
type FormatError struct {
	Stage string // стадия, на которой произошёл сбой
	Err   error  // исходная ошибка
}

// Error реализует интерфейс error.
func (e *FormatError) Error() string {
	if e.Err == nil {
		return "diagram " + e.Stage + " failed"
	}
	return "diagram " + e.Stage + " failed: " + e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать с ErrFormat через errors.Is.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErr(stage string, err error) error {
	return &FormatError{Stage: stage, Err: err}
}
