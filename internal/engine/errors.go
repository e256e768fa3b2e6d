package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGatewayLabel — у шлюза нет ветки с подписью, соответствующей результату.
var ErrGatewayLabel = errors.New("gateway has no matching branch")

// Ошибки состояния экземпляра.
var (
	// ErrStepNotFound — текущий шаг состояния отсутствует в графе.
	ErrStepNotFound = errors.New("current step not found in graph")

	// ErrNilState — Run вызван без состояния.
	ErrNilState = errors.New("engine state is nil")

	// ErrNoLoop — переменная не привязана к активному циклу.
	ErrNoLoop = errors.New("variable is not bound to an active loop")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// GatewayLabelError — шлюз не может выбрать ветку.
type GatewayLabelError struct {
	StepID string   // ID шлюза
	Want   bool     // значение, для которого искалась ветка
	Labels []string // подписи исходящих рёбер
}

// Error реализует интерфейс error.
func (e *GatewayLabelError) Error() string {
	want := "false"
	if e.Want {
		want = "true"
	}
	return fmt.Sprintf("gateway %s: no %q branch among outgoing connectors [%s]",
		e.StepID, want, strings.Join(e.Labels, ", "))
}

// Unwrap возвращает базовую ошибку.
func (e *GatewayLabelError) Unwrap() error {
	return ErrGatewayLabel
}
