package variables

import "reflect"

// LoopCursor — состояние цикла по списку, привязанному к шагу.
type LoopCursor struct {
	StepID       string `json:"step_id"`
	VariableName string `json:"variable_name"`
	Items        []any  `json:"items"`
	TotalCount   int    `json:"total_count"`
	Counter      int    `json:"counter"`
	Start        int    `json:"start"`

	// Materialized — элементы зафиксированы при первом входе в шаг.
	Materialized bool `json:"materialized"`

	// Checked — счётчик уже сдвинут проверкой "есть ли ещё элементы"
	// в текущей итерации; повторный вход в шаг не сдвигает его ещё раз.
	Checked bool `json:"checked"`
}

// NewLoopCursor создаёт курсор для шага.
func NewLoopCursor(stepID, variable string, start int) *LoopCursor {
	return &LoopCursor{
		StepID:       stepID,
		VariableName: Key(variable),
		Counter:      start,
		Start:        start,
	}
}

// Materialize фиксирует список элементов.
// Одиночное значение становится списком из одного элемента, nil — пустым списком.
func (c *LoopCursor) Materialize(output any) {
	c.Items = ToList(output)
	c.TotalCount = len(c.Items)
	c.Counter = c.Start
	c.Materialized = true
	c.Checked = false
}

// Current возвращает текущий элемент, если счётчик в пределах списка.
func (c *LoopCursor) Current() (any, bool) {
	if c.Counter < 0 || c.Counter >= len(c.Items) {
		return nil, false
	}
	return c.Items[c.Counter], true
}

// Exhausted сообщает, что элементов больше нет.
func (c *LoopCursor) Exhausted() bool {
	return c.Materialized && c.Counter >= c.TotalCount
}

// Advance сдвигает счётчик и сообщает, остались ли элементы.
func (c *LoopCursor) Advance() bool {
	c.Counter++
	c.Checked = true
	return c.Counter < c.TotalCount
}

// Reenter вызывается при повторном входе в шаг-владелец цикла.
// Сдвигает счётчик, только если проверка не сделала этого в текущей итерации.
func (c *LoopCursor) Reenter() {
	if c.Checked {
		c.Checked = false
		return
	}
	c.Counter++
}

// ToList приводит значение к []any.
func ToList(v any) []any {
	if v == nil {
		return []any{}
	}
	if list, ok := v.([]any); ok {
		return append([]any(nil), list...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return []any{v}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// isSequence сообщает, является ли значение списком (но не строкой и не []byte).
func isSequence(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

// Loops — доступ к активным курсорам циклов по имени переменной.
type Loops interface {
	CursorFor(variable string) *LoopCursor
}

// LoopMap — курсоры по ID шага-владельца.
type LoopMap map[string]*LoopCursor

// CursorFor реализует Loops.
func (m LoopMap) CursorFor(variable string) *LoopCursor {
	k := Key(variable)
	for _, c := range m {
		if c.VariableName == k {
			return c
		}
	}
	return nil
}
