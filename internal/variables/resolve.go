package variables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/graph"
)

// Суффиксы, доступные только для переменной активного цикла.
const (
	suffixCounter = "counter"
	suffixObject  = "object"
)

// attrInput — атрибут с позиционным входом шага.
const attrInput = "input"

// Input — результат разрешения аргументов шага.
// nil вместо *Input означает «явного входа нет».
type Input struct {
	// Named — аргументы по именам параметров сигнатуры.
	Named map[string]any

	// Positional — единственный позиционный аргумент (атрибут input).
	Positional    any
	HasPositional bool
}

// Coerce приводит строковый литерал к типу.
//
// "True"/"False" становятся bool; строка из цифр — int,
// строка из цифр с точкой — float64. Остальное остаётся строкой.
func Coerce(s string) any {
	switch s {
	case "True":
		return true
	case "False":
		return false
	}

	digits := strings.ReplaceAll(s, ".", "")
	if digits == "" || !isDigits(digits) {
		return s
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Resolve разрешает аргументы шага по параметрам сигнатуры.
//
// Параметры сопоставляются с атрибутами шага без учёта регистра; отсутствующий
// или пустой атрибут заменяется значением по умолчанию. Если ни один параметр
// не получил значения из атрибута, возвращается nil («явного входа нет»),
// кроме случая, когда у шага есть атрибут input: он даёт позиционный вход.
func (s *Store) Resolve(step *graph.Step, params []action.Param, loops Loops) *Input {
	texts := make([]string, 0, len(step.Attributes))
	for _, a := range step.Attributes {
		texts = append(texts, a.Value)
	}
	s.PopulateSystem(texts...)

	named := make(map[string]any, len(params))
	explicit := false

	for _, p := range params {
		raw, ok := step.Attr(p.Name)
		if !ok || raw == "" {
			if p.HasDefault {
				named[p.Name] = p.Default
			}
			continue
		}
		named[p.Name] = s.resolveAttr(p.Name, raw, step, loops)
		explicit = true
	}

	if explicit {
		return &Input{Named: named}
	}

	if raw, ok := step.Attr(attrInput); ok && raw != "" {
		v := s.resolveAttr(attrInput, raw, step, loops)
		if m, ok := v.(map[string]any); ok {
			return &Input{Named: m}
		}
		return &Input{Positional: v, HasPositional: true}
	}
	return nil
}

// resolveAttr приводит литерал и подставляет переменные.
// Параметры, в имени которых есть "variable", получают текст как есть:
// это имена переменных, а не их значения.
func (s *Store) resolveAttr(param, raw string, step *graph.Step, loops Loops) any {
	v := Coerce(raw)
	text, ok := v.(string)
	if !ok || strings.Contains(strings.ToLower(param), "variable") {
		return v
	}
	return s.Substitute(text, step, loops)
}

// Substitute подставляет переменные в текст.
//
// Если токен занимает весь текст, возвращается типизированное значение.
// Иначе значения форматируются в строку. Неизвестные токены остаются как есть.
func (s *Store) Substitute(text string, step *graph.Step, loops Loops) any {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return text
	}

	if len(tokens) == 1 && tokens[0] == text {
		if v, ok := s.lookup(tokens[0], step, loops); ok {
			return v
		}
		return text
	}

	out := text
	for _, tok := range tokens {
		v, ok := s.lookup(tok, step, loops)
		if !ok {
			continue
		}
		out = strings.Replace(out, tok, Format(v), 1)
	}
	return out
}

// lookup разрешает один токен.
func (s *Store) lookup(token string, step *graph.Step, loops Loops) (any, bool) {
	ref := ParseRef(token)
	k := ref.Key()

	var cursor *LoopCursor
	if loops != nil {
		cursor = loops.CursorFor(k)
	}

	if cursor != nil && len(ref.Path) == 1 && !ref.Path[0].IsIndex {
		switch strings.ToLower(ref.Path[0].Field) {
		case suffixCounter:
			return cursor.Counter, true
		case suffixObject:
			return cursor, true
		}
	}

	v, ok := s.Get(k)
	if !ok {
		if cursor == nil || !cursor.Materialized {
			return nil, false
		}
		v = cursor.Items
	}

	if cursor != nil && (step == nil || step.ID != cursor.StepID) {
		v = loopItem(v, cursor)
	}

	if len(ref.Path) == 0 {
		return v, true
	}
	return Navigate(v, ref.Path)
}

// loopItem выбирает текущий элемент списка для шагов внутри цикла.
func loopItem(v any, cursor *LoopCursor) any {
	if !isSequence(v) {
		return v
	}
	items := ToList(v)
	switch {
	case len(items) == 0:
		return v
	case len(items) == 1:
		return items[0]
	case cursor.Counter >= 0 && cursor.Counter < len(items):
		return items[cursor.Counter]
	default:
		return items[0]
	}
}

// Format превращает значение в текст для подстановки внутрь строки.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.DateTime)
	case fmt.Stringer:
		return t.String()
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
