package action

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Ref — ссылка на действие.
type Ref struct {
	Module   string
	Class    string
	Function string

	// Receiver — готовый экземпляр класса (например, взятый из переменной).
	// Если задан, Function разрешается как метод этого экземпляра.
	Receiver any
}

// String возвращает ссылку в виде module.class.function.
func (r Ref) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Module, r.Class, r.Function} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "<empty>"
	}
	return strings.Join(parts, ".")
}

// Param — параметр сигнатуры действия.
type Param struct {
	Name       string `json:"name"`
	Default    any    `json:"default,omitempty"`
	HasDefault bool   `json:"has_default,omitempty"`
}

// Signature — интроспектируемая сигнатура действия.
type Signature struct {
	Params []Param `json:"params"`
}

// Param возвращает параметр по имени без учёта регистра.
func (s Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Param{}, false
}

// Shape — форма вызова действия.
type Shape int

const (
	// ShapeNone — вызов без аргументов.
	ShapeNone Shape = iota
	// ShapeNamed — вызов с именованными аргументами.
	ShapeNamed
	// ShapePositional — вызов с одним позиционным аргументом.
	ShapePositional
)

// String возвращает имя формы вызова.
func (s Shape) String() string {
	switch s {
	case ShapeNamed:
		return "named"
	case ShapePositional:
		return "positional"
	default:
		return "none"
	}
}

// Call — аргументы конкретного вызова.
type Call struct {
	Shape      Shape
	Named      map[string]any
	Positional any
}

// Args собирает карту аргументов по сигнатуре: значения вызова
// плюс значения по умолчанию для отсутствующих параметров.
func (c Call) Args(sig Signature) Args {
	args := make(Args, len(sig.Params))
	switch c.Shape {
	case ShapeNamed:
		for k, v := range c.Named {
			name := k
			if p, ok := sig.Param(k); ok {
				name = p.Name
			}
			args[name] = v
		}
	case ShapePositional:
		if len(sig.Params) > 0 {
			args[sig.Params[0].Name] = c.Positional
		}
	}

	for _, p := range sig.Params {
		if _, ok := args[p.Name]; !ok && p.HasDefault {
			args[p.Name] = p.Default
		}
	}
	return args
}

// Invokable — разрешённое действие.
type Invokable interface {
	// Signature возвращает параметры действия.
	Signature() Signature

	// Invoke вызывает действие.
	Invoke(ctx context.Context, call Call) (any, error)
}

// Registry разрешает ссылки на действия.
type Registry interface {
	Resolve(ctx context.Context, ref Ref) (Invokable, error)
}

// Args — именованные аргументы действия.
type Args map[string]any

// Value возвращает аргумент по имени без учёта регистра.
func (a Args) Value(name string) (any, bool) {
	if v, ok := a[name]; ok {
		return v, true
	}
	for k, v := range a {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// String возвращает аргумент как строку.
func (a Args) String(name string) string {
	v, ok := a.Value(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float возвращает аргумент как число с плавающей точкой.
func (a Args) Float(name string) (float64, error) {
	v, ok := a.Value(name)
	if !ok {
		return 0, fmt.Errorf("argument %q is missing", name)
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return f, nil
	}

	var f float64
	if err := mapstructure.WeakDecode(v, &f); err != nil {
		return 0, fmt.Errorf("argument %q: %w", name, err)
	}
	return f, nil
}

// Int возвращает аргумент как целое число.
func (a Args) Int(name string) (int, error) {
	v, ok := a.Value(name)
	if !ok {
		return 0, fmt.Errorf("argument %q is missing", name)
	}
	var n int
	if err := mapstructure.WeakDecode(v, &n); err != nil {
		return 0, fmt.Errorf("argument %q: %w", name, err)
	}
	return n, nil
}

// Bool возвращает аргумент как bool.
func (a Args) Bool(name string) bool {
	v, ok := a.Value(name)
	if !ok {
		return false
	}
	return Truthy(v)
}

// Decode раскладывает аргументы в структуру (теги mapstructure, нестрогая типизация).
func (a Args) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(a)); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// Truthy приводит значение к bool.
//
// Ложны: nil, false, 0, пустая строка, "false"/"no"/"0" (без учёта регистра),
// пустые слайсы и карты.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "no", "0", "none":
			return false
		}
		return true
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return truthyReflect(v)
}

// safeCall вызывает fn и превращает панику в ошибку.
func safeCall(fn func() (any, error)) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
