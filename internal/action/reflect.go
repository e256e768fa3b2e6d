package action

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

func truthyReflect(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Bool:
		return rv.Bool()
	}
	return true
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertArg приводит значение аргумента к типу параметра функции.
func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumberKind(rv.Kind()) && isNumberKind(t.Kind()) {
		return rv.Convert(t), nil
	}

	out := reflect.New(t)
	if err := mapstructure.WeakDecode(v, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("convert %T to %s: %w", v, t, err)
	}
	return out.Elem(), nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callFunc вызывает функцию через reflect с аргументами в порядке params.
//
// Поддерживаемые формы результата: (), (T), (error), (T, error).
func callFunc(fn reflect.Value, params []Param, args Args) (any, error) {
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", ft)
	}

	n := ft.NumIn()
	in := make([]reflect.Value, 0, n)
	for i := 0; i < n; i++ {
		pt := ft.In(i)
		if ft.IsVariadic() && i == n-1 {
			break
		}
		var v any
		if i < len(params) {
			v, _ = args.Value(params[i].Name)
		}
		arg, err := convertArg(v, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, arg)
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0).Implements(errorType) {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		return out[0].Interface(), asError(out[1])
	}
	return nil, fmt.Errorf("function returns %d values", len(out))
}

func asError(v reflect.Value) error {
	if !v.IsValid() || (v.Kind() == reflect.Interface && v.IsNil()) {
		return nil
	}
	if err, ok := v.Interface().(error); ok {
		return err
	}
	return nil
}
