package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

// RegisterStandard регистрирует встроенные модули math, text, list, json и env.
func RegisterStandard(r *FuncRegistry) {
	binary := []Param{{Name: "a"}, {Name: "b"}}

	r.Register("math", "add", Function{Params: binary, Fn: arith(func(a, b float64) (float64, error) { return a + b, nil })})
	r.Register("math", "subtract", Function{Params: binary, Fn: arith(func(a, b float64) (float64, error) { return a - b, nil })})
	r.Register("math", "multiply", Function{Params: binary, Fn: arith(func(a, b float64) (float64, error) { return a * b, nil })})
	r.Register("math", "divide", Function{Params: binary, Fn: arith(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	})})

	r.Register("text", "concat", Function{
		Params: []Param{{Name: "first"}, {Name: "second"}, {Name: "separator", Default: "", HasDefault: true}},
		Fn: func(_ context.Context, args Args) (any, error) {
			return args.String("first") + args.String("separator") + args.String("second"), nil
		},
	})
	r.Register("text", "upper", Function{
		Params: []Param{{Name: "text"}},
		Fn: func(_ context.Context, args Args) (any, error) {
			return strings.ToUpper(args.String("text")), nil
		},
	})
	r.Register("text", "lower", Function{
		Params: []Param{{Name: "text"}},
		Fn: func(_ context.Context, args Args) (any, error) {
			return strings.ToLower(args.String("text")), nil
		},
	})
	r.Register("text", "replace", Function{
		Params: []Param{{Name: "text"}, {Name: "old"}, {Name: "new", Default: "", HasDefault: true}},
		Fn: func(_ context.Context, args Args) (any, error) {
			return strings.ReplaceAll(args.String("text"), args.String("old"), args.String("new")), nil
		},
	})
	r.Register("text", "split", Function{
		Params: []Param{{Name: "text"}, {Name: "separator", Default: ",", HasDefault: true}},
		Fn: func(_ context.Context, args Args) (any, error) {
			parts := strings.Split(args.String("text"), args.String("separator"))
			items := make([]any, len(parts))
			for i, p := range parts {
				items[i] = strings.TrimSpace(p)
			}
			return items, nil
		},
	})
	r.Register("text", "contains", Function{
		Params: []Param{{Name: "text"}, {Name: "value"}},
		Fn: func(_ context.Context, args Args) (any, error) {
			return strings.Contains(args.String("text"), args.String("value")), nil
		},
	})

	r.Register("list", "count", Function{
		Params: []Param{{Name: "items"}},
		Fn: func(_ context.Context, args Args) (any, error) {
			v, _ := args.Value("items")
			return length(v), nil
		},
	})
	r.Register("list", "item", Function{
		Params: []Param{{Name: "items"}, {Name: "index", Default: 0, HasDefault: true}},
		Fn: func(_ context.Context, args Args) (any, error) {
			v, _ := args.Value("items")
			idx, err := args.Int("index")
			if err != nil {
				return nil, err
			}
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return nil, fmt.Errorf("items is %T, not a list", v)
			}
			if idx < 0 || idx >= rv.Len() {
				return nil, fmt.Errorf("index %d out of range [0,%d)", idx, rv.Len())
			}
			return rv.Index(idx).Interface(), nil
		},
	})
	r.Register("list", "join", Function{
		Params: []Param{{Name: "items"}, {Name: "separator", Default: ", ", HasDefault: true}},
		Fn: func(_ context.Context, args Args) (any, error) {
			v, _ := args.Value("items")
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return fmt.Sprint(v), nil
			}
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = fmt.Sprint(rv.Index(i).Interface())
			}
			return strings.Join(parts, args.String("separator")), nil
		},
	})

	r.Register("json", "parse", Function{
		Params: []Param{{Name: "text"}},
		Fn: func(_ context.Context, args Args) (any, error) {
			var out any
			if err := json.Unmarshal([]byte(args.String("text")), &out); err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
			return out, nil
		},
	})
	r.Register("json", "get", Function{
		Params: []Param{{Name: "text"}, {Name: "path"}},
		Fn: func(_ context.Context, args Args) (any, error) {
			text := args.String("text")
			if v, ok := args.Value("text"); ok {
				if _, isString := v.(string); !isString {
					b, err := json.Marshal(v)
					if err != nil {
						return nil, fmt.Errorf("marshal value: %w", err)
					}
					text = string(b)
				}
			}
			res := gjson.Get(text, args.String("path"))
			if !res.Exists() {
				return nil, nil
			}
			return res.Value(), nil
		},
	})

	r.Register("env", "get", Function{
		Params: []Param{{Name: "name"}, {Name: "default", Default: "", HasDefault: true}},
		Fn: func(_ context.Context, args Args) (any, error) {
			if v, ok := os.LookupEnv(args.String("name")); ok {
				return v, nil
			}
			return args.String("default"), nil
		},
	})

	r.RegisterClass("text", "Builder", Class{
		New: func(_ context.Context, _ Args) (any, error) {
			return &strings.Builder{}, nil
		},
		Methods: map[string]Method{
			"add": {
				Params: []Param{{Name: "text"}},
				Fn: func(_ context.Context, self any, args Args) (any, error) {
					b := self.(*strings.Builder)
					b.WriteString(args.String("text"))
					return b.Len(), nil
				},
			},
			"build": {
				Fn: func(_ context.Context, self any, _ Args) (any, error) {
					return self.(*strings.Builder).String(), nil
				},
			},
		},
	})
}

// arith оборачивает бинарную операцию: целые аргументы дают целый результат.
func arith(op func(a, b float64) (float64, error)) Func {
	return func(_ context.Context, args Args) (any, error) {
		a, err := args.Float("a")
		if err != nil {
			return nil, err
		}
		b, err := args.Float("b")
		if err != nil {
			return nil, err
		}
		res, err := op(a, b)
		if err != nil {
			return nil, err
		}
		if isInt(args["a"]) && isInt(args["b"]) && res == float64(int64(res)) {
			return int(res), nil
		}
		return res, nil
	}
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64:
		return true
	}
	return false
}

func length(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len()
	}
	return 1
}
