package variables

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Navigate проходит путь внутри значения.
//
// Поля ищутся в картах, структурах (без учёта регистра) и среди методов без
// аргументов; индексы применяются к спискам. Для строк с JSON оставшийся путь
// передаётся в gjson. Отрицательный индекс считается с конца.
func Navigate(v any, path []Segment) (any, bool) {
	cur := v
	for i, seg := range path {
		if s, ok := cur.(string); ok && gjson.Valid(s) {
			return navigateJSON(s, path[i:])
		}

		var ok bool
		if seg.IsIndex {
			cur, ok = index(cur, seg.Index)
		} else {
			cur, ok = field(cur, seg.Field)
		}
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func navigateJSON(s string, path []Segment) (any, bool) {
	parts := make([]string, len(path))
	for i, seg := range path {
		if seg.IsIndex {
			if seg.Index < 0 {
				n := int(gjson.Get(s, strings.Join(parts[:i], ".")+".#").Int())
				if i == 0 {
					n = int(gjson.Get(s, "#").Int())
				}
				parts[i] = strconv.Itoa(n + seg.Index)
				continue
			}
			parts[i] = strconv.Itoa(seg.Index)
			continue
		}
		parts[i] = escapeGJSON(seg.Field)
	}

	res := gjson.Get(s, strings.Join(parts, "."))
	if !res.Exists() {
		return nil, false
	}
	return fromJSON(res), true
}

func escapeGJSON(s string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "#", `\#`, "|", `\|`)
	return r.Replace(s)
}

// fromJSON приводит результат gjson к значениям, совместимым с хранилищем.
func fromJSON(res gjson.Result) any {
	switch res.Type {
	case gjson.Number:
		if n, err := strconv.ParseInt(res.Raw, 10, 64); err == nil {
			return int(n)
		}
		return res.Float()
	case gjson.JSON:
		var out any
		if err := json.Unmarshal([]byte(res.Raw), &out); err == nil {
			return out
		}
	}
	return res.Value()
}

func index(v any, idx int) (any, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		// Индекс строки считается в символах, не в байтах.
		runes := []rune(rv.String())
		i, ok := bound(idx, len(runes))
		if !ok {
			return nil, false
		}
		return string(runes[i]), true
	case reflect.Slice, reflect.Array:
		i, ok := bound(idx, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Map:
		return field(v, strconv.Itoa(idx))
	}
	return nil, false
}

// bound приводит отрицательный индекс к отсчёту от конца и проверяет границы.
func bound(idx, n int) (int, bool) {
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func field(v any, name string) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		if val, ok := m[name]; ok {
			return val, true
		}
		for k, val := range m {
			if strings.EqualFold(k, name) {
				return val, true
			}
		}
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}

	if out, ok := method(rv, name); ok {
		return out, true
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		for _, k := range rv.MapKeys() {
			if strings.EqualFold(k.String(), name) {
				return rv.MapIndex(k).Interface(), true
			}
		}
	case reflect.Struct:
		f := rv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), true
		}
		if out, ok := method(rv, name); ok {
			return out, true
		}
	}
	return nil, false
}

// method вызывает экспортированный метод без аргументов с одним результатом.
func method(rv reflect.Value, name string) (any, bool) {
	t := rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.EqualFold(m.Name, name) {
			continue
		}
		fn := rv.Method(i)
		if fn.Type().NumIn() != 0 || fn.Type().NumOut() != 1 {
			return nil, false
		}
		return fn.Call(nil)[0].Interface(), true
	}
	return nil, false
}
