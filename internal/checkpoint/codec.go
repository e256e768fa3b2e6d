package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Имена кодеков.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// zstdMagic — заголовок кадра zstd.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Codec сериализует состояние экземпляра.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// CodecByName возвращает кодек по имени из конфигурации.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// DetectCodec определяет кодек по содержимому.
func DetectCodec(data []byte) Codec {
	if bytes.HasPrefix(data, zstdMagic) {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec — читаемый формат с отступами.
// Числа в полях any восстанавливаются как int, если они целые, иначе float64.
type JSONCodec struct{}

// Name реализует Codec.
func (JSONCodec) Name() string { return CodecJSON }

// Encode реализует Codec.
func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Decode реализует Codec.
func (JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	normalizeValue(reflect.ValueOf(v))
	return nil
}

// MsgpackCodec — компактный формат: msgpack, сжатый zstd.
// Используются json-теги структур, целые в полях any приводятся к int.
type MsgpackCodec struct{}

// Name реализует Codec.
func (MsgpackCodec) Name() string { return CodecMsgpack }

// Encode реализует Codec.
func (MsgpackCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// Decode реализует Codec.
func (MsgpackCodec) Decode(data []byte, v any) error {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("zstd decode: %w", err)
	}

	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}
	normalizeValue(reflect.ValueOf(v))
	return nil
}

// normalizeValue обходит значение и приводит числа в полях any
// к int или float64.
func normalizeValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Pointer:
		if !rv.IsNil() {
			normalizeValue(rv.Elem())
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if f := rv.Field(i); f.CanSet() {
				normalizeValue(f)
			}
		}
	case reflect.Interface:
		if rv.IsNil() || !rv.CanSet() {
			return
		}
		if n := normalize(rv.Interface()); n != nil {
			rv.Set(reflect.ValueOf(n))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			normalizeValue(rv.Index(i))
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			val := iter.Value()
			switch val.Kind() {
			case reflect.Interface:
				if val.IsNil() {
					continue
				}
				if n := normalize(val.Interface()); n != nil {
					rv.SetMapIndex(iter.Key(), reflect.ValueOf(n))
				}
			case reflect.Pointer:
				normalizeValue(val)
			}
		}
	}
}

// normalize приводит одно динамическое значение.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil && n >= math.MinInt && n <= math.MaxInt {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int8:
		return int(t)
	case int16:
		return int(t)
	case int32:
		return int(t)
	case int64:
		return int(t)
	case uint8:
		return int(t)
	case uint16:
		return int(t)
	case uint32:
		return int(t)
	case uint64:
		if t <= math.MaxInt {
			return int(t)
		}
		return t
	case float32:
		return float64(t)
	case []any:
		for i, item := range t {
			if item != nil {
				t[i] = normalize(item)
			}
		}
		return t
	case map[string]any:
		for k, item := range t {
			if item != nil {
				t[k] = normalize(item)
			}
		}
		return t
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		normalizeValue(rv)
	}
	return v
}
