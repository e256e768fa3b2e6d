package diagram

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/url"
	"strings"

	"github.com/klauspost/compress/flate"
)

// DecodePayload распаковывает полезную нагрузку и возвращает внутренний XML.
//
// Порядок строго фиксирован: base64 → raw deflate (без zlib-заголовка) → percent-decode.
func DecodePayload(payload string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, formatErr(StageBase64, err)
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	escaped, err := io.ReadAll(r)
	if err != nil {
		return nil, formatErr(StageInflate, err)
	}

	inner, err := url.PathUnescape(string(escaped))
	if err != nil {
		return nil, formatErr(StageURL, err)
	}

	return []byte(inner), nil
}

// Encode упаковывает внутренний XML в полезную нагрузку диаграммы.
// Обратная операция к DecodePayload: percent-encode → raw deflate → base64.
func Encode(innerXML []byte) (string, error) {
	escaped := url.PathEscape(string(innerXML))

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", formatErr(StageInflate, err)
	}
	if _, err := w.Write([]byte(escaped)); err != nil {
		return "", formatErr(StageInflate, err)
	}
	if err := w.Close(); err != nil {
		return "", formatErr(StageInflate, err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
