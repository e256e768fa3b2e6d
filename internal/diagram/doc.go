// Package diagram читает и записывает файлы диаграмм draw.io.
//
// Полезная нагрузка диаграммы упакована так:
//
//	base64(deflate_raw(percent_encode(utf8(innerXML))))
//
// Включает:
//   - codec.go — Encode/DecodePayload (base64, raw deflate, percent-encoding)
//   - load.go  — Load/Decode файла и WriteFile
//   - raw.go   — разбор mxGraphModel в RawGraph
//   - errors.go — FormatError
package diagram
