package diagram

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Load читает файл диаграммы и возвращает RawGraph.
func Load(path string) (*RawGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, formatErr(StageRead, err)
	}
	return Decode(data)
}

// Decode разбирает содержимое файла диаграммы.
//
// Полезная нагрузка — текст первого дочернего элемента корня.
// Если этот элемент уже содержит mxGraphModel (несжатое сохранение draw.io),
// модель используется как есть.
func Decode(data []byte) (*RawGraph, error) {
	inner, err := InnerXML(data)
	if err != nil {
		return nil, err
	}
	return ParseGraphModel(inner)
}

// InnerXML извлекает и распаковывает внутренний XML из файла диаграммы.
func InnerXML(data []byte) ([]byte, error) {
	tree, err := parseTree(data)
	if err != nil {
		return nil, formatErr(StageXML, err)
	}

	if tree.name == "mxGraphModel" {
		return data, nil
	}
	if len(tree.children) == 0 {
		return nil, formatErr(StageXML, errors.New("diagram has no payload element"))
	}

	first := tree.children[0]
	if model := first.find("mxGraphModel"); model != nil {
		return reencode(model)
	}

	payload := strings.TrimSpace(first.text.String())
	if payload == "" {
		return nil, formatErr(StageXML, errors.New("diagram payload is empty"))
	}
	return DecodePayload(payload)
}

// reencode сериализует поддерево обратно в XML.
func reencode(el *element) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := encodeElement(enc, el); err != nil {
		return nil, formatErr(StageXML, err)
	}
	if err := enc.Flush(); err != nil {
		return nil, formatErr(StageXML, err)
	}
	return buf.Bytes(), nil
}

func encodeElement(enc *xml.Encoder, el *element) error {
	start := xml.StartElement{Name: xml.Name{Local: el.name}, Attr: el.attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range el.children {
		if err := encodeElement(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// WriteFile записывает внутренний XML в файл диаграммы в сжатом виде.
func WriteFile(path, name string, innerXML []byte) error {
	payload, err := Encode(innerXML)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Page-1"
	}

	var buf bytes.Buffer
	buf.WriteString(`<mxfile host="bpmnflow">`)
	fmt.Fprintf(&buf, `<diagram name="%s">`, xmlEscape(name))
	buf.WriteString(payload)
	buf.WriteString(`</diagram></mxfile>`)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write diagram: %w", err)
	}
	return nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
