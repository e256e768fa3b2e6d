package diagram

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModel = `<mxGraphModel><root>` +
	`<mxCell id="0"/><mxCell id="1" parent="0"/>` +
	`<object id="start" label="Start"><mxCell style="ellipse" vertex="1" parent="1"/></object>` +
	`<object id="add" label="Add numbers" Module="math" Function="add" a="2" b="3" Output_variable="%sum%">` +
	`<mxCell style="rounded=1" vertex="1" parent="1"><mxGeometry as="geometry"/></mxCell></object>` +
	`<mxCell id="e1" edge="1" source="start" target="add" parent="1"/>` +
	`<mxCell id="l1" value="true &amp; more" style="edgeLabel;html=1" vertex="1" parent="e1"/>` +
	`</root></mxGraphModel>`

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		inner string
	}{
		{"model", sampleModel},
		{"unicode", `<mxGraphModel><root><mxCell id="ш" value="Привет, мир 100%"/></root></mxGraphModel>`},
		{"plus and spaces", `<mxGraphModel><root><mxCell id="a" value="1 + 2 = 3"/></root></mxGraphModel>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode([]byte(tt.inner))
			require.NoError(t, err)

			decoded, err := DecodePayload(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.inner, string(decoded))

			// Семантическое равенство: одинаковые графы
			want, err := ParseGraphModel([]byte(tt.inner))
			require.NoError(t, err)
			got, err := ParseGraphModel(decoded)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodePayload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		stage   string
	}{
		{"bad base64", "not base64 !!!", StageBase64},
		{"corrupt deflate", base64.StdEncoding.EncodeToString([]byte{0xff, 0xff, 0xff, 0xff}), StageInflate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.stage, fe.Stage)
		})
	}
}

func TestParseGraphModel(t *testing.T) {
	g, err := ParseGraphModel([]byte(sampleModel))
	require.NoError(t, err)
	require.Len(t, g.Nodes, 6)

	add := g.Node("add")
	require.NotNil(t, add)
	assert.Equal(t, "object", add.Tag)
	assert.Equal(t, "Add numbers", add.Value)
	assert.True(t, add.Vertex)
	assert.Equal(t, "1", add.Parent)

	fn, ok := add.Attr("function")
	assert.True(t, ok)
	assert.Equal(t, "add", fn)

	edge := g.Node("e1")
	assert.True(t, edge.IsConnector())
	assert.Equal(t, "start", edge.Source)
	assert.Equal(t, "add", edge.Target)

	label := g.Node("l1")
	assert.True(t, label.IsEdgeLabel())
	assert.Equal(t, "true & more", label.Value)
	assert.Equal(t, "e1", label.Parent)
}

func TestParseGraphModel_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		inner string
	}{
		{"broken xml", `<mxGraphModel><root>`},
		{"no model", `<foo/>`},
		{"no root", `<mxGraphModel/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGraphModel([]byte(tt.inner))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))
		})
	}
}

func TestWriteFileLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.drawio")
	require.NoError(t, WriteFile(path, "Flow", []byte(sampleModel)))

	g, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, g.Node("add"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	inner, err := InnerXML(data)
	require.NoError(t, err)
	assert.Equal(t, sampleModel, string(inner))
}

func TestDecode_Uncompressed(t *testing.T) {
	doc := `<mxfile><diagram name="Page-1">` + sampleModel + `</diagram></mxfile>`

	g, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.NotNil(t, g.Node("start"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.drawio"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))
}
