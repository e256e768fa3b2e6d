package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/bpmnflow/internal/diagram"
)

func parse(t *testing.T, cells string) *diagram.RawGraph {
	t.Helper()
	raw, err := diagram.ParseGraphModel([]byte(
		`<mxGraphModel><root><mxCell id="0"/><mxCell id="1" parent="0"/>` + cells + `</root></mxGraphModel>`))
	require.NoError(t, err)
	return raw
}

func TestBuild_SimpleChain(t *testing.T) {
	raw := parse(t, `
		<mxCell id="start" value="Start" style="ellipse" vertex="1" parent="1"/>
		<object id="add" label="Add" Module="math" Function="add" a="2" b="3" Output_variable="%sum%">
			<mxCell style="rounded=1" vertex="1" parent="1"/>
		</object>
		<object id="end" label="End" shape_description="End event.">
			<mxCell style="ellipse" vertex="1" parent="1"/>
		</object>
		<mxCell id="e1" edge="1" source="start" target="add" parent="1"/>
		<mxCell id="e2" edge="1" source="add" target="end" parent="1"/>`)

	g, err := Build(raw)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Size())
	assert.Len(t, g.Connectors, 2)
	require.NotNil(t, g.Start())
	assert.Equal(t, "start", g.Start().ID)

	add := g.Step("add")
	require.NotNil(t, add)
	assert.Equal(t, KindShape, add.Kind)
	require.NotNil(t, add.Action)
	assert.Equal(t, ActionRef{Module: "math", Function: "add"}, *add.Action)
	assert.Equal(t, "%sum%", add.OutputVariable)
	assert.False(t, add.IsStart)

	v, ok := add.Attr("A")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	assert.Equal(t, KindEndEvent, g.Step("end").Kind)
	assert.Len(t, g.Outgoing("start"), 1)
	assert.Len(t, g.Incoming("end"), 1)
}

func TestBuild_EdgeLabels(t *testing.T) {
	raw := parse(t, `
		<mxCell id="s" value="Start" vertex="1" parent="1"/>
		<object id="gw" label="" type="Exclusive Gateway"><mxCell vertex="1" parent="1"/></object>
		<mxCell id="a" value="A" vertex="1" parent="1"/>
		<mxCell id="b" value="B" vertex="1" parent="1"/>
		<mxCell id="e0" edge="1" source="s" target="gw" parent="1"/>
		<mxCell id="e1" edge="1" source="gw" target="a" parent="1"/>
		<mxCell id="l1" value=" true " style="edgeLabel;html=1" vertex="1" parent="e1"/>
		<mxCell id="e2" edge="1" source="gw" target="b" parent="1"/>
		<mxCell id="l2" value="false" style="edgeLabel;html=1" vertex="1" parent="e2"/>`)

	g, err := Build(raw)
	require.NoError(t, err)

	// Подписи не становятся шагами
	assert.Equal(t, 4, g.Size())
	assert.Nil(t, g.Step("l1"))

	out := g.Outgoing("gw")
	require.Len(t, out, 2)
	assert.Equal(t, "true", out[0].Value)
	assert.Equal(t, "false", out[1].Value)
	assert.Equal(t, KindExclusiveGateway, g.Step("gw").Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		node diagram.RawNode
		want Kind
	}{
		{"plain", diagram.RawNode{Value: "Do it"}, KindShape},
		{"exclusive by type", diagram.RawNode{Attrs: []diagram.Attr{{Name: "type", Value: "Exclusive Gateway"}}}, KindExclusiveGateway},
		{"parallel by type", diagram.RawNode{Attrs: []diagram.Attr{{Name: "Type", Value: "Parallel Gateway"}}}, KindParallelGateway},
		{"parallel by style", diagram.RawNode{Style: "shape=mxgraph.bpmn.gateway2;gwType=parallel;"}, KindParallelGateway},
		{"exclusive by style", diagram.RawNode{Style: "shape=mxgraph.bpmn.gateway2;gwType=exclusive;"}, KindExclusiveGateway},
		{"end by description", diagram.RawNode{Attrs: []diagram.Attr{{Name: "shape_description", Value: "End event."}}}, KindEndEvent},
		{"end by label", diagram.RawNode{Value: "End Event"}, KindEndEvent},
		{"end by type", diagram.RawNode{Attrs: []diagram.Attr{{Name: "type", Value: "end event"}}}, KindEndEvent},
		{"end word only", diagram.RawNode{Value: "End"}, KindShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.node
			assert.Equal(t, tt.want, Classify(&n))
		})
	}
}

func TestBuild_StartUniqueness(t *testing.T) {
	tests := []struct {
		name    string
		cells   string
		opts    []Option
		start   string
		wantErr error
	}{
		{
			name: "single start",
			cells: `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="b" value="B" vertex="1" parent="1"/>
				<mxCell id="e" edge="1" source="a" target="b" parent="1"/>`,
			start: "a",
		},
		{
			name: "cycle has no start",
			cells: `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="b" value="B" vertex="1" parent="1"/>
				<mxCell id="e1" edge="1" source="a" target="b" parent="1"/><mxCell id="e2" edge="1" source="b" target="a" parent="1"/>`,
			wantErr: ErrNoStartStep,
		},
		{
			name:    "isolated step only",
			cells:   `<mxCell id="a" value="A" vertex="1" parent="1"/>`,
			wantErr: ErrNoStartStep,
		},
		{
			name: "two starts strict",
			cells: `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="b" value="B" vertex="1" parent="1"/>
				<mxCell id="c" value="C" vertex="1" parent="1"/>
				<mxCell id="e1" edge="1" source="a" target="c" parent="1"/><mxCell id="e2" edge="1" source="b" target="c" parent="1"/>`,
			wantErr: ErrMultipleStarts,
		},
		{
			name: "two starts first wins",
			cells: `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="b" value="B" vertex="1" parent="1"/>
				<mxCell id="c" value="C" vertex="1" parent="1"/>
				<mxCell id="e1" edge="1" source="a" target="c" parent="1"/><mxCell id="e2" edge="1" source="b" target="c" parent="1"/>`,
			opts:  []Option{WithFirstStart()},
			start: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(parse(t, tt.cells), tt.opts...)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.True(t, errors.Is(err, ErrGraph))
				return
			}
			require.NoError(t, err)

			starts := 0
			for _, s := range g.Steps {
				if s.IsStart {
					starts++
					// У стартового шага нет входящих рёбер
					assert.Empty(t, g.Incoming(s.ID))
				}
			}
			assert.Equal(t, 1, starts)
			assert.Equal(t, tt.start, g.Start().ID)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cells   string
		wantErr error
	}{
		{
			name:    "dangling target",
			cells:   `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="e" edge="1" source="a" target="zzz" parent="1"/>`,
			wantErr: ErrDanglingConnector,
		},
		{
			name: "dangling label",
			cells: `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="b" value="B" vertex="1" parent="1"/>
				<mxCell id="e" edge="1" source="a" target="b" parent="1"/>
				<mxCell id="l" value="true" style="edgeLabel" vertex="1" parent="nope"/>`,
			wantErr: ErrDanglingLabel,
		},
		{
			name:    "missing id",
			cells:   `<mxCell value="A" vertex="1" parent="1"/>`,
			wantErr: ErrEmptyID,
		},
		{
			name:    "duplicate id",
			cells:   `<mxCell id="a" value="A" vertex="1" parent="1"/><mxCell id="a" value="B" vertex="1" parent="1"/>`,
			wantErr: ErrDuplicateID,
		},
		{
			name:    "bad loop counter",
			cells:   `<object id="a" label="A" loopcounter="x"><mxCell vertex="1" parent="1"/></object>`,
			wantErr: ErrInvalidLoopCounter,
		},
		{
			name:    "no steps",
			cells:   ``,
			wantErr: ErrNoSteps,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(parse(t, tt.cells))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var ve *ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestBuild_StepAttributes(t *testing.T) {
	raw := parse(t, `
		<object id="loop" label="Each file" Module="files" ClassName="Folder" Function="list" loopcounter="0" type="disabled">
			<mxCell vertex="1" parent="1"/>
		</object>
		<mxCell id="next" value="Next" vertex="1" parent="1"/>
		<mxCell id="e" edge="1" source="loop" target="next" parent="1"/>`)

	g, err := Build(raw)
	require.NoError(t, err)

	s := g.Step("loop")
	require.NotNil(t, s.LoopCounterStart)
	assert.Equal(t, 0, *s.LoopCounterStart)
	assert.True(t, s.IsLoop())
	assert.True(t, s.Disabled)
	assert.Equal(t, "files.Folder.list", s.Action.String())
	assert.Equal(t, "Each file", s.DisplayName())
}
