package approval

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/bpmnflow/internal/graph"
)

func TestConsole_Approve(t *testing.T) {
	step := &graph.Step{ID: "s1", Name: "Send mail"}

	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr error
	}{
		{"yes", "y\n", true, nil},
		{"empty means yes", "\n", true, nil},
		{"no", "No\n", false, nil},
		{"retry on garbage", "maybe\nn\n", false, nil},
		{"answer without newline", "yes", true, nil},
		{"eof", "", false, ErrNoAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsole(strings.NewReader(tt.input), &out)

			got, err := c.Approve(context.Background(), "invoice", step)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Execute step 'Send mail'?")
		})
	}
}

func TestConsole_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewConsole(strings.NewReader("y\n"), &bytes.Buffer{}).Approve(ctx, "f", &graph.Step{ID: "s"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAlways(t *testing.T) {
	ok, err := Always.Approve(context.Background(), "f", &graph.Step{ID: "s"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTextRenderer(t *testing.T) {
	steps := []*graph.Step{
		{ID: "start", Name: "Start", Kind: graph.KindShape},
		{ID: "gw", Name: "Check", Kind: graph.KindExclusiveGateway},
		{ID: "a", Name: "Step A", Kind: graph.KindShape},
		{ID: "end", Name: "End", Kind: graph.KindEndEvent},
	}
	conns := []*graph.Connector{
		{ID: "c1", Source: "start", Target: "gw"},
		{ID: "c2", Source: "gw", Target: "a", Value: "true"},
		{ID: "c3", Source: "gw", Target: "end", Value: "false"},
		{ID: "c4", Source: "a", Target: "end"},
	}
	g, err := graph.New(steps, conns)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, TextRenderer{}.Render(&buf, "demo", g, "a"))

	out := buf.String()
	assert.Contains(t, out, "Flow 'demo' stopped")
	assert.Contains(t, out, "▶ Step A")
	assert.Contains(t, out, "Start (start)")
	assert.Contains(t, out, "Check (exclusive_gateway)")
	assert.Contains(t, out, "→ Step A [true]")

	buf.Reset()
	require.NoError(t, RendererByName("none").Render(&buf, "demo", g, "a"))
	assert.Empty(t, buf.String())
}
