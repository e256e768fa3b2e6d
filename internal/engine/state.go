package engine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/shaiso/bpmnflow/internal/action"
	"github.com/shaiso/bpmnflow/internal/checkpoint"
	"github.com/shaiso/bpmnflow/internal/graph"
	"github.com/shaiso/bpmnflow/internal/variables"
)

// Version — текущая версия схемы State.
const Version = 1

// State — состояние экземпляра flow, единица checkpoint.
//
// Живые ресурсы (журнал, экземпляры классов, издатель событий) в State
// не входят и заново получаются при возобновлении.
type State struct {
	Version     int    `json:"version"`
	DocumentRef string `json:"document_ref"`
	FlowName    string `json:"flow_name"`
	Instance    string `json:"instance,omitempty"`

	Steps      []*graph.Step      `json:"steps"`
	Connectors []*graph.Connector `json:"connectors"`

	CurrentStep  string `json:"current_step"`
	PreviousStep string `json:"previous_step,omitempty"`

	// CurrentDone — текущий шаг уже выполнен, при возобновлении
	// сначала вычисляется следующий шаг.
	CurrentDone bool `json:"current_done"`
	LastOutput  any  `json:"last_output,omitempty"`

	Variables   map[string]any    `json:"variables"`
	LoopCursors variables.LoopMap `json:"loop_cursors"`

	StepCounter int    `json:"step_counter"`
	ErrorFlag   bool   `json:"error_flag"`
	ErrorText   string `json:"error_text,omitempty"`

	RunID     string    `json:"run_id,omitempty"`
	Input     any       `json:"input,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState создаёт состояние нового экземпляра, стоящего на стартовом шаге.
func NewState(g *graph.Graph, documentRef, flowName string) *State {
	return &State{
		Version:     Version,
		DocumentRef: documentRef,
		FlowName:    flowName,
		Steps:       g.Steps,
		Connectors:  g.Connectors,
		CurrentStep: g.Start().ID,
		Variables:   make(map[string]any),
		LoopCursors: make(variables.LoopMap),
	}
}

// Graph восстанавливает граф из сохранённых шагов и рёбер.
func (s *State) Graph() (*graph.Graph, error) {
	return graph.New(s.Steps, s.Connectors,
		graph.WithFirstStart(),
		graph.WithLogger(slog.New(slog.DiscardHandler)),
	)
}

// SaveState сериализует состояние и сохраняет его под ключом key.
// Значения, которые нельзя восстановить (экземпляры классов, функции, каналы), пропускаются.
func SaveState(ctx context.Context, store checkpoint.Store, codec checkpoint.Codec, key string, st *State) error {
	if codec == nil {
		codec = checkpoint.JSONCodec{}
	}

	snap := *st
	snap.Version = Version
	snap.Variables = persistableVars(st.Variables)
	if !persistable(st.LastOutput) {
		snap.LastOutput = nil
	}

	data, err := codec.Encode(&snap)
	if err != nil {
		return checkpoint.NewPersistenceError("encode", key, err)
	}
	return store.Save(ctx, key, data)
}

// LoadState загружает состояние. Кодек определяется по содержимому.
func LoadState(ctx context.Context, store checkpoint.Store, key string) (*State, error) {
	data, err := store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	var st State
	if err := checkpoint.DetectCodec(data).Decode(data, &st); err != nil {
		return nil, checkpoint.NewPersistenceError("decode", key, err)
	}
	if st.Version != Version {
		return nil, checkpoint.NewPersistenceError("decode", key,
			fmt.Errorf("%w: %d", checkpoint.ErrUnsupportedVersion, st.Version))
	}

	if st.Variables == nil {
		st.Variables = make(map[string]any)
	}
	if st.LoopCursors == nil {
		st.LoopCursors = make(variables.LoopMap)
	}
	return &st, nil
}

func persistableVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if persistable(v) {
			out[k] = v
		}
	}
	return out
}

func persistable(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.(*action.Instance); ok {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return true
}
