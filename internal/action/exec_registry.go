package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// ExecModule — модуль, реализованный внешней программой.
type ExecModule struct {
	Module  string   `yaml:"module" json:"module" validate:"required"`
	Command string   `yaml:"command" json:"command" validate:"required"`
	Args    []string `yaml:"args" json:"args"`
	Env     []string `yaml:"env" json:"env"`
	Dir     string   `yaml:"dir" json:"dir"`
}

// Операции протокола.
const (
	OpDescribe = "describe"
	OpInvoke   = "invoke"
)

// ExecRequest — запрос к внешней программе (одна строка JSON в stdin).
type ExecRequest struct {
	Op         string         `json:"op"`
	Module     string         `json:"module"`
	Class      string         `json:"class,omitempty"`
	Function   string         `json:"function"`
	Shape      string         `json:"shape,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Positional any            `json:"positional,omitempty"`
}

// ExecResponse — ответ внешней программы (JSON в stdout).
type ExecResponse struct {
	Params []Param `json:"params,omitempty"`
	Result any     `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Found  *bool   `json:"found,omitempty"`
}

// ExecRegistry вызывает действия во внешних процессах.
//
// На каждый запрос запускается новый процесс: describe возвращает сигнатуру,
// invoke выполняет действие. Сигнатуры кешируются.
type ExecRegistry struct {
	modules map[string]ExecModule

	mu   sync.Mutex
	sigs map[string]Signature
}

// NewExecRegistry создаёт реестр из списка модулей.
func NewExecRegistry(modules ...ExecModule) *ExecRegistry {
	r := &ExecRegistry{
		modules: make(map[string]ExecModule, len(modules)),
		sigs:    make(map[string]Signature),
	}
	for _, m := range modules {
		r.modules[strings.ToLower(m.Module)] = m
	}
	return r
}

// Resolve реализует Registry.
func (r *ExecRegistry) Resolve(ctx context.Context, ref Ref) (Invokable, error) {
	if ref.Receiver != nil {
		return nil, notFound(ref, fmt.Errorf("%w: receivers cannot cross process boundary", ErrUnsupported))
	}

	mod, ok := r.modules[strings.ToLower(ref.Module)]
	if !ok {
		return nil, notFound(ref, ErrModuleNotFound)
	}

	k := key(ref.Module, ref.Class, ref.Function)
	r.mu.Lock()
	sig, cached := r.sigs[k]
	r.mu.Unlock()

	if !cached {
		resp, err := r.roundTrip(ctx, mod, ExecRequest{
			Op:       OpDescribe,
			Module:   ref.Module,
			Class:    ref.Class,
			Function: ref.Function,
		})
		if err != nil {
			return nil, notFound(ref, fmt.Errorf("%w: describe: %v", ErrFunctionNotFound, err))
		}
		if resp.Found != nil && !*resp.Found {
			return nil, notFound(ref, ErrFunctionNotFound)
		}
		if resp.Error != "" {
			return nil, notFound(ref, fmt.Errorf("%w: %s", ErrFunctionNotFound, resp.Error))
		}
		sig = Signature{Params: resp.Params}

		r.mu.Lock()
		r.sigs[k] = sig
		r.mu.Unlock()
	}

	return &execFunc{registry: r, module: mod, ref: ref, sig: sig}, nil
}

// roundTrip запускает процесс, передаёт запрос и читает ответ.
func (r *ExecRegistry) roundTrip(ctx context.Context, mod ExecModule, req ExecRequest) (*ExecResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, mod.Command, mod.Args...)
	cmd.Dir = mod.Dir
	cmd.Env = append(os.Environ(), mod.Env...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var resp ExecResponse
	if stdout.Len() > 0 {
		if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
			if runErr != nil {
				return nil, processError(runErr, stderr.String())
			}
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &resp, nil
	}

	if runErr != nil {
		return nil, processError(runErr, stderr.String())
	}
	return nil, errors.New("empty response")
}

func processError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("run process: %w", err)
	}
	return fmt.Errorf("run process: %w: %s", err, stderr)
}

type execFunc struct {
	registry *ExecRegistry
	module   ExecModule
	ref      Ref
	sig      Signature
}

func (f *execFunc) Signature() Signature {
	return f.sig
}

func (f *execFunc) Invoke(ctx context.Context, call Call) (any, error) {
	req := ExecRequest{
		Op:       OpInvoke,
		Module:   f.ref.Module,
		Class:    f.ref.Class,
		Function: f.ref.Function,
		Shape:    call.Shape.String(),
	}
	switch call.Shape {
	case ShapeNamed:
		req.Args = call.Args(f.sig)
	case ShapePositional:
		req.Positional = call.Positional
	}

	resp, err := f.registry.roundTrip(ctx, f.module, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Result, nil
}
