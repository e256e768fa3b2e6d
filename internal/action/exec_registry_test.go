package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helperModule запускает тестовый бинарник как внешний модуль.
func helperModule() ExecModule {
	return ExecModule{
		Module:  "remote",
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Env:     []string{"BPMNFLOW_HELPER_PROCESS=1"},
	}
}

// TestHelperProcess — не тест, а внешний модуль для ExecRegistry.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("BPMNFLOW_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	var req ExecRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	found := true
	switch req.Function {
	case "multiply":
		if req.Op == OpDescribe {
			_ = enc.Encode(ExecResponse{Params: []Param{{Name: "a"}, {Name: "b", Default: 2.0, HasDefault: true}}})
			return
		}
		a, _ := req.Args["a"].(float64)
		b, _ := req.Args["b"].(float64)
		_ = enc.Encode(ExecResponse{Result: a * b})
	case "echo":
		if req.Op == OpDescribe {
			_ = enc.Encode(ExecResponse{Params: []Param{{Name: "value"}}})
			return
		}
		_ = enc.Encode(ExecResponse{Result: req.Positional})
	case "fail":
		if req.Op == OpDescribe {
			_ = enc.Encode(ExecResponse{})
			return
		}
		_ = enc.Encode(ExecResponse{Error: "remote failure"})
	case "crash":
		if req.Op == OpDescribe {
			_ = enc.Encode(ExecResponse{})
			return
		}
		fmt.Fprintln(os.Stderr, "segfault")
		os.Exit(3)
	default:
		found = false
		_ = enc.Encode(ExecResponse{Found: &found})
	}
}

func TestExecRegistry(t *testing.T) {
	r := NewExecRegistry(helperModule())
	ctx := context.Background()

	inv, err := r.Resolve(ctx, Ref{Module: "Remote", Function: "multiply"})
	require.NoError(t, err)
	require.Len(t, inv.Signature().Params, 2)

	out, err := inv.Invoke(ctx, Call{Shape: ShapeNamed, Named: map[string]any{"a": 4}})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out)

	echo, err := r.Resolve(ctx, Ref{Module: "remote", Function: "echo"})
	require.NoError(t, err)
	out, err = echo.Invoke(ctx, Call{Shape: ShapePositional, Positional: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", out)
}

func TestExecRegistry_Errors(t *testing.T) {
	r := NewExecRegistry(helperModule())
	ctx := context.Background()

	_, err := r.Resolve(ctx, Ref{Module: "unknown", Function: "x"})
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = r.Resolve(ctx, Ref{Module: "remote", Function: "nope"})
	assert.True(t, errors.Is(err, ErrFunctionNotFound))

	fail, err := r.Resolve(ctx, Ref{Module: "remote", Function: "fail"})
	require.NoError(t, err)
	_, err = fail.Invoke(ctx, Call{})
	assert.EqualError(t, err, "remote failure")

	crash, err := r.Resolve(ctx, Ref{Module: "remote", Function: "crash"})
	require.NoError(t, err)
	_, err = crash.Invoke(ctx, Call{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segfault")
}
