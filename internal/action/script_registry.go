package action

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ScriptRegistry загружает модули-исходники на Go и исполняет их интерпретатором yaegi.
//
// Модуль — это файл .go. Ссылка module разрешается как путь к файлу
// или как имя файла без расширения в одном из каталогов dirs.
// Экспортируются только функции верхнего уровня; имена параметров берутся из AST.
type ScriptRegistry struct {
	dirs []string

	mu      sync.Mutex
	modules map[string]*scriptModule
}

type scriptModule struct {
	path  string
	pkg   string
	funcs map[string][]string // имя функции → имена параметров
	in    *interp.Interpreter
}

// NewScriptRegistry создаёт реестр, ищущий модули в dirs.
func NewScriptRegistry(dirs ...string) *ScriptRegistry {
	return &ScriptRegistry{
		dirs:    dirs,
		modules: make(map[string]*scriptModule),
	}
}

// Resolve реализует Registry.
func (r *ScriptRegistry) Resolve(_ context.Context, ref Ref) (Invokable, error) {
	if ref.Class != "" || ref.Receiver != nil {
		return nil, notFound(ref, fmt.Errorf("%w: script modules export functions only", ErrUnsupported))
	}

	path, ok := r.locate(ref.Module)
	if !ok {
		return nil, notFound(ref, ErrModuleNotFound)
	}

	mod, err := r.load(path)
	if err != nil {
		return nil, notFound(ref, fmt.Errorf("%w: %v", ErrModuleNotFound, err))
	}

	name, params, ok := mod.lookup(ref.Function)
	if !ok {
		return nil, notFound(ref, ErrFunctionNotFound)
	}

	fn, err := mod.eval(name)
	if err != nil {
		return nil, notFound(ref, fmt.Errorf("%w: %v", ErrFunctionNotFound, err))
	}

	sig := Signature{Params: make([]Param, len(params))}
	for i, p := range params {
		sig.Params[i] = Param{Name: p}
	}
	return &scriptFunc{ref: ref, fn: fn, sig: sig}, nil
}

// locate ищет файл модуля.
func (r *ScriptRegistry) locate(module string) (string, bool) {
	module = strings.TrimSpace(module)
	if module == "" {
		return "", false
	}

	candidates := []string{module}
	if !strings.HasSuffix(module, ".go") {
		candidates = append(candidates, module+".go")
	}
	if !filepath.IsAbs(module) {
		base := append([]string(nil), candidates...)
		for _, dir := range r.dirs {
			for _, c := range base {
				candidates = append(candidates, filepath.Join(dir, c))
			}
		}
	}

	for _, c := range candidates {
		if filepath.Ext(c) != ".go" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(c)
			if err != nil {
				return c, true
			}
			return abs, true
		}
	}
	return "", false
}

// load разбирает и интерпретирует файл модуля один раз.
func (r *ScriptRegistry) load(path string) (*scriptModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mod, ok := r.modules[path]; ok {
		return mod, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	mod := &scriptModule{
		path:  path,
		pkg:   file.Name.Name,
		funcs: make(map[string][]string),
	}
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv != nil {
			continue
		}
		var params []string
		for _, field := range fd.Type.Params.List {
			if len(field.Names) == 0 {
				params = append(params, fmt.Sprintf("arg%d", len(params)))
				continue
			}
			for _, n := range field.Names {
				params = append(params, n.Name)
			}
		}
		mod.funcs[fd.Name.Name] = params
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", path, err)
	}
	mod.in = i

	r.modules[path] = mod
	return mod, nil
}

func (m *scriptModule) lookup(function string) (string, []string, bool) {
	if params, ok := m.funcs[function]; ok {
		return function, params, true
	}
	for name, params := range m.funcs {
		if strings.EqualFold(name, function) {
			return name, params, true
		}
	}
	return "", nil, false
}

func (m *scriptModule) eval(name string) (reflect.Value, error) {
	names := []string{m.pkg + "." + name, name}
	if m.pkg == "main" {
		names = []string{name, m.pkg + "." + name}
	}

	var lastErr error
	for _, n := range names {
		v, err := m.in.Eval(n)
		if err == nil && v.IsValid() && v.Kind() == reflect.Func {
			return v, nil
		}
		if err == nil {
			err = fmt.Errorf("%s is not a function", n)
		}
		lastErr = err
	}
	return reflect.Value{}, lastErr
}

type scriptFunc struct {
	ref Ref
	fn  reflect.Value
	sig Signature
}

func (f *scriptFunc) Signature() Signature {
	return f.sig
}

func (f *scriptFunc) Invoke(_ context.Context, call Call) (any, error) {
	args := call.Args(f.sig)
	return safeCall(func() (any, error) { return callFunc(f.fn, f.sig.Params, args) })
}
