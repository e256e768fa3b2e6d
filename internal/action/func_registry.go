package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Func — функция, зарегистрированная в процессе.
type Func func(ctx context.Context, args Args) (any, error)

// MethodFunc — метод класса; self — экземпляр, созданный конструктором.
type MethodFunc func(ctx context.Context, self any, args Args) (any, error)

// Function — описание функции модуля.
type Function struct {
	Params []Param
	Fn     Func
}

// Method — описание метода класса.
type Method struct {
	Params []Param
	Fn     MethodFunc
}

// Class — описание класса модуля.
type Class struct {
	// Params — параметры конструктора.
	Params []Param
	// New создаёт значение экземпляра.
	New Func
	// Methods — методы по имени.
	Methods map[string]Method
}

// Instance — экземпляр класса, созданный реестром.
// Может храниться в переменной и использоваться как получатель методов.
type Instance struct {
	Module string
	Class  string
	Value  any
}

// String возвращает описание экземпляра.
func (i *Instance) String() string {
	return fmt.Sprintf("<%s.%s instance>", i.Module, i.Class)
}

// FuncRegistry — таблица действий внутри процесса.
//
// Имена модулей, классов и функций сравниваются без учёта регистра.
// Экземпляры классов создаются один раз на ссылку module.class и переиспользуются.
type FuncRegistry struct {
	mu        sync.RWMutex
	funcs     map[string]Function
	classes   map[string]*classEntry
	instances map[string]*Instance
}

type classEntry struct {
	module, name string
	def          Class
}

// NewFuncRegistry создаёт пустой реестр.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{
		funcs:     make(map[string]Function),
		classes:   make(map[string]*classEntry),
		instances: make(map[string]*Instance),
	}
}

func key(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

// Register регистрирует функцию модуля.
func (r *FuncRegistry) Register(module, function string, fn Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key(module, function)] = fn
}

// RegisterClass регистрирует класс модуля.
func (r *FuncRegistry) RegisterClass(module, class string, c Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[key(module, class)] = &classEntry{module: module, name: class, def: c}
}

// Has проверяет, разрешается ли ссылка без создания экземпляров.
func (r *FuncRegistry) Has(ref Ref) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ref.Class != "" {
		_, ok := r.classes[key(ref.Module, ref.Class)]
		return ok
	}
	_, ok := r.funcs[key(ref.Module, ref.Function)]
	return ok
}

// Functions возвращает отсортированный список зарегистрированных функций.
func (r *FuncRegistry) Functions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		names = append(names, strings.ReplaceAll(strings.TrimPrefix(k, "|"), "|", "."))
	}
	sort.Strings(names)
	return names
}

// Resolve реализует Registry.
func (r *FuncRegistry) Resolve(_ context.Context, ref Ref) (Invokable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref.Receiver != nil {
		inst, ok := ref.Receiver.(*Instance)
		if !ok {
			return nil, notFound(ref, fmt.Errorf("%w: receiver %T is not a class instance", ErrUnsupported, ref.Receiver))
		}
		entry, ok := r.classes[key(inst.Module, inst.Class)]
		if !ok {
			return nil, notFound(ref, ErrClassNotFound)
		}
		m, ok := lookupMethod(entry.def, ref.Function)
		if !ok {
			return nil, notFound(ref, ErrFunctionNotFound)
		}
		return &boundMethod{ref: ref, method: m, self: func(context.Context) (any, error) { return inst.Value, nil }}, nil
	}

	if ref.Class != "" {
		entry, ok := r.classes[key(ref.Module, ref.Class)]
		if !ok {
			return nil, notFound(ref, ErrClassNotFound)
		}
		if ref.Function == "" {
			return &constructor{ref: ref, registry: r, entry: entry}, nil
		}
		m, ok := lookupMethod(entry.def, ref.Function)
		if !ok {
			return nil, notFound(ref, ErrFunctionNotFound)
		}
		return &boundMethod{ref: ref, method: m, self: func(ctx context.Context) (any, error) {
			inst, err := r.instance(ctx, entry, nil)
			if err != nil {
				return nil, err
			}
			return inst.Value, nil
		}}, nil
	}

	fn, ok := r.funcs[key(ref.Module, ref.Function)]
	if !ok {
		if !r.hasModule(ref.Module) {
			return nil, notFound(ref, ErrModuleNotFound)
		}
		return nil, notFound(ref, ErrFunctionNotFound)
	}
	return &function{ref: ref, fn: fn}, nil
}

// hasModule вызывается под RLock.
func (r *FuncRegistry) hasModule(module string) bool {
	prefix := key(module) + "|"
	for k := range r.funcs {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	for k := range r.classes {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// instance возвращает экземпляр класса, создавая его при первом обращении.
// args == nil означает конструктор без аргументов.
func (r *FuncRegistry) instance(ctx context.Context, entry *classEntry, args Args) (*Instance, error) {
	k := key(entry.module, entry.name)

	r.mu.RLock()
	inst, ok := r.instances[k]
	r.mu.RUnlock()
	if ok && args == nil {
		return inst, nil
	}

	var value any
	if entry.def.New != nil {
		if args == nil {
			args = Call{}.Args(Signature{Params: entry.def.Params})
		}
		v, err := safeCall(func() (any, error) { return entry.def.New(ctx, args) })
		if err != nil {
			return nil, err
		}
		value = v
	}

	inst = &Instance{Module: entry.module, Class: entry.name, Value: value}
	r.mu.Lock()
	r.instances[k] = inst
	r.mu.Unlock()
	return inst, nil
}

// Reset удаляет созданные экземпляры классов.
func (r *FuncRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]*Instance)
}

func lookupMethod(c Class, name string) (Method, bool) {
	if m, ok := c.Methods[name]; ok {
		return m, true
	}
	for k, m := range c.Methods {
		if strings.EqualFold(k, name) {
			return m, true
		}
	}
	return Method{}, false
}

type function struct {
	ref Ref
	fn  Function
}

func (f *function) Signature() Signature {
	return Signature{Params: f.fn.Params}
}

func (f *function) Invoke(ctx context.Context, call Call) (any, error) {
	args := call.Args(f.Signature())
	return safeCall(func() (any, error) { return f.fn.Fn(ctx, args) })
}

type constructor struct {
	ref      Ref
	registry *FuncRegistry
	entry    *classEntry
}

func (c *constructor) Signature() Signature {
	return Signature{Params: c.entry.def.Params}
}

// Invoke создаёт экземпляр и возвращает его как *Instance.
func (c *constructor) Invoke(ctx context.Context, call Call) (any, error) {
	return c.registry.instance(ctx, c.entry, call.Args(c.Signature()))
}

type boundMethod struct {
	ref    Ref
	method Method
	self   func(ctx context.Context) (any, error)
}

func (m *boundMethod) Signature() Signature {
	return Signature{Params: m.method.Params}
}

func (m *boundMethod) Invoke(ctx context.Context, call Call) (any, error) {
	self, err := m.self(ctx)
	if err != nil {
		return nil, err
	}
	args := call.Args(m.Signature())
	return safeCall(func() (any, error) { return m.method.Fn(ctx, self, args) })
}
