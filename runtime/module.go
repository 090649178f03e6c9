package runtime

import (
	"fmt"
	"strings"
	"sync"
)

// EntryModuleName is the name of the transient entry-point module every
// runtime owns. Objects defined there have no stable importable identity.
const EntryModuleName = "main"

// ---------------------------------------------------------------------------
// Module: named namespace of bindings
// ---------------------------------------------------------------------------

// Module is a named namespace. A module is file-backed when it was loaded
// from source on disk; file-backed modules are assumed loadable by name in
// a peer process. The entry module and modules assembled ad hoc are not
// file-backed.
type Module struct {
	Name     string
	Path     string // source path; empty for non-file-backed modules
	Bindings *Dict
}

// NewModule creates an empty module.
func NewModule(name, path string) *Module {
	return &Module{Name: name, Path: path, Bindings: NewDict()}
}

// Kind implements Value.
func (*Module) Kind() Kind { return KindModule }

// String implements the Stringer interface.
func (m *Module) String() string { return "module " + m.Name }

// FileBacked returns true if the module was loaded from a source file.
func (m *Module) FileBacked() bool { return m.Path != "" }

// Lookup resolves a dotted qualified name against the module's bindings,
// traversing attribute access for each segment.
func (m *Module) Lookup(qualname string) (Value, error) {
	var cur Value = m
	for _, seg := range strings.Split(qualname, ".") {
		next, err := Attr(cur, seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

// Attr performs attribute lookup on a value. It is the single access path
// used by the interpreter's LOAD_ATTR and by qualified-name resolution.
func Attr(v Value, name string) (Value, error) {
	switch t := v.(type) {
	case *Module:
		if b, ok := t.Bindings.Get(name); ok {
			return b, nil
		}
		return nil, fmt.Errorf("runtime: module %s has no attribute %q", t.Name, name)
	case *Class:
		if a, ok := t.Attrs.Get(name); ok {
			return a, nil
		}
		if fn := t.LookupMethod(name); fn != nil {
			return fn, nil
		}
		return nil, fmt.Errorf("runtime: class %s has no attribute %q", t.FullName(), name)
	case *Object:
		if f, ok := t.GetField(name); ok {
			return f, nil
		}
		if bm := t.Bind(name); bm != nil {
			return bm, nil
		}
		return nil, fmt.Errorf("runtime: %s instance has no attribute %q", t.Class.Name, name)
	case *Function:
		if a, ok := t.Attrs.Get(name); ok {
			return a, nil
		}
		return nil, fmt.Errorf("runtime: function %s has no attribute %q", t.FullName(), name)
	case *Dict:
		if e, ok := t.Get(name); ok {
			return e, nil
		}
		return nil, fmt.Errorf("runtime: dict has no key %q", name)
	default:
		return nil, fmt.Errorf("runtime: %s has no attributes", v.Kind())
	}
}

// SetAttr performs attribute assignment on a value.
func SetAttr(v Value, name string, attr Value) error {
	switch t := v.(type) {
	case *Module:
		t.Bindings.Set(name, attr)
		return nil
	case *Class:
		t.Attrs.Set(name, attr)
		return nil
	case *Object:
		if t.SetField(name, attr) {
			return nil
		}
		return fmt.Errorf("runtime: %s declares no field %q", t.Class.FullName(), name)
	case *Function:
		t.Attrs.Set(name, attr)
		return nil
	case *Dict:
		t.Set(name, attr)
		return nil
	default:
		return fmt.Errorf("runtime: cannot set attribute on %s", v.Kind())
	}
}

// ---------------------------------------------------------------------------
// Runtime: per-process module registry and execution services
// ---------------------------------------------------------------------------

// Runtime owns the loaded-module table, the native-function registry, and
// the logger registry of one process instance. Registries are explicit so
// isolated runtimes can stand in for separate processes under test.
type Runtime struct {
	mu      sync.RWMutex
	modules map[string]*Module
	order   []string // module registration order

	natives map[string]*NativeFunction
	loggers map[string]*Logger

	entry *Module

	// MaxSteps bounds a single interpreted call; 0 means the default.
	MaxSteps int
}

// NewRuntime creates a runtime with a fresh transient entry module and no
// other modules loaded.
func NewRuntime() *Runtime {
	rt := &Runtime{
		modules: make(map[string]*Module),
		natives: make(map[string]*NativeFunction),
		loggers: make(map[string]*Logger),
	}
	rt.entry = NewModule(EntryModuleName, "")
	rt.modules[EntryModuleName] = rt.entry
	rt.order = append(rt.order, EntryModuleName)
	return rt
}

// Entry returns the transient entry-point module.
func (rt *Runtime) Entry() *Module { return rt.entry }

// RegisterModule adds a module to the loaded-module table, replacing any
// module of the same name.
func (rt *Runtime) RegisterModule(m *Module) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.modules[m.Name]; !ok {
		rt.order = append(rt.order, m.Name)
	}
	rt.modules[m.Name] = m
}

// Module returns the loaded module with the given name, or nil.
func (rt *Runtime) Module(name string) *Module {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.modules[name]
}

// Modules returns all loaded modules in registration order. The slice is
// a snapshot; iteration order across snapshots is stable but carries no
// semantic guarantee for name-scan resolution.
func (rt *Runtime) Modules() []*Module {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*Module, 0, len(rt.order))
	for _, name := range rt.order {
		out = append(out, rt.modules[name])
	}
	return out
}

// UnregisterModule removes a module from the table.
func (rt *Runtime) UnregisterModule(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.modules[name]; !ok {
		return
	}
	delete(rt.modules, name)
	for i, n := range rt.order {
		if n == name {
			rt.order = append(rt.order[:i], rt.order[i+1:]...)
			break
		}
	}
}

// RegisterNative adds a native function to the registry and returns it.
func (rt *Runtime) RegisterNative(name string, fn NativeFn) *NativeFunction {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	nf := &NativeFunction{Name: name, Fn: fn}
	rt.natives[name] = nf
	return nf
}

// Native returns the registered native function with the given name, or nil.
func (rt *Runtime) Native(name string) *NativeFunction {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.natives[name]
}
