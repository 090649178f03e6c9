package capsule

import (
	"strings"
	"sync"

	"github.com/chazu/capsule/runtime"
)

// ---------------------------------------------------------------------------
// By-value policy set
// ---------------------------------------------------------------------------

// ByValueSet is the process-wide set of module names forced to value
// encoding regardless of where their objects resolve. Registration is
// idempotent; the set starts empty and does not persist.
type ByValueSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewByValueSet creates an empty policy set.
func NewByValueSet() *ByValueSet {
	return &ByValueSet{names: make(map[string]struct{})}
}

// Register adds a module name to the set.
func (s *ByValueSet) Register(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[module] = struct{}{}
}

// Unregister removes a module name, restoring reference resolution for
// its objects.
func (s *ByValueSet) Unregister(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, module)
}

// Contains reports whether the module, or any enclosing package of it,
// is registered.
func (s *ByValueSet) Contains(module string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if _, ok := s.names[module]; ok {
			return true
		}
		dot := strings.LastIndex(module, ".")
		if dot < 0 {
			return false
		}
		module = module[:dot]
	}
}

// ---------------------------------------------------------------------------
// Reference resolver
// ---------------------------------------------------------------------------

// Decision is the resolver's verdict for one named object.
type Decision struct {
	ByRef    bool
	Module   string // owning module, set when ByRef
	Qualname string
}

// Resolver decides, per named object, whether the destination can be
// told to look the object up (reference encoding) or must be sent the
// object itself (value encoding). It holds no state of its own beyond
// the runtime and policy set it consults; the result reflects module
// state at call time, with no synchronization against concurrent module
// loads.
type Resolver struct {
	rt      *runtime.Runtime
	byValue *ByValueSet
}

// NewResolver creates a resolver over the given runtime and policy set.
func NewResolver(rt *runtime.Runtime, byValue *ByValueSet) *Resolver {
	return &Resolver{rt: rt, byValue: byValue}
}

// Decide resolves one object. Objects with no derivable name, objects
// owned by the entry context, objects in ad hoc modules, and objects
// under the by-value policy all come back as value encodings.
func (r *Resolver) Decide(v runtime.Value) Decision {
	module, qualname := namedEntity(v)
	if qualname == "" {
		return Decision{}
	}
	owner := r.owningModule(v, module, qualname)
	if owner == nil {
		return Decision{}
	}
	if owner == r.rt.Entry() {
		return Decision{}
	}
	if !owner.FileBacked() {
		return Decision{}
	}
	if r.byValue.Contains(owner.Name) {
		return Decision{}
	}
	return Decision{ByRef: true, Module: owner.Name, Qualname: qualname}
}

// DecideModule resolves a module object itself: by reference unless it
// is the entry context, ad hoc, or under the by-value policy.
func (r *Resolver) DecideModule(m *runtime.Module) Decision {
	if m == r.rt.Entry() || !m.FileBacked() || r.byValue.Contains(m.Name) {
		return Decision{}
	}
	return Decision{ByRef: true, Module: m.Name, Qualname: ""}
}

// namedEntity derives (module, qualified name) from an object's declared
// attributes. Empty qualname means the object is anonymous.
func namedEntity(v runtime.Value) (module, qualname string) {
	switch x := v.(type) {
	case *runtime.Function:
		return x.Module, x.Qualname
	case *runtime.Class:
		return x.Module, x.Qualname
	default:
		return "", ""
	}
}

// owningModule locates the module the object is reachable from. The
// declared module attribute is tried first and verified by identity;
// failing that, every loaded module is scanned for one whose lookup of
// qualname yields the very same object. Lookup errors from candidate
// modules are swallowed as non-matches so a broken module cannot fail
// unrelated serializations. The scan has no deterministic tie-break
// when several modules expose the same object; first match in
// registration order wins.
func (r *Resolver) owningModule(v runtime.Value, module, qualname string) *runtime.Module {
	if module != "" {
		if m := r.rt.Module(module); m != nil {
			if found, err := m.Lookup(qualname); err == nil && found == v {
				return m
			}
		}
	}
	for _, m := range r.rt.Modules() {
		found, err := m.Lookup(qualname)
		if err != nil {
			continue
		}
		if found == v {
			return m
		}
	}
	return nil
}
