package capsule

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/capsule/runtime"
	"github.com/chazu/capsule/wire"
)

// Engine is the object-reduction engine: it composes the reference
// resolver, the global-binding extractor, the identity tracker, the
// skeleton reconstructor, and the per-type strategy table over one
// runtime. Engines are independent; two engines over different runtimes
// share nothing, which is also what keeps them testable.
type Engine struct {
	rt        *runtime.Runtime
	byValue   *ByValueSet
	resolver  *Resolver
	extractor *Extractor
	tracker   *Tracker
	skeleton  *Skeleton
	registry  *wire.Registry
	log       commonlog.Logger
}

// NewEngine creates an engine over the given runtime with an empty
// by-value policy set and an empty tracking registry.
func NewEngine(rt *runtime.Runtime) *Engine {
	byValue := NewByValueSet()
	tracker := NewTracker()
	e := &Engine{
		rt:        rt,
		byValue:   byValue,
		resolver:  NewResolver(rt, byValue),
		extractor: NewExtractor(rt),
		tracker:   tracker,
		skeleton:  NewSkeleton(tracker),
		registry:  wire.NewRegistry(),
		log:       commonlog.GetLogger("capsule.engine"),
	}
	e.registerStrategies()
	return e
}

// Runtime returns the runtime this engine serializes for.
func (e *Engine) Runtime() *runtime.Runtime { return e.rt }

// RegisterByValue forces value encoding for every object resolving to
// the named module. Registering twice is the same as registering once.
func (e *Engine) RegisterByValue(module string) {
	e.byValue.Register(module)
}

// UnregisterByValue restores reference resolution for the module.
func (e *Engine) UnregisterByValue(module string) {
	e.byValue.Unregister(module)
}

// Dump serializes one value into a self-contained capsule. Each call is
// one session: functions captured from the same namespace within a call
// share a reconstructed namespace, and repeated dynamic types collapse
// onto one tracking id.
func (e *Engine) Dump(v runtime.Value) ([]byte, error) {
	s := &session{
		eng:        e,
		globalsRef: make(map[*runtime.Dict]*runtime.Dict),
	}
	data, err := wire.Dump(e.registry, s, v)
	if err != nil {
		e.log.Errorf("dump failed: %s", err.Error())
		return nil, err
	}
	e.log.Debugf("dumped %s capsule (%d bytes)", v.Kind().String(), len(data))
	return data, nil
}

// Load reconstructs a capsule produced by Dump, here or in another
// process of the same build.
func (e *Engine) Load(data []byte) (runtime.Value, error) {
	v, err := wire.Load(e.registry, data)
	if err != nil {
		e.log.Errorf("load failed: %s", err.Error())
		return nil, err
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Dispatch override hook
// ---------------------------------------------------------------------------

// session is one Dump call's view of the engine. It carries the state
// that must not leak between calls: the map from source namespaces to
// their on-wire stand-ins.
type session struct {
	eng        *Engine
	globalsRef map[*runtime.Dict]*runtime.Dict
}

// ReduceOverride routes classes and functions before any per-kind table
// lookup: reference encoding when the resolver can name a stable home,
// value capture otherwise. Everything else is declined, falling through
// to the strategy table and the backend's built-in handling of plain
// data.
func (s *session) ReduceOverride(v runtime.Value) (*wire.Reduce, bool, error) {
	switch x := v.(type) {
	case *runtime.Class:
		if d := s.eng.resolver.Decide(x); d.ByRef {
			r, err := lookupReduce(d)
			return r, true, err
		}
		r, err := s.classReduce(x)
		return r, true, err
	case *runtime.Function:
		if x.Coroutine {
			return nil, false, fmt.Errorf("capsule: %w: coroutine function %s", ErrRefused, x.FullName())
		}
		if d := s.eng.resolver.Decide(x); d.ByRef {
			r, err := lookupReduce(d)
			return r, true, err
		}
		r, err := s.functionReduce(x)
		return r, true, err
	default:
		return nil, false, nil
	}
}

func lookupReduce(d Decision) (*wire.Reduce, error) {
	return &wire.Reduce{
		Ctor: ctorLookup,
		Args: []runtime.Value{
			runtime.StringValue(d.Module),
			runtime.StringValue(d.Qualname),
		},
	}, nil
}

// lookupByReference resolves a reference-encoded object: the module must
// be loaded here and the path must lead somewhere.
func (e *Engine) lookupByReference(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("reference", args, 2); err != nil {
		return nil, err
	}
	module, err := argString("reference", args, 0)
	if err != nil {
		return nil, err
	}
	qualname, err := argString("reference", args, 1)
	if err != nil {
		return nil, err
	}
	m := e.rt.Module(module)
	if m == nil {
		return nil, fmt.Errorf("capsule: %w: module %s is not loaded here", ErrCorrupt, module)
	}
	v, err := m.Lookup(qualname)
	if err != nil {
		return nil, fmt.Errorf("capsule: %w: %s.%s: %v", ErrCorrupt, module, qualname, err)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Constructor argument checks
// ---------------------------------------------------------------------------

func argCount(what string, args []runtime.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("capsule: %w: %s takes %d args, got %d", ErrCorrupt, what, n, len(args))
	}
	return nil
}

func argString(what string, args []runtime.Value, i int) (string, error) {
	s, ok := args[i].(runtime.StringValue)
	if !ok {
		return "", fmt.Errorf("capsule: %w: %s arg %d is %s, want string", ErrCorrupt, what, i, args[i].Kind())
	}
	return string(s), nil
}

func argInt(what string, args []runtime.Value, i int) (int64, error) {
	n, ok := args[i].(runtime.IntValue)
	if !ok {
		return 0, fmt.Errorf("capsule: %w: %s arg %d is %s, want int", ErrCorrupt, what, i, args[i].Kind())
	}
	return int64(n), nil
}

func argArray(what string, args []runtime.Value, i int) (*runtime.Array, error) {
	a, ok := args[i].(*runtime.Array)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: %s arg %d is %s, want array", ErrCorrupt, what, i, args[i].Kind())
	}
	return a, nil
}

func argStrings(what string, args []runtime.Value, i int) ([]string, error) {
	a, err := argArray(what, args, i)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(a.Items))
	for j, item := range a.Items {
		s, ok := item.(runtime.StringValue)
		if !ok {
			return nil, fmt.Errorf("capsule: %w: %s arg %d element %d is %s, want string", ErrCorrupt, what, i, j, item.Kind())
		}
		out[j] = string(s)
	}
	return out, nil
}
