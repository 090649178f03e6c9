package capsule

import (
	goruntime "runtime"
	"sort"
	"strings"
	"sync"
	"weak"

	"github.com/chazu/capsule/runtime"
)

// Extractor is the static analyzer behind function capture: it scans a
// compiled unit's instruction stream for the global names the unit
// reads, writes, or deletes, recursing into nested sub-units held in the
// literal pool. Results are memoized per unit under weak keys, so the
// cache never extends a code unit's lifetime; the lock covers each
// check-or-insert, not whole calls.
type Extractor struct {
	rt   *runtime.Runtime
	mu   sync.Mutex
	memo map[weak.Pointer[runtime.CodeUnit]][]string
}

// NewExtractor creates an extractor over the given runtime.
func NewExtractor(rt *runtime.Runtime) *Extractor {
	return &Extractor{
		rt:   rt,
		memo: make(map[weak.Pointer[runtime.CodeUnit]][]string),
	}
}

// Extract returns the sorted set of global names the unit depends on.
// Units are immutable once compiled, so the memoized result stays valid
// for the unit's lifetime.
func (e *Extractor) Extract(unit *runtime.CodeUnit) []string {
	key := weak.Make(unit)

	e.mu.Lock()
	if names, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return names
	}
	e.mu.Unlock()

	set := make(map[string]struct{})
	scanUnit(unit, set)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	e.mu.Lock()
	if _, ok := e.memo[key]; !ok {
		e.memo[key] = names
		goruntime.AddCleanup(unit, func(k weak.Pointer[runtime.CodeUnit]) {
			e.mu.Lock()
			delete(e.memo, k)
			e.mu.Unlock()
		}, key)
	}
	e.mu.Unlock()
	return names
}

// scanUnit is a single pass over one instruction stream. Only the three
// global-access opcodes contribute; everything else is skipped by its
// declared operand width.
func scanUnit(unit *runtime.CodeUnit, set map[string]struct{}) {
	r := runtime.NewCodeReader(unit.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		switch op {
		case runtime.OpLoadGlobal, runtime.OpStoreGlobal, runtime.OpDeleteGlobal:
			set[unit.NameAt(int(r.ReadUint16()))] = struct{}{}
		default:
			r.Skip(op.OperandBytes())
		}
	}
	for _, nested := range unit.Units {
		scanUnit(nested, set)
	}
	for _, lit := range unit.Literals {
		if nested, ok := lit.(*runtime.CodeUnit); ok {
			scanUnit(nested, set)
		}
	}
}

// ImportedSubmodules detects submodules a unit uses without binding them
// as globals. Loading pkg.sub binds only pkg in the user's namespace, so
// a body doing pkg.sub.X never names sub in its global set; the
// destination must still import it. A loaded module qualifies when its
// dotted path roots at one of the unit's globals and attribute traversal
// from that root reaches the module itself. Traversal errors disqualify
// the candidate, nothing more.
func (e *Extractor) ImportedSubmodules(unit *runtime.CodeUnit) []string {
	globals := make(map[string]struct{})
	for _, name := range e.Extract(unit) {
		globals[name] = struct{}{}
	}

	var subs []string
	for _, m := range e.rt.Modules() {
		root, rest, ok := splitModulePath(m.Name)
		if !ok {
			continue
		}
		if _, used := globals[root]; !used {
			continue
		}
		parent := e.rt.Module(root)
		if parent == nil {
			continue
		}
		if reached, err := parent.Lookup(rest); err == nil && reached == runtime.Value(m) {
			subs = append(subs, m.Name)
		}
	}
	sort.Strings(subs)
	return subs
}

func splitModulePath(name string) (root, rest string, ok bool) {
	dot := strings.Index(name, ".")
	if dot < 0 {
		return "", "", false
	}
	return name[:dot], name[dot+1:], true
}
