package capsule

import (
	goruntime "runtime"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/chazu/capsule/runtime"
)

// Tracker is the weak two-way registry pairing dynamically defined
// classes with stable tracking ids. The forward and inverse maps are
// both weak: neither side keeps a class alive, and collection of a class
// drops the pair from both. The id travels with every value-encoded
// class so repeated occurrences of "the same" dynamic type collapse to
// one object in the destination process.
type Tracker struct {
	mu      sync.Mutex
	byClass map[weak.Pointer[runtime.Class]]string
	byID    map[string]weak.Pointer[runtime.Class]
}

// NewTracker creates an empty registry. Registries are per engine, never
// shared across processes; teardown is process lifetime.
func NewTracker() *Tracker {
	return &Tracker{
		byClass: make(map[weak.Pointer[runtime.Class]]string),
		byID:    make(map[string]weak.Pointer[runtime.Class]),
	}
}

// Track returns the class's tracking id, allocating one on first sight.
// The whole check-or-insert runs under the lock.
func (t *Tracker) Track(cls *runtime.Class) string {
	key := weak.Make(cls)

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byClass[key]; ok {
		return id
	}
	id := uuid.NewString()
	t.insert(key, id, cls)
	return id
}

// Adopt registers a class under an id carried in from another process.
// Used on the reconstruction side so later serializations of the rebuilt
// class reuse the same id.
func (t *Tracker) Adopt(cls *runtime.Class, id string) {
	key := weak.Make(cls)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byClass[key]; ok {
		return
	}
	t.insert(key, id, cls)
}

// Lookup returns the live class registered under an id, or nil.
func (t *Tracker) Lookup(id string) *runtime.Class {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.byID[id]
	if !ok {
		return nil
	}
	cls := key.Value()
	if cls == nil {
		// The class died between its cleanup scheduling and now.
		delete(t.byID, id)
		delete(t.byClass, key)
		return nil
	}
	return cls
}

func (t *Tracker) insert(key weak.Pointer[runtime.Class], id string, cls *runtime.Class) {
	t.byClass[key] = id
	t.byID[id] = key
	goruntime.AddCleanup(cls, func(k weak.Pointer[runtime.Class]) {
		t.mu.Lock()
		if id, ok := t.byClass[k]; ok {
			delete(t.byClass, k)
			delete(t.byID, id)
		}
		t.mu.Unlock()
	}, key)
}
