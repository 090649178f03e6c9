package capsule

import (
	"fmt"
	goruntime "runtime"
	"sync"
	"weak"

	"github.com/chazu/capsule/runtime"
)

// ---------------------------------------------------------------------------
// Two-phase class reconstruction
// ---------------------------------------------------------------------------

// ClassShape is everything a body-less shell needs: identity, kind,
// superclass, and the tracking id carried over the wire.
type ClassShape struct {
	Name       string
	Module     string
	Qualname   string
	Kind       runtime.ClassKind
	Super      *runtime.Class
	TrackingID string
}

// ClassBody is the second phase's payload, applied to the shell in
// place.
type ClassBody struct {
	Fields  []string
	Methods *runtime.Dict // name → function
	Attrs   *runtime.Dict
	Members *runtime.Array // enum (name, value) pairs in declaration order
}

// Skeleton rebuilds dynamic classes in two phases. Begin produces a
// referenceable shell and registers it under its tracking id before any
// body content is decoded; methods may close over the class itself, a
// cycle only resolvable once the incomplete object exists. Commit
// mutates the shell's body in place. When the id is already registered
// here, Begin returns the existing class and Commit becomes a no-op, so
// repeated occurrences of one dynamic type share one object.
type Skeleton struct {
	tracker *Tracker

	mu     sync.Mutex
	filled map[weak.Pointer[runtime.Class]]struct{}
}

// NewSkeleton creates a reconstructor over the given tracker.
func NewSkeleton(tracker *Tracker) *Skeleton {
	return &Skeleton{
		tracker: tracker,
		filled:  make(map[weak.Pointer[runtime.Class]]struct{}),
	}
}

// Begin returns the shell for a shape: the already-registered class when
// the tracking id is known, a fresh body-less one otherwise. An id
// registered to an incompatible shape is a load-time hard failure.
func (s *Skeleton) Begin(shape ClassShape) (*runtime.Class, error) {
	if existing := s.tracker.Lookup(shape.TrackingID); existing != nil {
		if existing.ClsKind != shape.Kind || existing.Name != shape.Name {
			return nil, fmt.Errorf("capsule: %w: tracking id %s is %s %s, incoming shape is %s %s",
				ErrCorrupt, shape.TrackingID, existing.ClsKind, existing.FullName(), shape.Kind, shape.Name)
		}
		return existing, nil
	}

	cls := runtime.NewClass(shape.Name, shape.Module, shape.Super)
	cls.Qualname = shape.Qualname
	cls.ClsKind = shape.Kind
	s.tracker.Adopt(cls, shape.TrackingID)
	return cls, nil
}

// Commit fills a shell's body. A class already filled in this process
// keeps its body untouched.
func (s *Skeleton) Commit(cls *runtime.Class, body ClassBody) error {
	key := weak.Make(cls)

	s.mu.Lock()
	if _, done := s.filled[key]; done {
		s.mu.Unlock()
		return nil
	}
	s.filled[key] = struct{}{}
	goruntime.AddCleanup(cls, func(k weak.Pointer[runtime.Class]) {
		s.mu.Lock()
		delete(s.filled, k)
		s.mu.Unlock()
	}, key)
	s.mu.Unlock()

	cls.Fields = append(cls.Fields[:0], body.Fields...)
	if body.Methods != nil {
		var fillErr error
		body.Methods.ForEach(func(name string, v runtime.Value) {
			fn, ok := v.(*runtime.Function)
			if !ok {
				fillErr = fmt.Errorf("capsule: %w: method %s of %s is %s", ErrCorrupt, name, cls.FullName(), v.Kind())
				return
			}
			cls.AddMethod(name, fn)
		})
		if fillErr != nil {
			return fillErr
		}
	}
	if body.Attrs != nil {
		cls.Attrs.Update(body.Attrs)
	}
	if body.Members != nil {
		if cls.ClsKind != runtime.ClassEnum {
			return fmt.Errorf("capsule: %w: members on non-enum %s", ErrCorrupt, cls.FullName())
		}
		for _, item := range body.Members.Items {
			pair, ok := item.(*runtime.Array)
			if !ok || pair.Len() != 2 {
				return fmt.Errorf("capsule: %w: malformed enum member in %s", ErrCorrupt, cls.FullName())
			}
			name, ok := pair.Items[0].(runtime.StringValue)
			if !ok {
				return fmt.Errorf("capsule: %w: enum member name in %s is %s", ErrCorrupt, cls.FullName(), pair.Items[0].Kind())
			}
			if _, err := cls.AddMember(string(name), pair.Items[1]); err != nil {
				return fmt.Errorf("capsule: fill %s: %w", cls.FullName(), err)
			}
		}
	}
	return nil
}

// MarkFilled records a locally defined class as complete, so decoding a
// stream that dedups onto it never rewrites its body.
func (s *Skeleton) MarkFilled(cls *runtime.Class) {
	key := weak.Make(cls)
	s.mu.Lock()
	if _, done := s.filled[key]; !done {
		s.filled[key] = struct{}{}
		goruntime.AddCleanup(cls, func(k weak.Pointer[runtime.Class]) {
			s.mu.Lock()
			delete(s.filled, k)
			s.mu.Unlock()
		}, key)
	}
	s.mu.Unlock()
}
