package capsule

import (
	"fmt"
	"sort"

	"github.com/chazu/capsule/runtime"
	"github.com/chazu/capsule/wire"
)

// ---------------------------------------------------------------------------
// Dynamic class and enum reduction
// ---------------------------------------------------------------------------

// classReduce captures a dynamically defined class or enum by value. The
// constructor arguments carry only what the shell needs; the body rides
// in the state so methods closing over the class resolve through the
// backend's memo rather than recursing forever.
func (s *session) classReduce(cls *runtime.Class) (*wire.Reduce, error) {
	e := s.eng
	id := e.tracker.Track(cls)
	// Streams decoded in this same process dedup onto cls; its body is
	// already complete and must stay untouched.
	e.skeleton.MarkFilled(cls)

	var super runtime.Value = runtime.Nil
	if cls.Super != nil {
		super = cls.Super
	}

	fields := &runtime.Array{Items: make([]runtime.Value, len(cls.Fields))}
	for i, f := range cls.Fields {
		fields.Items[i] = runtime.StringValue(f)
	}

	names := make([]string, 0, len(cls.Methods))
	for name := range cls.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	methods := runtime.NewDict()
	for _, name := range names {
		methods.Set(name, cls.Methods[name])
	}

	state := runtime.NewDict()
	state.Set("fields", fields)
	state.Set("methods", methods)
	state.Set("attrs", classAttrs(cls))
	if cls.ClsKind == runtime.ClassEnum {
		members := &runtime.Array{Items: make([]runtime.Value, len(cls.Members))}
		for i, m := range cls.Members {
			members.Items[i] = runtime.NewArray(runtime.StringValue(m.Name), m.Value)
		}
		state.Set("members", members)
	}

	return &wire.Reduce{
		Ctor: ctorClassShell,
		Args: []runtime.Value{
			runtime.StringValue(cls.Name),
			runtime.StringValue(cls.Module),
			runtime.StringValue(cls.Qualname),
			runtime.IntValue(cls.ClsKind),
			super,
			runtime.StringValue(id),
		},
		State:    state,
		SetState: setClass,
	}, nil
}

// classAttrs returns the attrs to carry for a class. Enum members are
// attached as class attributes at member-construction time, so they are
// stripped here; the member list in the state is their only encoding,
// and fill re-attaches them through the same construction sequence.
func classAttrs(cls *runtime.Class) *runtime.Dict {
	if cls.ClsKind != runtime.ClassEnum {
		return cls.Attrs
	}
	attrs := runtime.NewDict()
	cls.Attrs.ForEach(func(name string, v runtime.Value) {
		if m, ok := v.(*runtime.EnumMember); ok && m.Owner == cls {
			return
		}
		attrs.Set(name, v)
	})
	return attrs
}

// makeClassShell is the class constructor: it hands the shape to the
// skeleton reconstructor, which either builds a fresh shell or dedups
// onto the class already registered under the tracking id.
func (e *Engine) makeClassShell(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("class shell", args, 6); err != nil {
		return nil, err
	}
	name, err := argString("class shell", args, 0)
	if err != nil {
		return nil, err
	}
	module, err := argString("class shell", args, 1)
	if err != nil {
		return nil, err
	}
	qualname, err := argString("class shell", args, 2)
	if err != nil {
		return nil, err
	}
	kind, err := argInt("class shell", args, 3)
	if err != nil {
		return nil, err
	}
	var super *runtime.Class
	if _, isNil := args[4].(runtime.NilValue); !isNil {
		super, _ = args[4].(*runtime.Class)
		if super == nil {
			return nil, fmt.Errorf("capsule: %w: superclass of %s is %s", ErrCorrupt, name, args[4].Kind())
		}
	}
	id, err := argString("class shell", args, 5)
	if err != nil {
		return nil, err
	}
	if kind != int64(runtime.ClassPlain) && kind != int64(runtime.ClassEnum) {
		return nil, fmt.Errorf("capsule: %w: unknown class kind %d for %s", ErrCorrupt, kind, name)
	}
	return e.skeleton.Begin(ClassShape{
		Name:       name,
		Module:     module,
		Qualname:   qualname,
		Kind:       runtime.ClassKind(kind),
		Super:      super,
		TrackingID: id,
	})
}

// fillClass applies a decoded body to a shell through the skeleton
// reconstructor, which skips classes already filled in this process.
func (e *Engine) fillClass(obj, state runtime.Value) error {
	cls, ok := obj.(*runtime.Class)
	if !ok {
		return fmt.Errorf("capsule: %w: class body applied to %s", ErrCorrupt, obj.Kind())
	}
	st, ok := state.(*runtime.Dict)
	if !ok {
		return fmt.Errorf("capsule: %w: class body of %s is %s, want dict", ErrCorrupt, cls.FullName(), state.Kind())
	}

	var body ClassBody
	if v, ok := st.Get("fields"); ok {
		arr, ok := v.(*runtime.Array)
		if !ok {
			return fmt.Errorf("capsule: %w: fields of %s is %s", ErrCorrupt, cls.FullName(), v.Kind())
		}
		for _, item := range arr.Items {
			name, ok := item.(runtime.StringValue)
			if !ok {
				return fmt.Errorf("capsule: %w: field name of %s is %s", ErrCorrupt, cls.FullName(), item.Kind())
			}
			body.Fields = append(body.Fields, string(name))
		}
	}
	if v, ok := st.Get("methods"); ok {
		body.Methods, ok = v.(*runtime.Dict)
		if !ok {
			return fmt.Errorf("capsule: %w: methods of %s is %s", ErrCorrupt, cls.FullName(), v.Kind())
		}
	}
	if v, ok := st.Get("attrs"); ok {
		body.Attrs, ok = v.(*runtime.Dict)
		if !ok {
			return fmt.Errorf("capsule: %w: attrs of %s is %s", ErrCorrupt, cls.FullName(), v.Kind())
		}
	}
	if v, ok := st.Get("members"); ok {
		body.Members, ok = v.(*runtime.Array)
		if !ok {
			return fmt.Errorf("capsule: %w: members of %s is %s", ErrCorrupt, cls.FullName(), v.Kind())
		}
	}
	return e.skeleton.Commit(cls, body)
}
