package runtime

import "fmt"

// ---------------------------------------------------------------------------
// Class: runtime-defined class representation
// ---------------------------------------------------------------------------

// ClassKind discriminates the closed set of type-of-types shapes the
// runtime supports. Dispatch over classes branches on this tag, never on
// exact Go types.
type ClassKind uint8

const (
	ClassPlain ClassKind = iota
	ClassEnum
)

// String implements the Stringer interface.
func (ck ClassKind) String() string {
	switch ck {
	case ClassPlain:
		return "class"
	case ClassEnum:
		return "enum"
	}
	return "unknown"
}

// Class represents a class defined at runtime. Classes created by loading
// a module are reachable as module attributes; classes defined inside
// function bodies or at the entry prompt are not, and must be serialized
// by value.
type Class struct {
	Name     string    // class name
	Module   string    // defining module name ("main" for entry-defined)
	Qualname string    // qualified name within the module (e.g. "outer.C")
	ClsKind  ClassKind // plain class or enumeration
	Super    *Class    // parent class (nil for root)

	// Body
	Fields  []string             // instance field names, in slot order
	Methods map[string]*Function // method table
	Attrs   *Dict                // class-level attributes

	// Enum members, in declaration order (ClassEnum only)
	Members []*EnumMember
}

// NewClass creates a class with an empty body.
func NewClass(name, module string, super *Class) *Class {
	return &Class{
		Name:     name,
		Module:   module,
		Qualname: name,
		Super:    super,
		Methods:  make(map[string]*Function),
		Attrs:    NewDict(),
	}
}

// NewEnum creates an enumeration class with no members.
func NewEnum(name, module string) *Class {
	c := NewClass(name, module, nil)
	c.ClsKind = ClassEnum
	return c
}

// Kind implements Value.
func (*Class) Kind() Kind { return KindClass }

// FullName returns module.qualname.
func (c *Class) FullName() string {
	if c.Module == "" {
		return c.Qualname
	}
	return c.Module + "." + c.Qualname
}

// String implements the Stringer interface.
func (c *Class) String() string { return c.FullName() }

// FieldIndex returns the slot index for a field name, searching the
// superclass chain. Returns -1 if not found.
func (c *Class) FieldIndex(name string) int {
	offset := 0
	if c.Super != nil {
		if idx := c.Super.FieldIndex(name); idx >= 0 {
			return idx
		}
		offset = c.Super.NumSlots()
	}
	for i, n := range c.Fields {
		if n == name {
			return offset + i
		}
	}
	return -1
}

// NumSlots returns the total number of instance slots, including
// inherited fields.
func (c *Class) NumSlots() int {
	n := len(c.Fields)
	if c.Super != nil {
		n += c.Super.NumSlots()
	}
	return n
}

// AllFieldNames returns all field names including inherited ones, in
// slot order.
func (c *Class) AllFieldNames() []string {
	if c.Super == nil {
		return c.Fields
	}
	inherited := c.Super.AllFieldNames()
	out := make([]string, 0, len(inherited)+len(c.Fields))
	out = append(out, inherited...)
	out = append(out, c.Fields...)
	return out
}

// IsSubclassOf returns true if c is other or a subclass of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// LookupMethod finds a method by name, searching the superclass chain.
func (c *Class) LookupMethod(name string) *Function {
	for cur := c; cur != nil; cur = cur.Super {
		if m, ok := cur.Methods[name]; ok {
			return m
		}
	}
	return nil
}

// AddMethod registers a method on this class.
func (c *Class) AddMethod(name string, fn *Function) {
	c.Methods[name] = fn
}

// NewInstance creates an instance with all slots nil.
func (c *Class) NewInstance() *Object {
	slots := make([]Value, c.NumSlots())
	for i := range slots {
		slots[i] = Nil
	}
	return &Object{Class: c, Slots: slots}
}

// ---------------------------------------------------------------------------
// Enum members
// ---------------------------------------------------------------------------

// EnumMember is a single named constant of an enumeration class. Members
// are singletons: within one process there is exactly one member value per
// (enum, name) pair.
type EnumMember struct {
	Owner *Class // the enumeration class
	Name  string
	Value Value
}

// Kind implements Value.
func (*EnumMember) Kind() Kind { return KindEnumMember }

// String implements the Stringer interface.
func (m *EnumMember) String() string {
	return m.Owner.Name + "." + m.Name
}

// AddMember binds a (name, value) pair as a member of an enumeration and
// attaches it as a class attribute. This is the only way members are
// created; generic attribute assignment must not be used for them.
// Returns an error if c is not an enumeration or the name is taken.
func (c *Class) AddMember(name string, value Value) (*EnumMember, error) {
	if c.ClsKind != ClassEnum {
		return nil, fmt.Errorf("runtime: %s is not an enumeration", c.FullName())
	}
	if _, ok := c.Attrs.Get(name); ok {
		return nil, fmt.Errorf("runtime: enum %s already has member %q", c.FullName(), name)
	}
	m := &EnumMember{Owner: c, Name: name, Value: value}
	c.Members = append(c.Members, m)
	c.Attrs.Set(name, m)
	return m, nil
}

// Member returns the member with the given name, or nil.
func (c *Class) Member(name string) *EnumMember {
	for _, m := range c.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Object: class instance
// ---------------------------------------------------------------------------

// Object is a heap-allocated instance of a runtime-defined class. Fields
// live in slots ordered by the class's field declaration order (inherited
// fields first).
type Object struct {
	Class *Class
	Slots []Value
}

// Kind implements Value.
func (*Object) Kind() Kind { return KindObject }

// GetField returns the named field's value.
func (o *Object) GetField(name string) (Value, bool) {
	idx := o.Class.FieldIndex(name)
	if idx < 0 || idx >= len(o.Slots) {
		return Nil, false
	}
	return o.Slots[idx], true
}

// SetField stores the named field's value. Returns false if the class
// declares no such field.
func (o *Object) SetField(name string, v Value) bool {
	idx := o.Class.FieldIndex(name)
	if idx < 0 || idx >= len(o.Slots) {
		return false
	}
	o.Slots[idx] = v
	return true
}

// ---------------------------------------------------------------------------
// Bound methods
// ---------------------------------------------------------------------------

// BoundMethod pairs a receiver with a method retrieved from its class.
// It serializes as "attribute lookup on the instance", never by value,
// so the method body is carried once with the class.
type BoundMethod struct {
	Recv Value  // receiver (instance or class)
	Name string // method name on the receiver's class
	Fn   *Function
}

// Kind implements Value.
func (*BoundMethod) Kind() Kind { return KindBoundMethod }

// Bind retrieves the named method from o's class and binds it to o.
// Returns nil if the class chain defines no such method.
func (o *Object) Bind(name string) *BoundMethod {
	fn := o.Class.LookupMethod(name)
	if fn == nil {
		return nil
	}
	return &BoundMethod{Recv: o, Name: name, Fn: fn}
}
