package runtime

// ---------------------------------------------------------------------------
// Dict: insertion-ordered string-keyed mapping
// ---------------------------------------------------------------------------

// Dict is a mutable string-keyed mapping that preserves insertion order.
// It doubles as the namespace type: module bindings and function globals
// are dicts shared by identity, so mutating a module binding is visible to
// every function whose globals point at that module.
type Dict struct {
	keys  []string
	items map[string]Value
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{items: make(map[string]Value)}
}

// Kind implements Value.
func (*Dict) Kind() Kind { return KindDict }

// Get returns the value for key and whether it is present.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.items[key]
	return v, ok
}

// Set stores value under key, appending the key if new.
func (d *Dict) Set(key string, value Value) {
	if _, ok := d.items[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.items[key] = value
}

// Delete removes key. Returns true if the key was present.
func (d *Dict) Delete(key string) bool {
	if _, ok := d.items[key]; !ok {
		return false
	}
	delete(d.items, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes all entries.
func (d *Dict) Clear() {
	d.keys = d.keys[:0]
	for k := range d.items {
		delete(d.items, k)
	}
}

// Keys returns the keys in insertion order. The slice is a copy.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.items) }

// ForEach calls fn for each entry in insertion order.
func (d *Dict) ForEach(fn func(key string, value Value)) {
	for _, k := range d.keys {
		fn(k, d.items[k])
	}
}

// Update copies every entry of src into d, preserving src's order for
// keys new to d.
func (d *Dict) Update(src *Dict) {
	src.ForEach(func(k string, v Value) {
		d.Set(k, v)
	})
}

// ---------------------------------------------------------------------------
// DictView: live key/value/item views over a dict
// ---------------------------------------------------------------------------

// ViewKind selects which aspect of a dict a view exposes.
type ViewKind uint8

const (
	ViewKeys ViewKind = iota
	ViewValues
	ViewItems
)

// String implements the Stringer interface.
func (vk ViewKind) String() string {
	switch vk {
	case ViewKeys:
		return "keys"
	case ViewValues:
		return "values"
	case ViewItems:
		return "items"
	}
	return "unknown"
}

// DictView is a live view over a dict's keys, values, or items. Views are
// runtime-internal: user code obtains them from dict operations and the
// serializer must capture them as (view kind, snapshot of the source dict).
type DictView struct {
	View ViewKind
	Src  *Dict
}

// Kind implements Value.
func (*DictView) Kind() Kind { return KindDictView }

// Materialize returns the view contents as an array, in dict order.
// Item views yield two-element arrays.
func (dv *DictView) Materialize() *Array {
	out := &Array{}
	dv.Src.ForEach(func(k string, v Value) {
		switch dv.View {
		case ViewKeys:
			out.Items = append(out.Items, StringValue(k))
		case ViewValues:
			out.Items = append(out.Items, v)
		case ViewItems:
			out.Items = append(out.Items, NewArray(StringValue(k), v))
		}
	})
	return out
}
