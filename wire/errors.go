package wire

import (
	"errors"
	"fmt"

	"github.com/chazu/capsule/runtime"
)

// ErrCorrupt marks documents that cannot be decoded: bad framing, node
// references out of range, unknown constructor or restore names, or a
// cycle that threads through constructor arguments.
var ErrCorrupt = errors.New("corrupt capsule")

// UnsupportedError reports an object no strategy volunteered for. It
// names the offending value so callers can see what leaked into the
// graph.
type UnsupportedError struct {
	Value runtime.Value
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("wire: cannot serialize %s value %s", e.Value.Kind(), describe(e.Value))
}

func describe(v runtime.Value) string {
	switch x := v.(type) {
	case *runtime.Function:
		return x.Qualname
	case *runtime.NativeFunction:
		return x.Name
	case *runtime.Class:
		return x.FullName()
	case *runtime.Module:
		return x.Name
	case *runtime.Logger:
		return x.Name
	default:
		return fmt.Sprintf("%T", v)
	}
}
