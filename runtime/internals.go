package runtime

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"weak"
)

// Runtime-internal value types: streams, weak containers, logger
// singletons. These have hand-written serialization strategies; they are
// never encoded through the generic object path.

// ---------------------------------------------------------------------------
// Stream: buffered character stream
// ---------------------------------------------------------------------------

// StreamMode selects a stream's direction.
type StreamMode uint8

const (
	StreamRead StreamMode = iota
	StreamWrite
)

// String implements the Stringer interface.
func (m StreamMode) String() string {
	if m == StreamRead {
		return "read"
	}
	return "write"
}

// Stream is an in-memory character stream. Read streams are captured for
// transmission by their remaining content; write streams cannot be
// meaningfully reconstructed elsewhere and are refused by the serializer.
type Stream struct {
	Mode StreamMode
	buf  strings.Builder
	rd   *strings.Reader
}

// NewReadStream creates a read-mode stream over the given content.
func NewReadStream(content string) *Stream {
	return &Stream{Mode: StreamRead, rd: strings.NewReader(content)}
}

// NewWriteStream creates an empty write-mode stream.
func NewWriteStream() *Stream {
	return &Stream{Mode: StreamWrite}
}

// Kind implements Value.
func (*Stream) Kind() Kind { return KindStream }

// Read consumes up to len(p) bytes from a read stream.
func (s *Stream) Read(p []byte) (int, error) {
	if s.Mode != StreamRead {
		return 0, fmt.Errorf("runtime: stream not open for reading")
	}
	return s.rd.Read(p)
}

// ReadAll consumes and returns the remaining content of a read stream.
func (s *Stream) ReadAll() (string, error) {
	if s.Mode != StreamRead {
		return "", fmt.Errorf("runtime: stream not open for reading")
	}
	b, err := io.ReadAll(s.rd)
	return string(b), err
}

// Remaining returns the unread content of a read stream without
// consuming it.
func (s *Stream) Remaining() string {
	if s.Mode != StreamRead || s.rd == nil {
		return ""
	}
	pos, _ := s.rd.Seek(0, io.SeekCurrent)
	rest := make([]byte, s.rd.Len())
	_, _ = s.rd.Read(rest)
	_, _ = s.rd.Seek(pos, io.SeekStart)
	return string(rest)
}

// WriteString appends to a write stream.
func (s *Stream) WriteString(str string) (int, error) {
	if s.Mode != StreamWrite {
		return 0, fmt.Errorf("runtime: stream not open for writing")
	}
	return s.buf.WriteString(str)
}

// Contents returns everything written to a write stream.
func (s *Stream) Contents() string { return s.buf.String() }

// ---------------------------------------------------------------------------
// WeakSet: weak container of objects
// ---------------------------------------------------------------------------

// WeakSet holds objects without keeping them alive. Serialization captures
// the members still live at capture time; the reconstructed set holds them
// strongly until re-added to weak storage on the other side.
type WeakSet struct {
	mu      sync.Mutex
	members []weak.Pointer[Object]
}

// NewWeakSet creates an empty weak set.
func NewWeakSet() *WeakSet {
	return &WeakSet{}
}

// Kind implements Value.
func (*WeakSet) Kind() Kind { return KindWeakSet }

// Add inserts an object.
func (ws *WeakSet) Add(o *Object) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, wp := range ws.members {
		if wp.Value() == o {
			return
		}
	}
	ws.members = append(ws.members, weak.Make(o))
}

// Alive returns the members that have not been collected.
func (ws *WeakSet) Alive() []*Object {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var out []*Object
	compact := ws.members[:0]
	for _, wp := range ws.members {
		if o := wp.Value(); o != nil {
			out = append(out, o)
			compact = append(compact, wp)
		}
	}
	ws.members = compact
	return out
}

// ---------------------------------------------------------------------------
// Logger: per-runtime named singleton
// ---------------------------------------------------------------------------

// Logger is a named diagnostic channel. Loggers are process-wide
// singletons within their runtime: fetching the same name twice yields the
// same object, and a logger travels across processes as its name alone.
type Logger struct {
	Name  string
	Level int
}

// Kind implements Value.
func (*Logger) Kind() Kind { return KindLogger }

// Logger returns the singleton logger with the given name, creating it on
// first use.
func (rt *Runtime) Logger(name string) *Logger {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if lg, ok := rt.loggers[name]; ok {
		return lg
	}
	lg := &Logger{Name: name}
	rt.loggers[name] = lg
	return lg
}
