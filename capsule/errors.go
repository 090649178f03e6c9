package capsule

import (
	"errors"

	"github.com/chazu/capsule/wire"
)

// ErrRefused marks objects the engine refuses to serialize outright:
// write-mode streams and coroutine functions. Refusal is a hard failure
// with no partial output.
var ErrRefused = errors.New("refused by policy")

// ErrCorrupt is the backend's load-time failure marker, re-exported so
// callers can test for it without importing wire.
var ErrCorrupt = wire.ErrCorrupt

// UnsupportedError is the backend's no-strategy failure, re-exported.
type UnsupportedError = wire.UnsupportedError
