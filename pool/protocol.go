package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/capsule/capsule"
	"github.com/chazu/capsule/runtime"
	"github.com/chazu/capsule/store"
)

// ---------------------------------------------------------------------------
// Length-prefixed frames
// ---------------------------------------------------------------------------

// ErrFrameTooLarge indicates an incoming frame exceeds the configured
// limit.
var ErrFrameTooLarge = errors.New("pool: frame too large")

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(payload)))
	if _, err := w.Write(head[:]); err != nil {
		return fmt.Errorf("pool: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("pool: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, refusing frames above max
// bytes.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if int(size) > max {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, size, max)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("pool: read frame payload: %w", err)
	}
	return payload, nil
}

// ---------------------------------------------------------------------------
// Job protocol
// ---------------------------------------------------------------------------

// Job is one unit of work sent to a worker: a function capsule plus
// argument capsules, each produced by an engine Dump on the coordinator
// side. A coordinator that knows the worker has cached the function may
// send FnHash alone and omit the bytes.
type Job struct {
	ID     uint64   `cbor:"id"`
	Fn     []byte   `cbor:"fn,omitempty"`
	FnHash []byte   `cbor:"fnhash,omitempty"`
	Args   [][]byte `cbor:"args,omitempty"`
}

// Result is the worker's reply: the return value as a capsule, or the
// error text.
type Result struct {
	ID    uint64 `cbor:"id"`
	Value []byte `cbor:"value,omitempty"`
	Error string `cbor:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// Executor runs the worker side of the job protocol: read a job frame,
// reconstruct function and arguments, call, encode the result, write a
// result frame. All engine access goes through the Worker goroutine.
type Executor struct {
	worker   *Worker
	cache    *store.DB // optional persistent capsule cache
	maxFrame int
	log      commonlog.Logger
}

// NewExecutor creates an executor over a fresh worker for the engine.
// cache may be nil, disabling hash-only jobs.
func NewExecutor(eng *capsule.Engine, cfg *Config, cache *store.DB) *Executor {
	return &Executor{
		worker:   NewWorker(eng),
		cache:    cache,
		maxFrame: cfg.Pool.MaxFrame,
		log:      commonlog.GetLogger("capsule.pool"),
	}
}

// Serve processes jobs from r until it is exhausted, writing results to
// w. A job that fails produces an error result, not a dead worker; only
// transport errors end the loop.
func (x *Executor) Serve(r io.Reader, w io.Writer) error {
	defer x.worker.Stop()
	for {
		payload, err := ReadFrame(r, x.maxFrame)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var job Job
		if err := cbor.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("pool: decode job: %w", err)
		}

		result := x.run(&job)
		out, err := cbor.Marshal(&result)
		if err != nil {
			return fmt.Errorf("pool: encode result: %w", err)
		}
		if err := WriteFrame(w, out); err != nil {
			return err
		}
	}
}

// run executes one job on the worker goroutine. The result is encoded
// there too, so nothing touches runtime state off the worker.
func (x *Executor) run(job *Job) Result {
	fn, err := x.resolveFn(job)
	if err != nil {
		x.log.Errorf("job %d failed: %s", job.ID, err.Error())
		return Result{ID: job.ID, Error: err.Error()}
	}

	var encoded []byte
	_, err = x.worker.Do(func(eng *capsule.Engine) (runtime.Value, error) {
		fv, err := eng.Load(fn)
		if err != nil {
			return nil, err
		}
		args := make([]runtime.Value, len(job.Args))
		for i, raw := range job.Args {
			if args[i], err = eng.Load(raw); err != nil {
				return nil, err
			}
		}
		value, err := eng.Runtime().Call(fv, args...)
		if err != nil {
			return nil, err
		}
		encoded, err = eng.Dump(value)
		return value, err
	})
	if err != nil {
		x.log.Errorf("job %d failed: %s", job.ID, err.Error())
		return Result{ID: job.ID, Error: err.Error()}
	}
	x.log.Debugf("job %d done (%d result bytes)", job.ID, len(encoded))
	return Result{ID: job.ID, Value: encoded}
}

// resolveFn yields the function capsule bytes: inline bytes are cached
// under their hash when one is given; a hash alone is looked up in the
// cache.
func (x *Executor) resolveFn(job *Job) ([]byte, error) {
	if len(job.Fn) > 0 {
		if x.cache != nil && len(job.FnHash) == 32 {
			var h [32]byte
			copy(h[:], job.FnHash)
			if err := x.cache.Put(h, job.Fn); err != nil {
				x.log.Errorf("cache put: %s", err.Error())
			}
		}
		return job.Fn, nil
	}
	if len(job.FnHash) != 32 {
		return nil, fmt.Errorf("pool: job %d carries neither capsule nor hash", job.ID)
	}
	if x.cache == nil {
		return nil, fmt.Errorf("pool: job %d is hash-only but this worker has no cache", job.ID)
	}
	var h [32]byte
	copy(h[:], job.FnHash)
	return x.cache.Get(h)
}
