package pool

import (
	"fmt"

	"github.com/chazu/capsule/capsule"
	"github.com/chazu/capsule/runtime"
)

// engineRequest represents a unit of work to be executed on the engine
// goroutine.
type engineRequest struct {
	fn   func(*capsule.Engine) (runtime.Value, error)
	done chan engineResult
}

// engineResult holds the return value from an engine operation.
type engineResult struct {
	value runtime.Value
	err   error
}

// Worker serializes all engine and runtime access through a single
// goroutine. The interpreter is single-threaded; every job must go
// through the worker to avoid data races.
type Worker struct {
	eng      *capsule.Engine
	requests chan engineRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(eng *capsule.Engine) *Worker {
	w := &Worker{
		eng:      eng,
		requests: make(chan engineRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function against the engine, recovering from panics.
func (w *Worker) execute(fn func(*capsule.Engine) (runtime.Value, error)) engineResult {
	var result engineResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value, result.err = fn(w.eng)
	}()
	return result
}

// Do submits a function for execution on the engine goroutine and
// blocks until it completes.
func (w *Worker) Do(fn func(*capsule.Engine) (runtime.Value, error)) (runtime.Value, error) {
	req := engineRequest{
		fn:   fn,
		done: make(chan engineResult, 1),
	}
	w.requests <- req
	result := <-req.done
	return result.value, result.err
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}

// Engine returns the underlying engine, for access that does not touch
// interpreter state.
func (w *Worker) Engine() *capsule.Engine {
	return w.eng
}
