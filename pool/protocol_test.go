package pool

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/capsule/capsule"
	"github.com/chazu/capsule/runtime"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello frames")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, 1<<20)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("frame payload: got %q", got)
	}
}

func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(&buf, 50); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversize frame: got %v, want ErrFrameTooLarge", err)
	}
}

// buildAddFn compiles add(a, b) -> a + b.
func buildAddFn() *runtime.Function {
	b := runtime.NewUnitBuilder("add", 2)
	b.Code().EmitByte(runtime.OpLoadLocal, 0)
	b.Code().EmitByte(runtime.OpLoadLocal, 1)
	b.Code().Emit(runtime.OpAdd)
	b.Code().Emit(runtime.OpReturn)
	return runtime.NewFunction("add", b.Build(), runtime.NewDict())
}

// dumpAll encodes a function and its arguments as separate capsules.
func dumpAll(t *testing.T, eng *capsule.Engine, fn *runtime.Function, args ...runtime.Value) ([]byte, [][]byte) {
	t.Helper()
	fnData, err := eng.Dump(fn)
	if err != nil {
		t.Fatalf("dump function: %v", err)
	}
	argData := make([][]byte, len(args))
	for i, a := range args {
		if argData[i], err = eng.Dump(a); err != nil {
			t.Fatalf("dump arg %d: %v", i, err)
		}
	}
	return fnData, argData
}

func serveJobs(t *testing.T, x *Executor, jobs ...Job) []Result {
	t.Helper()
	var in bytes.Buffer
	for i := range jobs {
		payload, err := cbor.Marshal(&jobs[i])
		if err != nil {
			t.Fatal(err)
		}
		if err := WriteFrame(&in, payload); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	if err := x.Serve(&in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var results []Result
	for out.Len() > 0 {
		payload, err := ReadFrame(&out, 1<<20)
		if err != nil {
			t.Fatalf("read result frame: %v", err)
		}
		var r Result
		if err := cbor.Unmarshal(payload, &r); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		results = append(results, r)
	}
	return results
}

func TestExecutor_ServeJob(t *testing.T) {
	coordinator := capsule.NewEngine(runtime.NewRuntime())
	fnData, argData := dumpAll(t, coordinator, buildAddFn(), runtime.IntValue(2), runtime.IntValue(3))

	worker := capsule.NewEngine(runtime.NewRuntime())
	x := NewExecutor(worker, Default(), nil)
	results := serveJobs(t, x, Job{ID: 7, Fn: fnData, Args: argData})

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.ID != 7 || r.Error != "" {
		t.Fatalf("result: %+v", r)
	}

	back := capsule.NewEngine(runtime.NewRuntime())
	v, err := back.Load(r.Value)
	if err != nil {
		t.Fatalf("load result capsule: %v", err)
	}
	if v != runtime.Value(runtime.IntValue(5)) {
		t.Errorf("add(2, 3): got %v, want 5", v)
	}
}

func TestExecutor_JobFailureKeepsServing(t *testing.T) {
	coordinator := capsule.NewEngine(runtime.NewRuntime())
	fnData, argData := dumpAll(t, coordinator, buildAddFn(), runtime.IntValue(1), runtime.IntValue(1))

	worker := capsule.NewEngine(runtime.NewRuntime())
	x := NewExecutor(worker, Default(), nil)
	results := serveJobs(t, x,
		Job{ID: 1, Fn: []byte("not a capsule")},
		Job{ID: 2, Fn: fnData, Args: argData},
	)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Error == "" {
		t.Error("malformed capsule did not produce an error result")
	}
	if results[1].Error != "" {
		t.Errorf("job after a failure: %+v", results[1])
	}
}

func TestExecutor_HashOnlyWithoutCache(t *testing.T) {
	worker := capsule.NewEngine(runtime.NewRuntime())
	x := NewExecutor(worker, Default(), nil)

	hash := make([]byte, 32)
	results := serveJobs(t, x, Job{ID: 3, FnHash: hash})
	if len(results) != 1 || !strings.Contains(results[0].Error, "no cache") {
		t.Errorf("hash-only without cache: %+v", results)
	}
}

func TestExecutor_NeitherCapsuleNorHash(t *testing.T) {
	worker := capsule.NewEngine(runtime.NewRuntime())
	x := NewExecutor(worker, Default(), nil)

	results := serveJobs(t, x, Job{ID: 4})
	if len(results) != 1 || results[0].Error == "" {
		t.Errorf("empty job: %+v", results)
	}
}
