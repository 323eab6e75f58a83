package dispatch

import (
	"sync"

	"quill/internal/interp"
	"quill/internal/util/future"
	"quill/internal/value"
)

const ASYNC_RESULT_OBJ = "ASYNC_RESULT"

// AsyncResult is the handle an async delegate returns immediately. The
// first read of the result (or the error) blocks until the dispatched call
// finishes, with the execution lock released while waiting; later reads
// return the same settled outcome without blocking.
type AsyncResult struct {
	rt  *interp.Runtime
	fut *future.Future[Outcome]

	mu   sync.Mutex
	done bool
	out  Outcome
}

func NewAsyncResult(rt *interp.Runtime, fut *future.Future[Outcome]) *AsyncResult {
	return &AsyncResult{rt: rt, fut: fut}
}

// NewResolvedResult builds an already-settled handle, used when an async
// delegate is invoked on the main thread and the call ran inline.
func NewResolvedResult(rt *interp.Runtime, out Outcome) *AsyncResult {
	return &AsyncResult{rt: rt, fut: future.FromValue(out), done: true, out: out}
}

func (a *AsyncResult) Type() value.Type { return ASYNC_RESULT_OBJ }

func (a *AsyncResult) Inspect() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.done {
		return "async result (pending)"
	}
	if a.out.Err != nil {
		return "async result (" + a.out.Err.Inspect() + ")"
	}
	return "async result (" + a.out.Value.Inspect() + ")"
}

// settle waits for the outcome and caches it. The mutex guards only the
// cached fields, never the wait itself: a reader holding the execution
// lock must release it while blocked (Unlocked) or the main-thread pump
// could never service the call. Await is idempotent, so concurrent first
// readers may both wait; the cache just records the shared outcome.
func (a *AsyncResult) settle(t *interp.Thread) Outcome {
	a.mu.Lock()
	if a.done {
		out := a.out
		a.mu.Unlock()
		return out
	}
	a.mu.Unlock()

	var out Outcome
	a.rt.Unlocked(t, func() { out, _ = a.fut.Await() })

	a.mu.Lock()
	if !a.done {
		a.out = out
		a.done = true
	}
	out = a.out
	a.mu.Unlock()
	return out
}

// Result returns the call's value, blocking on first read. A failed call
// surfaces its error here.
func (a *AsyncResult) Result(t *interp.Thread) (value.Value, error) {
	out := a.settle(t)
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Value, nil
}

// Err returns the call's error, nil on success, blocking on first read.
func (a *AsyncResult) Err(t *interp.Thread) error {
	out := a.settle(t)
	if out.Err != nil {
		return out.Err
	}
	return nil
}

// Attr exposes result/error as callables for script-side use.
func (a *AsyncResult) Attr(name string) (value.Value, bool) {
	switch name {
	case "result":
		return &value.Func{Name: "result", Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return a.Result(a.rt.CurrentThread())
		}}, true
	case "error":
		return &value.Func{Name: "error", Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			if err := a.Err(a.rt.CurrentThread()); err != nil {
				return value.Capture(err), nil
			}
			return value.NIL, nil
		}}, true
	}
	return nil, false
}
