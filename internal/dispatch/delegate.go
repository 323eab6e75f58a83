// Package dispatch moves calls between threads. A Delegate wraps a callable
// whose context must run on the host's main thread; invoking it from a
// worker enqueues the call through a zero-delay host timer and either
// blocks for the outcome (sync) or hands back an AsyncResult. The execution
// lock is released while a worker waits, so the main thread can service
// the queue.
package dispatch

import (
	"fmt"

	"quill/internal/host"
	"quill/internal/interp"
	"quill/internal/log"
	"quill/internal/proxy"
	"quill/internal/util/future"
	"quill/internal/value"
)

var logger = log.NewLogger("dispatch")

// MainThreadBound marks values tied to the host's main thread. Results
// carrying one are wrapped in a DelegateProxy so every further use is
// dispatched rather than touched in place.
type MainThreadBound interface {
	value.Value
	MainThreadOnly()
}

// Outcome is the terminal state of one dispatched call.
type Outcome struct {
	Value value.Value
	Err   *value.Error
}

// runMain executes fn on the runtime's main thread and waits for its
// outcome. On the main thread it runs inline; from a worker it rides a
// zero-delay timer and blocks with the execution lock released.
func runMain(rt *interp.Runtime, timers host.TimerQueue, t *interp.Thread, fn func(mt *interp.Thread) Outcome) Outcome {
	if t.IsMain() {
		return fn(t)
	}
	f := future.New[Outcome]()
	timers.HookTimer(0, func() bool {
		f.Complete(fn(rt.MainThread()))
		return false
	})
	var out Outcome
	rt.Unlocked(t, func() { out, _ = f.Await() })
	return out
}

// Delegate binds a callable to the context it must run in. Invocations from
// any thread land on the main thread with that context entered; arguments
// and results cross the boundary through the proxy layer.
type Delegate struct {
	rt       *interp.Runtime
	timers   host.TimerQueue
	target   *interp.Context
	callable value.Callable
	name     string
	isAsync  bool
}

func NewDelegate(rt *interp.Runtime, timers host.TimerQueue, target *interp.Context,
	callable value.Callable, name string, isAsync bool) *Delegate {
	return &Delegate{
		rt:       rt,
		timers:   timers,
		target:   target,
		callable: callable,
		name:     name,
		isAsync:  isAsync,
	}
}

func (d *Delegate) Type() value.Type { return value.FUNC_OBJ }

func (d *Delegate) Inspect() string {
	mode := "sync"
	if d.isAsync {
		mode = "async"
	}
	return fmt.Sprintf("delegate %s(...) [%s, %s]", d.name, d.target.Name(), mode)
}

func (d *Delegate) IsAsync() bool { return d.isAsync }

// ProxiedValue marks the delegate as a stand-in for its callable, so value
// translation passes it through instead of stacking another proxy on it.
func (d *Delegate) ProxiedValue() value.Value { return d.callable }

// Call satisfies value.Callable for callers already inside a context.
func (d *Delegate) Call(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return d.Invoke(d.rt.CurrentThread(), args, kwargs)
}

// Invoke dispatches the call from thread t. Sync delegates return the
// callable's (translated) result; async delegates return an AsyncResult
// immediately unless already on the main thread, where the call just runs.
func (d *Delegate) Invoke(t *interp.Thread, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	caller := t.Current()
	if caller == nil {
		caller = d.rt.MainContext()
	}
	wargs, wkwargs := proxy.WrapArgs(d.rt, caller, d.target, args, kwargs)

	run := func(mt *interp.Thread) Outcome {
		return d.service(mt, caller, wargs, wkwargs)
	}

	if d.isAsync && !t.IsMain() {
		f := future.New[Outcome]()
		d.timers.HookTimer(0, func() bool {
			f.Complete(run(d.rt.MainThread()))
			return false
		})
		return NewAsyncResult(d.rt, f), nil
	}

	out := runMain(d.rt, d.timers, t, run)
	if d.isAsync {
		return NewResolvedResult(d.rt, out), nil
	}
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Value, nil
}

// service runs the callable on the main thread with the target entered.
// A target torn down between enqueue and service fails the call instead of
// touching a dead context.
func (d *Delegate) service(mt *interp.Thread, caller *interp.Context,
	args []value.Value, kwargs map[string]value.Value) Outcome {

	if d.target.State() != interp.StateActive {
		err := value.NewError("delegate %s: context %q is %s", d.name, d.target.Name(), d.target.State())
		logger.Warnf("%s", err.Message)
		return Outcome{Err: err}
	}

	st := d.rt.Enter(mt, d.target)
	defer d.rt.Leave(st)

	res, err := d.callable.Call(args, kwargs)
	if err != nil {
		return Outcome{Err: value.Capture(err)}
	}
	return Outcome{Value: d.wrapResult(caller, res)}
}

// wrapResult translates a result for the caller. Main-thread-bound values
// never cross raw: they come back behind a DelegateProxy that keeps all
// access on the main thread.
func (d *Delegate) wrapResult(caller *interp.Context, res value.Value) value.Value {
	if bound, ok := res.(MainThreadBound); ok {
		return NewDelegateProxy(d.rt, d.timers, d.target, bound, d.isAsync)
	}
	return proxy.Wrap(d.rt, d.target, caller, res)
}
