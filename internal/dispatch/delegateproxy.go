package dispatch

import (
	"fmt"
	"sync"

	"quill/internal/host"
	"quill/internal/interp"
	"quill/internal/value"
)

// DelegateProxy shields a main-thread-bound value. Attribute reads happen
// on the main thread on every access; callable attributes come back as
// Delegates so their invocations dispatch too, and nested bound values
// stay behind proxies of their own. The sync/async mode of the producing
// delegate is inherited. Wrappers are cached by the fetched attribute's
// identity, so the same attribute value always yields the same wrapper
// while a reassignment in the target is picked up on the next read.
type DelegateProxy struct {
	rt      *interp.Runtime
	timers  host.TimerQueue
	target  *interp.Context
	obj     value.Value
	isAsync bool

	mu    sync.Mutex
	cache map[any]value.Value
}

func NewDelegateProxy(rt *interp.Runtime, timers host.TimerQueue, target *interp.Context,
	obj value.Value, isAsync bool) *DelegateProxy {
	return &DelegateProxy{
		rt:      rt,
		timers:  timers,
		target:  target,
		obj:     obj,
		isAsync: isAsync,
		cache:   make(map[any]value.Value),
	}
}

func (dp *DelegateProxy) Type() value.Type { return dp.obj.Type() }

func (dp *DelegateProxy) Inspect() string {
	return fmt.Sprintf("dispatched %s [%s]", dp.obj.Type(), dp.target.Name())
}

func (dp *DelegateProxy) ProxiedValue() value.Value { return dp.obj }
func (dp *DelegateProxy) IsAsync() bool             { return dp.isAsync }

// Attr satisfies value.Attributed using the lock holder's thread.
func (dp *DelegateProxy) Attr(name string) (value.Value, bool) {
	v, err := dp.Get(dp.rt.CurrentThread(), name)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Get fetches an attribute on the main thread and wraps it for the caller.
func (dp *DelegateProxy) Get(t *interp.Thread, name string) (value.Value, error) {
	out := runMain(dp.rt, dp.timers, t, func(mt *interp.Thread) Outcome {
		attributed, ok := dp.obj.(value.Attributed)
		if !ok {
			return Outcome{Err: value.NewAttributeError("%s has no attributes", dp.obj.Type())}
		}
		st := dp.rt.Enter(mt, dp.target)
		raw, ok := attributed.Attr(name)
		dp.rt.Leave(st)
		if !ok {
			return Outcome{Err: value.NewAttributeError("%s has no attribute %q", dp.obj.Type(), name)}
		}
		return Outcome{Value: raw}
	})
	if out.Err != nil {
		return nil, out.Err
	}

	key := value.Identity(out.Value)
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if cached, ok := dp.cache[key]; ok {
		return cached, nil
	}
	wrapped := dp.wrapAttr(name, out.Value)
	dp.cache[key] = wrapped
	return wrapped, nil
}

func (dp *DelegateProxy) wrapAttr(name string, raw value.Value) value.Value {
	if callable, ok := raw.(value.Callable); ok {
		return NewDelegate(dp.rt, dp.timers, dp.target, callable, name, dp.isAsync)
	}
	if bound, ok := raw.(MainThreadBound); ok {
		return NewDelegateProxy(dp.rt, dp.timers, dp.target, bound, dp.isAsync)
	}
	return raw
}
