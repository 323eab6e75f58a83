package proxy

import (
	"fmt"

	"quill/internal/interp"
	"quill/internal/value"
)

// CallProxy makes a callable owned by one context invocable from another.
// Arguments are translated into the owner's context, the call runs with the
// owner entered, and the result is translated back for the caller. Errors
// raised by the target cross the boundary with their diagnostics intact.
type CallProxy struct {
	rt     *interp.Runtime
	owner  *interp.Context
	target value.Callable
}

func NewCallProxy(rt *interp.Runtime, owner *interp.Context, target value.Callable) *CallProxy {
	return &CallProxy{rt: rt, owner: owner, target: target}
}

func (p *CallProxy) Type() value.Type { return value.FUNC_OBJ }

func (p *CallProxy) Inspect() string {
	return fmt.Sprintf("foreign %s [%s]", p.target.Inspect(), p.owner.Name())
}

func (p *CallProxy) ProxiedValue() value.Value     { return p.target }
func (p *CallProxy) OwnerContext() *interp.Context { return p.owner }

// Call satisfies value.Callable for callers already inside a context; the
// executing thread is recovered from the lock holder.
func (p *CallProxy) Call(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return p.Invoke(p.rt.CurrentThread(), args, kwargs)
}

// Invoke runs the target on thread t, switching into the owning context
// around the call.
func (p *CallProxy) Invoke(t *interp.Thread, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	caller := t.Current()
	if caller == nil {
		caller = p.rt.MainContext()
	}
	wargs, wkwargs := WrapArgs(p.rt, caller, p.owner, args, kwargs)

	st := p.rt.Enter(t, p.owner)
	defer p.rt.Leave(st)

	res, err := p.target.Call(wargs, wkwargs)
	if err != nil {
		return nil, value.Capture(err)
	}
	return Wrap(p.rt, p.owner, caller, res), nil
}
