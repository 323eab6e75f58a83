// Package proxy builds the stand-ins that let one interpreter context hold
// and use values owned by another. Primitives copy across; callables get a
// CallProxy; everything else gets an ObjectProxy. Every call through a
// proxy switches into the owning context for the duration of the call.
package proxy

import (
	"quill/internal/interp"
	"quill/internal/value"
)

// Owned is implemented by every proxy built here; it exposes which context
// owns the wrapped value so translation can unwrap proxies that travel back
// home.
type Owned interface {
	value.Proxy
	OwnerContext() *interp.Context
}

type cacheKey struct {
	owner *interp.Context
	id    any
}

// Wrap translates v, owned by the from context, for use inside the to
// context. Primitives and errors copy through, a proxy whose value already
// lives in to unwraps, and anything else is wrapped - the same value always
// yielding the same proxy while to is alive.
func Wrap(rt *interp.Runtime, from, to *interp.Context, v value.Value) value.Value {
	if v == nil {
		return value.NIL
	}
	if from == to {
		return v
	}
	if owned, ok := v.(Owned); ok {
		if owned.OwnerContext() == to {
			return owned.ProxiedValue()
		}
		return v
	}
	// Any other proxy (a dispatcher delegate, say) already mediates access
	// to its value; never stack another layer on top.
	if _, ok := v.(value.Proxy); ok {
		return v
	}
	if value.IsPrimitive(v) {
		return v
	}
	if _, ok := v.(*value.Error); ok {
		return v
	}

	key := cacheKey{owner: from, id: value.Identity(v)}
	if cached, ok := to.CachedProxy(key); ok {
		return cached
	}

	var p value.Value
	if callable, ok := v.(value.Callable); ok {
		p = &CallProxy{rt: rt, owner: from, target: callable}
	} else {
		p = &ObjectProxy{rt: rt, owner: from, holder: to, obj: v}
	}
	return to.CacheProxy(key, p)
}

// WrapArgs translates a positional/keyword argument set in one pass.
func WrapArgs(rt *interp.Runtime, from, to *interp.Context,
	args []value.Value, kwargs map[string]value.Value) ([]value.Value, map[string]value.Value) {

	wargs := make([]value.Value, len(args))
	for i, a := range args {
		wargs[i] = Wrap(rt, from, to, a)
	}
	var wkwargs map[string]value.Value
	if kwargs != nil {
		wkwargs = make(map[string]value.Value, len(kwargs))
		for k, a := range kwargs {
			wkwargs[k] = Wrap(rt, from, to, a)
		}
	}
	return wargs, wkwargs
}
