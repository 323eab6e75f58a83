package proxy

import (
	"fmt"

	"quill/internal/interp"
	"quill/internal/value"
)

// ObjectProxy mirrors a non-callable value owned by another context.
// Attribute reads switch into the owner and fetch on every access, so a
// reassignment in the owner is always visible; the holding context's
// identity-keyed proxy cache (Wrap) keeps repeated reads of the same
// attribute value returning the identical wrapper. When the wrapped value
// rejects writes, the binding lives on the proxy itself and shadows the
// foreign one.
type ObjectProxy struct {
	rt     *interp.Runtime
	owner  *interp.Context
	holder *interp.Context
	obj    value.Value
	local  map[string]value.Value
}

func (p *ObjectProxy) Type() value.Type { return p.obj.Type() }

func (p *ObjectProxy) Inspect() string {
	return fmt.Sprintf("foreign %s [%s]", p.obj.Inspect(), p.owner.Name())
}

func (p *ObjectProxy) ProxiedValue() value.Value     { return p.obj }
func (p *ObjectProxy) OwnerContext() *interp.Context { return p.owner }

// Attr satisfies value.Attributed using the lock holder's thread.
func (p *ObjectProxy) Attr(name string) (value.Value, bool) {
	v, err := p.Get(p.rt.CurrentThread(), name)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Get reads an attribute through the proxy on thread t. Proxy-local
// bindings win over the wrapped value's; everything else is fetched from
// the wrapped value on every read and translated for the holder.
func (p *ObjectProxy) Get(t *interp.Thread, name string) (value.Value, error) {
	st := p.rt.Enter(t, p.owner)
	defer p.rt.Leave(st)

	if local, ok := p.local[name]; ok {
		return local, nil
	}

	attributed, ok := p.obj.(value.Attributed)
	if !ok {
		return nil, value.NewAttributeError("%s has no attributes", p.obj.Type())
	}
	raw, ok := attributed.Attr(name)
	if !ok {
		return nil, value.NewAttributeError("%s has no attribute %q", p.obj.Type(), name)
	}

	return Wrap(p.rt, p.owner, p.holder, raw), nil
}

// Set writes an attribute through the proxy, translating v into the
// owner's context first. An existing proxy-local binding is updated in
// place; a wrapped value that rejects writes gets a new proxy-local one.
func (p *ObjectProxy) Set(t *interp.Thread, name string, v value.Value) error {
	st := p.rt.Enter(t, p.owner)
	defer p.rt.Leave(st)

	if _, ok := p.local[name]; ok {
		p.local[name] = v
		return nil
	}

	mutable, ok := p.obj.(value.MutableAttrs)
	if !ok {
		if p.local == nil {
			p.local = make(map[string]value.Value)
		}
		p.local[name] = v
		return nil
	}
	if err := mutable.SetAttr(name, Wrap(p.rt, p.holder, p.owner, v)); err != nil {
		return value.Capture(err)
	}
	return nil
}

// SetAttr satisfies value.MutableAttrs using the lock holder's thread.
func (p *ObjectProxy) SetAttr(name string, v value.Value) error {
	return p.Set(p.rt.CurrentThread(), name, v)
}
