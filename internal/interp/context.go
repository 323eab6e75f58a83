package interp

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"quill/internal/value"
)

type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateTearingDown
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateTearingDown:
		return "tearing-down"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// HookHandle is anything registered with the host that must be released
// when the owning context is torn down.
type HookHandle interface {
	Unhook()
}

// UnloadFunc is a callback registered to run when the owning context is
// being destroyed. Errors are reported and teardown continues.
type UnloadFunc func() error

// Context is one isolated interpreter instance: a private global namespace
// plus the per-context bookkeeping store (registered host hooks, unload
// callbacks, cached module references, the home thread for host-affine
// calls).
//
// Everything except the state flag is owned by the context and may only be
// touched while the context is entered; the execution lock serializes all
// such access structurally.
type Context struct {
	id    uuid.UUID
	name  string
	state atomic.Int32

	globals *value.Namespace
	home    *Thread
	hooks   []HookHandle
	unload  []UnloadFunc
	modules map[string]value.Value

	// Proxy translation runs on the argument-wrapping side before the
	// execution lock is taken, so this cache carries its own guard.
	proxyMu sync.Mutex
	proxies map[any]value.Value
}

func newContext(name string, home *Thread) *Context {
	c := &Context{
		id:      uuid.New(),
		name:    name,
		globals: value.NewNamespace(name),
		home:    home,
		modules: make(map[string]value.Value),
		proxies: make(map[any]value.Value),
	}
	return c
}

func (c *Context) ID() uuid.UUID { return c.id }
func (c *Context) Name() string  { return c.name }

func (c *Context) State() State {
	return State(c.state.Load())
}

// Globals is the context's private global namespace.
func (c *Context) Globals() *value.Namespace { return c.globals }

// Home is the thread designated for host-API calls on behalf of this
// context - always the runtime's main thread.
func (c *Context) Home() *Thread { return c.home }

// AddHook records a host hook owned by this context; it is unhooked when
// the context is destroyed.
func (c *Context) AddHook(h HookHandle) {
	c.hooks = append(c.hooks, h)
}

// RemoveHook forgets a hook that was unhooked explicitly.
func (c *Context) RemoveHook(h HookHandle) {
	for i, existing := range c.hooks {
		if existing == h {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			return
		}
	}
}

// OnUnload registers a callback invoked, in registration order, while this
// context is being torn down.
func (c *Context) OnUnload(fn UnloadFunc) {
	c.unload = append(c.unload, fn)
}

// CacheModule stores a per-context module reference in the private store.
func (c *Context) CacheModule(name string, v value.Value) {
	c.modules[name] = v
}

func (c *Context) Module(name string) (value.Value, bool) {
	v, ok := c.modules[name]
	return v, ok
}

// CachedProxy looks up a previously built proxy for a foreign value, so
// wrapping the same value twice yields the same proxy.
func (c *Context) CachedProxy(key any) (value.Value, bool) {
	c.proxyMu.Lock()
	defer c.proxyMu.Unlock()
	v, ok := c.proxies[key]
	return v, ok
}

// CacheProxy records a proxy in the private store under its identity key.
// The first proxy cached for a key wins, keeping wrapping identity-stable
// when two threads translate the same value at once.
func (c *Context) CacheProxy(key any, p value.Value) value.Value {
	c.proxyMu.Lock()
	defer c.proxyMu.Unlock()
	if c.proxies == nil {
		return p
	}
	if existing, ok := c.proxies[key]; ok {
		return existing
	}
	c.proxies[key] = p
	return p
}

func (c *Context) String() string {
	return fmt.Sprintf("Context(%s, %s)", c.name, c.State())
}
