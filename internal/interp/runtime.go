package interp

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"quill/internal/log"
	"quill/internal/value"
)

var logger = log.NewLogger("interp")

// Runtime is the interpreter lifecycle manager. It owns the execution lock,
// the privileged main context, the main thread handle and the registry of
// live contexts.
type Runtime struct {
	lock       *LockManager
	mainThread *Thread
	mainCtx    *Context

	mu       sync.Mutex // guards the registry only, never interpreter state
	contexts map[uuid.UUID]*Context

	nextThread atomic.Int64
}

// NewRuntime creates the runtime with its main thread and the privileged
// main context already active. The caller's goroutine becomes the main
// thread: the one the host API may be called from directly.
func NewRuntime() *Runtime {
	rt := &Runtime{
		lock:     NewLockManager(),
		contexts: make(map[uuid.UUID]*Context),
	}
	rt.mainThread = &Thread{id: rt.nextThread.Add(1), main: true}
	rt.mainCtx = newContext("main", rt.mainThread)
	rt.mainCtx.state.Store(int32(StateActive))
	rt.contexts[rt.mainCtx.id] = rt.mainCtx
	return rt
}

func (r *Runtime) MainThread() *Thread { return r.mainThread }

// MainContext is the host's privileged interpreter context.
func (r *Runtime) MainContext() *Context { return r.mainCtx }

// NewThread registers a handle for a worker goroutine. The handle must be
// used by a single goroutine at a time.
func (r *Runtime) NewThread() *Thread {
	return &Thread{id: r.nextThread.Add(1)}
}

// Enter switches thread t into ctx; see LockManager.Enter.
func (r *Runtime) Enter(t *Thread, ctx *Context) SwitchState {
	return r.lock.Enter(t, ctx)
}

// Leave undoes the matching Enter; see LockManager.Leave.
func (r *Runtime) Leave(st SwitchState) {
	r.lock.Leave(st)
}

// Unlocked releases the execution lock around fn; see LockManager.Unlocked.
func (r *Runtime) Unlocked(t *Thread, fn func()) {
	r.lock.Unlocked(t, fn)
}

// CurrentThread returns the thread holding the execution lock. It is only
// valid while the calling goroutine is inside an entered context; calling
// it elsewhere is a protocol violation.
func (r *Runtime) CurrentThread() *Thread {
	t := r.lock.Holder()
	if t == nil {
		panic("interp: CurrentThread outside an entered context")
	}
	return t
}

// ThreadHoldsLock reports whether t currently holds the execution lock.
// Only meaningful when asked from t's own goroutine.
func (r *Runtime) ThreadHoldsLock(t *Thread) bool {
	return t != nil && t.holdsLock
}

// ActiveContext returns the active context; stable only while the caller
// holds the execution lock.
func (r *Runtime) ActiveContext() *Context {
	return r.lock.Active()
}

// CreateContext allocates a fresh isolated context. Creation happens under
// the main context, mirroring plugin load on the host's thread; the new
// context's home thread is always the runtime main thread.
func (r *Runtime) CreateContext(t *Thread, name string) *Context {
	st := r.Enter(t, r.mainCtx)
	c := newContext(name, r.mainThread)
	c.state.Store(int32(StateActive))
	r.Leave(st)

	r.mu.Lock()
	r.contexts[c.id] = c
	r.mu.Unlock()

	logger.Debugf("created context %q (%s)", name, c.id)
	return c
}

// DestroyContext tears down a context: Active -> TearingDown (unload
// callbacks run in registration order, failures logged and skipped) ->
// Destroyed (hooks unhooked, private store released, globals dropped).
// The private store is released before the context is retired so anything
// it owns lets go first.
func (r *Runtime) DestroyContext(t *Thread, c *Context) error {
	if c == r.mainCtx {
		return fmt.Errorf("cannot destroy the main context")
	}
	if !c.state.CompareAndSwap(int32(StateActive), int32(StateTearingDown)) {
		return fmt.Errorf("context %q is %s, not active", c.name, c.State())
	}

	st := r.Enter(t, c)

	for i, fn := range c.unload {
		if err := fn(); err != nil {
			logger.Warnf("unload callback %d for context %q: %s",
				i, c.name, value.Capture(err).Inspect())
		}
	}

	// Release the private store. Hooks go in reverse registration order,
	// like any other cleanup stack.
	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].Unhook()
	}
	c.hooks = nil
	c.unload = nil
	c.modules = nil
	c.proxyMu.Lock()
	c.proxies = nil
	c.proxyMu.Unlock()
	c.globals.Release()

	c.state.Store(int32(StateDestroyed))
	r.Leave(st)

	r.mu.Lock()
	delete(r.contexts, c.id)
	r.mu.Unlock()

	logger.Debugf("destroyed context %q (%s)", c.name, c.id)
	return nil
}

// Contexts snapshots the live context registry.
func (r *Runtime) Contexts() []*Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	return out
}

// LookupContext finds a live context by name.
func (r *Runtime) LookupContext(name string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contexts {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Shutdown destroys every context except main. Must run on the main thread.
func (r *Runtime) Shutdown(t *Thread) {
	for _, c := range r.Contexts() {
		if c == r.mainCtx {
			continue
		}
		if err := r.DestroyContext(t, c); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}
}
