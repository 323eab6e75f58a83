package interp

import (
	"sync"
	"sync/atomic"
)

// Thread is the runtime's handle for one OS-level worker. Exactly one
// goroutine may use a Thread at a time; the handle carries that worker's
// lock-ownership and context-nesting state so re-entrant context switches
// stay cheap.
type Thread struct {
	id   int64
	main bool

	// Touched only by the owning goroutine, or while it holds the
	// execution lock.
	holdsLock bool
	depth     int
	current   *Context
}

// IsMain reports whether this is the host's designated main thread, the
// only thread allowed to call the host API directly.
func (t *Thread) IsMain() bool { return t.main }

// Current returns the context this thread has entered, or nil when the
// thread is outside any context.
func (t *Thread) Current() *Context { return t.current }

func (t *Thread) ID() int64 { return t.id }

// SwitchState records what an Enter did so the matching Leave undoes
// exactly that - never more, never less.
type SwitchState struct {
	thread     *Thread
	acquired   bool     // Leave must release the execution lock
	swapped    bool     // Leave must restore the prior active context
	prior      *Context // active context before the swap
	priorLocal *Context // thread-local current context before the enter
}

// LockManager owns the single process-wide execution lock and the "which
// context is active" state. All interpreter-level execution happens between
// an Enter and its matching Leave; the raw lock is never exposed.
//
// Enter and Leave must not fail. Misuse - an unmatched Leave, unbalanced
// nesting, or entering a destroyed context - is a defect in the calling
// code and panics.
type LockManager struct {
	mu     sync.Mutex
	holder atomic.Pointer[Thread]
	active *Context
}

func NewLockManager() *LockManager {
	return &LockManager{}
}

// Enter makes target the active context for thread t, acquiring the
// execution lock if t does not already hold it. Re-entrant enters of the
// context already active skip the swap. Every Enter must be matched by
// exactly one Leave with the returned state.
func (m *LockManager) Enter(t *Thread, target *Context) SwitchState {
	if t == nil || target == nil {
		panic("interp: Enter requires a thread and a target context")
	}
	st := SwitchState{thread: t}
	if !t.holdsLock {
		m.mu.Lock()
		t.holdsLock = true
		m.holder.Store(t)
		st.acquired = true
	}
	if target.State() == StateDestroyed {
		if st.acquired {
			t.holdsLock = false
			m.holder.Store(nil)
			m.mu.Unlock()
		}
		panic("interp: Enter on a destroyed context: " + target.Name())
	}
	if m.active != target {
		st.swapped = true
		st.prior = m.active
		m.active = target
	}
	st.priorLocal = t.current
	t.current = target
	t.depth++
	return st
}

// Leave undoes the matching Enter: restores the prior active context if a
// swap happened and releases the execution lock if that Enter acquired it.
func (m *LockManager) Leave(st SwitchState) {
	t := st.thread
	if t == nil || !t.holdsLock || t.depth == 0 {
		panic("interp: Leave without matching Enter")
	}
	t.depth--
	t.current = st.priorLocal
	if st.swapped {
		m.active = st.prior
	}
	if st.acquired {
		if t.depth != 0 {
			panic("interp: unbalanced Enter/Leave nesting")
		}
		t.holdsLock = false
		m.holder.Store(nil)
		m.mu.Unlock()
	}
}

// Unlocked runs fn with the execution lock released, then restores the
// lock, the active context and t's nesting state. Blocking operations
// (waiting on a dispatch result) must go through here so the main thread
// can make progress. No-op wrapper when t does not hold the lock.
func (m *LockManager) Unlocked(t *Thread, fn func()) {
	if t == nil || !t.holdsLock {
		fn()
		return
	}
	savedActive := m.active
	savedDepth := t.depth
	t.depth = 0
	t.holdsLock = false
	m.holder.Store(nil)
	m.mu.Unlock()

	fn()

	m.mu.Lock()
	m.holder.Store(t)
	t.holdsLock = true
	t.depth = savedDepth
	m.active = savedActive
}

// Holder returns the thread currently holding the execution lock, nil when
// the lock is free. Only meaningful to the holder itself; other readers see
// a snapshot.
func (m *LockManager) Holder() *Thread {
	return m.holder.Load()
}

// Active returns the currently active context. Callers must hold the
// execution lock for the answer to be stable.
func (m *LockManager) Active() *Context {
	return m.active
}
