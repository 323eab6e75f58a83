package interp

import (
	"testing"

	"quill/internal/value"
)

type recordingHook struct {
	name  string
	order *[]string
}

func (h *recordingHook) Unhook() {
	*h.order = append(*h.order, h.name)
}

func TestCreateContextRegistersAndActivates(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.CreateContext(rt.MainThread(), "plugin")

	if ctx.State() != StateActive {
		t.Fatalf("new context is %s, want active", ctx.State())
	}
	if ctx.Home() != rt.MainThread() {
		t.Fatal("context home is not the main thread")
	}
	if got, ok := rt.LookupContext("plugin"); !ok || got != ctx {
		t.Fatal("context not found in the registry")
	}
}

func TestDestroyContextRunsTeardownInOrder(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.CreateContext(rt.MainThread(), "plugin")

	var order []string
	ctx.OnUnload(func() error {
		order = append(order, "first")
		return nil
	})
	ctx.OnUnload(func() error {
		order = append(order, "second")
		return value.NewError("unload exploded")
	})
	ctx.OnUnload(func() error {
		order = append(order, "third")
		return nil
	})
	ctx.AddHook(&recordingHook{name: "hook-a", order: &order})
	ctx.AddHook(&recordingHook{name: "hook-b", order: &order})

	ctx.Globals().SetAttr("x", value.TRUE)

	if err := rt.DestroyContext(rt.MainThread(), ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unload callbacks in registration order, a failure skipping nothing;
	// hooks released in reverse.
	want := []string{"first", "second", "third", "hook-b", "hook-a"}
	if len(order) != len(want) {
		t.Fatalf("teardown order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("teardown order %v, want %v", order, want)
		}
	}

	if ctx.State() != StateDestroyed {
		t.Fatalf("context is %s, want destroyed", ctx.State())
	}
	if ctx.Globals().Len() != 0 {
		t.Fatal("globals not released on destroy")
	}
	if _, ok := rt.LookupContext("plugin"); ok {
		t.Fatal("destroyed context still registered")
	}
}

func TestDestroyContextRejectsRepeatsAndMain(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.CreateContext(rt.MainThread(), "plugin")

	if err := rt.DestroyContext(rt.MainThread(), ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rt.DestroyContext(rt.MainThread(), ctx); err == nil {
		t.Fatal("second destroy did not fail")
	}
	if err := rt.DestroyContext(rt.MainThread(), rt.MainContext()); err == nil {
		t.Fatal("destroying the main context did not fail")
	}
}

func TestCurrentThreadRequiresEnteredContext(t *testing.T) {
	rt := NewRuntime()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic outside an entered context")
		}
	}()
	rt.CurrentThread()
}

func TestCurrentThreadInsideContext(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MainThread()

	st := rt.Enter(mt, rt.MainContext())
	defer rt.Leave(st)

	if rt.CurrentThread() != mt {
		t.Fatal("lock holder is not the entered thread")
	}
	if !rt.ThreadHoldsLock(mt) {
		t.Fatal("entered thread does not hold the lock")
	}
}

func TestShutdownDestroysEverythingButMain(t *testing.T) {
	rt := NewRuntime()
	rt.CreateContext(rt.MainThread(), "one")
	rt.CreateContext(rt.MainThread(), "two")

	rt.Shutdown(rt.MainThread())

	if got := len(rt.Contexts()); got != 1 {
		t.Fatalf("%d contexts alive after shutdown, want 1", got)
	}
	if rt.MainContext().State() != StateActive {
		t.Fatal("main context did not survive shutdown")
	}
}
