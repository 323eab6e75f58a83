package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/host"
	"quill/internal/interp"
	"quill/internal/proxy"
	"quill/internal/value"
)

func newFixture(t *testing.T) (*interp.Runtime, *host.Pump, *host.LocalHost, *interp.Context) {
	t.Helper()
	rt := interp.NewRuntime()
	pump := host.NewPump()
	lh := host.NewLocalHost(pump)
	ctx := rt.CreateContext(rt.MainThread(), "plugin")
	return rt, pump, lh, ctx
}

func addFunc(calls *atomic.Int32) *value.Func {
	return &value.Func{
		Name: "add",
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			if calls != nil {
				calls.Add(1)
			}
			sum := 0.0
			for _, a := range args {
				n, ok := a.(*value.Number)
				if !ok {
					return nil, value.NewError("add: expected a number, got %s", a.Type())
				}
				sum += n.Value
			}
			return &value.Number{Value: sum}, nil
		},
	}
}

// pumpUntil drains the main-thread queue until ch delivers, standing in for
// the host's event loop.
func pumpUntil[T any](t *testing.T, pump *host.Pump, ch <-chan T) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		pump.Drain()
		select {
		case v := <-ch:
			return v
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSyncDelegateCrossThread(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)
	d := NewDelegate(rt, lh, ctx, addFunc(nil), "add", false)

	results := make(chan value.Value, 1)
	failures := make(chan error, 1)
	wt := rt.NewThread()
	go func() {
		res, err := d.Invoke(wt, []value.Value{&value.Number{Value: 2}, &value.Number{Value: 3}}, nil)
		if err != nil {
			failures <- err
			return
		}
		results <- res
	}()

	res := pumpUntil(t, pump, results)
	select {
	case err := <-failures:
		t.Fatalf("unexpected error: %v", err)
	default:
	}

	num, ok := res.(*value.Number)
	require.True(t, ok)
	assert.Equal(t, 5.0, num.Value)
}

func TestAsyncDelegateReturnsBeforeRunning(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)
	var calls atomic.Int32
	d := NewDelegate(rt, lh, ctx, addFunc(&calls), "add", true)

	handles := make(chan *AsyncResult, 1)
	wt := rt.NewThread()
	go func() {
		res, err := d.Invoke(wt, []value.Value{&value.Number{Value: 20}, &value.Number{Value: 22}}, nil)
		if err != nil {
			t.Error(err)
			return
		}
		handles <- res.(*AsyncResult)
	}()

	// The handle arrives without the queue ever being pumped.
	var ar *AsyncResult
	select {
	case ar = <-handles:
	case <-time.After(2 * time.Second):
		t.Fatal("async invoke did not return a handle")
	}
	assert.Equal(t, int32(0), calls.Load())

	results := make(chan value.Value, 1)
	go func() {
		v, err := ar.Result(rt.NewThread())
		if err != nil {
			t.Error(err)
			return
		}
		results <- v
	}()

	res := pumpUntil(t, pump, results)
	num, ok := res.(*value.Number)
	require.True(t, ok)
	assert.Equal(t, 42.0, num.Value)
	assert.Equal(t, int32(1), calls.Load())

	// Later reads are settled and never block or re-run the call.
	again, err := ar.Result(rt.NewThread())
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAsyncErrorIsIdempotent(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)
	boom := &value.Func{
		Name: "boom",
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return nil, value.NewError("server not connected")
		},
	}
	d := NewDelegate(rt, lh, ctx, boom, "boom", true)

	handles := make(chan *AsyncResult, 1)
	wt := rt.NewThread()
	go func() {
		res, _ := d.Invoke(wt, nil, nil)
		handles <- res.(*AsyncResult)
	}()
	ar := <-handles

	errsCh := make(chan error, 1)
	go func() {
		errsCh <- ar.Err(rt.NewThread())
	}()

	err := pumpUntil(t, pump, errsCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server not connected")

	// Settled: same error again, no pumping required.
	assert.Equal(t, err, ar.Err(rt.NewThread()))
	_, err2 := ar.Result(rt.NewThread())
	assert.Equal(t, err, err2)
}

func TestConcurrentReadersDoNotStallThePump(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)
	d := NewDelegate(rt, lh, ctx, addFunc(nil), "add", true)

	handles := make(chan *AsyncResult, 1)
	go func() {
		res, err := d.Invoke(rt.NewThread(), []value.Value{&value.Number{Value: 40}, &value.Number{Value: 2}}, nil)
		if err != nil {
			t.Error(err)
			return
		}
		handles <- res.(*AsyncResult)
	}()
	ar := <-handles

	// Two first reads race: one plain, one still holding the execution lock
	// with a context entered. Both must release the lock while they wait or
	// the main thread could never service the queued call.
	results := make(chan value.Value, 2)
	go func() {
		v, err := ar.Result(rt.NewThread())
		if err != nil {
			t.Error(err)
			return
		}
		results <- v
	}()
	go func() {
		wt := rt.NewThread()
		st := rt.Enter(wt, ctx)
		v, err := ar.Result(wt)
		rt.Leave(st)
		if err != nil {
			t.Error(err)
			return
		}
		results <- v
	}()

	first := pumpUntil(t, pump, results)
	second := pumpUntil(t, pump, results)
	assert.Equal(t, 42.0, first.(*value.Number).Value)
	assert.Same(t, first, second)
}

func TestMainThreadInvokeRunsInline(t *testing.T) {
	rt, _, lh, ctx := newFixture(t)
	d := NewDelegate(rt, lh, ctx, addFunc(nil), "add", false)

	res, err := d.Invoke(rt.MainThread(), []value.Value{&value.Number{Value: 1}, &value.Number{Value: 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.(*value.Number).Value)
}

func TestDelegateFailsWhenTargetDestroyed(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)
	d := NewDelegate(rt, lh, ctx, addFunc(nil), "add", false)
	require.NoError(t, rt.DestroyContext(rt.MainThread(), ctx))

	failures := make(chan error, 1)
	wt := rt.NewThread()
	go func() {
		_, err := d.Invoke(wt, nil, nil)
		failures <- err
	}()

	err := pumpUntil(t, pump, failures)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destroyed")
}

func TestMainThreadBoundResultGetsDelegateProxy(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)
	win := &host.WindowRef{Network: "libera", Channel: "#go"}
	find := &value.Func{
		Name: "find",
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return win, nil
		},
	}
	d := NewDelegate(rt, lh, ctx, find, "find", false)

	results := make(chan value.Value, 1)
	wt := rt.NewThread()
	go func() {
		res, err := d.Invoke(wt, nil, nil)
		if err != nil {
			t.Error(err)
			return
		}
		results <- res
	}()

	res := pumpUntil(t, pump, results)
	dp, ok := res.(*DelegateProxy)
	require.True(t, ok)
	assert.Same(t, value.Value(win), dp.ProxiedValue())

	// Attribute reads go back through the main thread.
	attrs := make(chan value.Value, 1)
	go func() {
		v, err := dp.Get(rt.NewThread(), "network")
		if err != nil {
			t.Error(err)
			return
		}
		attrs <- v
	}()

	network := pumpUntil(t, pump, attrs)
	assert.Equal(t, "libera", network.Inspect())

	// Reading again re-fetches on the main thread; the identical attribute
	// value comes back as the identical wrapper.
	again := make(chan value.Value, 1)
	go func() {
		v, err := dp.Get(rt.NewThread(), "network")
		if err != nil {
			t.Error(err)
			return
		}
		again <- v
	}()
	assert.Same(t, network, pumpUntil(t, pump, again))
}

func TestDelegateProxyReadSeesReassignment(t *testing.T) {
	rt, pump, lh, ctx := newFixture(t)

	m := value.NewMap()
	oldTopics := &value.List{Items: []value.Value{&value.String{Value: "go"}}}
	m.SetAttr("topics", oldTopics)
	dp := NewDelegateProxy(rt, lh, ctx, m, false)

	read := func() value.Value {
		ch := make(chan value.Value, 1)
		go func() {
			v, err := dp.Get(rt.NewThread(), "topics")
			if err != nil {
				t.Error(err)
				return
			}
			ch <- v
		}()
		return pumpUntil(t, pump, ch)
	}

	assert.Same(t, value.Value(oldTopics), read())

	// The target swaps the attribute; the next dispatched read sees the new
	// value instead of a remembered wrapper of the old one.
	newTopics := &value.List{Items: []value.Value{&value.String{Value: "rust"}}}
	m.SetAttr("topics", newTopics)
	assert.Same(t, value.Value(newTopics), read())
}

func TestWrapPassesDispatchProxiesThrough(t *testing.T) {
	rt, _, lh, ctx := newFixture(t)
	other := rt.CreateContext(rt.MainThread(), "other")

	d := NewDelegate(rt, lh, ctx, addFunc(nil), "add", false)
	assert.Same(t, value.Value(d), proxy.Wrap(rt, ctx, other, d))

	win := &host.WindowRef{Network: "libera", Channel: "#go"}
	dp := NewDelegateProxy(rt, lh, ctx, win, false)
	assert.Same(t, value.Value(dp), proxy.Wrap(rt, ctx, other, dp))
}
