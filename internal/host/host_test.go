package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/interp"
	"quill/internal/value"
)

func TestPumpRunsInOrder(t *testing.T) {
	pump := NewPump()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		pump.Post(func() { got = append(got, i) })
	}

	assert.Equal(t, 3, pump.Drain())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.False(t, pump.PumpOne())
}

func TestCommandHookEatStopsPropagation(t *testing.T) {
	pump := NewPump()
	lh := NewLocalHost(pump)

	var first, second int
	lh.HookCommand("test", func(word []string) Eat {
		first++
		return EatAll
	})
	lh.HookCommand("test", func(word []string) Eat {
		second++
		return EatNone
	})

	require.NoError(t, lh.Command("TEST one two"))
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestZeroDelayTimerReschedules(t *testing.T) {
	pump := NewPump()
	lh := NewLocalHost(pump)

	runs := 0
	lh.HookTimer(0, func() bool {
		runs++
		return runs < 3
	})

	pump.Drain()
	assert.Equal(t, 3, runs)

	// The hook removed itself after returning false.
	pump.Drain()
	assert.Equal(t, 3, runs)
}

func TestUnhookStopsTimer(t *testing.T) {
	pump := NewPump()
	lh := NewLocalHost(pump)

	runs := 0
	h := lh.HookTimer(0, func() bool {
		runs++
		return true
	})
	h.Unhook()

	pump.Drain()
	assert.Equal(t, 0, runs)
}

func TestModuleHookCommandRunsInContext(t *testing.T) {
	rt := interp.NewRuntime()
	pump := NewPump()
	lh := NewLocalHost(pump)
	ctx := rt.CreateContext(rt.MainThread(), "plugin")
	mod := ModuleFor(lh, rt, ctx)

	var active *interp.Context
	var words []string
	cb := &value.Func{
		Name: "on_test",
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			active = rt.ActiveContext()
			for _, item := range args[0].(*value.List).Items {
				words = append(words, item.Inspect())
			}
			return &value.Number{Value: float64(EatAll)}, nil
		},
	}

	hook, ok := mod.Attr("hook_command")
	require.True(t, ok)

	st := rt.Enter(rt.MainThread(), ctx)
	_, err := hook.(value.Callable).Call([]value.Value{&value.String{Value: "test"}, cb}, nil)
	rt.Leave(st)
	require.NoError(t, err)

	require.NoError(t, lh.Command("TEST hello"))
	assert.Same(t, ctx, active)
	assert.Equal(t, []string{"TEST", "hello"}, words)
}

func TestModuleTimerReschedulesOnFreshResult(t *testing.T) {
	rt := interp.NewRuntime()
	pump := NewPump()
	lh := NewLocalHost(pump)
	ctx := rt.CreateContext(rt.MainThread(), "plugin")
	mod := ModuleFor(lh, rt, ctx)

	runs := 0
	cb := &value.Func{
		Name: "tick",
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			runs++
			// A fresh boolean each run, never the shared singletons.
			return &value.Boolean{Value: runs < 3}, nil
		},
	}

	hookTimer, ok := mod.Attr("hook_timer")
	require.True(t, ok)
	st := rt.Enter(rt.MainThread(), ctx)
	_, err := hookTimer.(value.Callable).Call([]value.Value{&value.Number{Value: 0}, cb}, nil)
	rt.Leave(st)
	require.NoError(t, err)

	pump.Drain()
	assert.Equal(t, 3, runs)

	// The hook unregistered itself once the callback said stop.
	pump.Drain()
	assert.Equal(t, 3, runs)
}

func TestModuleGetListAndFindWindow(t *testing.T) {
	rt := interp.NewRuntime()
	pump := NewPump()
	lh := NewLocalHost(pump)
	lh.SetList("channels", []map[string]string{
		{"network": "libera", "channel": "#go"},
	})
	ctx := rt.CreateContext(rt.MainThread(), "plugin")
	mod := ModuleFor(lh, rt, ctx)

	st := rt.Enter(rt.MainThread(), ctx)
	defer rt.Leave(st)

	getList, _ := mod.Attr("get_list")
	rows, err := getList.(value.Callable).Call([]value.Value{&value.String{Value: "channels"}}, nil)
	require.NoError(t, err)
	list, ok := rows.(*value.List)
	require.True(t, ok)
	require.Len(t, list.Items, 1)
	row := list.Items[0].(*value.Map)
	net, _ := row.Attr("network")
	assert.Equal(t, "libera", net.Inspect())

	findWindow, _ := mod.Attr("find_window")
	win, err := findWindow.(value.Callable).Call([]value.Value{
		&value.String{Value: "libera"}, &value.String{Value: "#go"},
	}, nil)
	require.NoError(t, err)
	require.IsType(t, &WindowRef{}, win)

	missing, err := findWindow.(value.Callable).Call([]value.Value{
		&value.String{Value: "libera"}, &value.String{Value: "#rust"},
	}, nil)
	require.NoError(t, err)
	assert.Same(t, value.Value(value.NIL), missing)
}

func TestHookErrorsAreReportedNotPropagated(t *testing.T) {
	rt := interp.NewRuntime()
	pump := NewPump()
	lh := NewLocalHost(pump)
	ctx := rt.CreateContext(rt.MainThread(), "plugin")
	mod := ModuleFor(lh, rt, ctx)

	cb := &value.Func{
		Name: "broken",
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return nil, value.NewError("hook exploded")
		},
	}

	hook, _ := mod.Attr("hook_command")
	st := rt.Enter(rt.MainThread(), ctx)
	_, err := hook.(value.Callable).Call([]value.Value{&value.String{Value: "test"}, cb}, nil)
	rt.Leave(st)
	require.NoError(t, err)

	// The failing hook eats nothing and the dispatch completes.
	require.NoError(t, lh.Command("TEST"))
}
