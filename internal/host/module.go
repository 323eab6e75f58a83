package host

import (
	"time"

	"quill/internal/interp"
	"quill/internal/value"
)

// hookValue is the opaque handle scripts get back from the hook_* bindings.
type hookValue struct {
	ctx *interp.Context
	h   Hook
}

func (hv *hookValue) Type() value.Type { return "HOOK" }
func (hv *hookValue) Inspect() string  { return "hook" }

func wantString(fn string, args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", value.NewError("%s: missing argument %d", fn, i+1)
	}
	s, ok := args[i].(*value.String)
	if !ok {
		return "", value.NewError("%s: argument %d must be a string, got %s", fn, i+1, args[i].Type())
	}
	return s.Value, nil
}

func wantNumber(fn string, args []value.Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, value.NewError("%s: missing argument %d", fn, i+1)
	}
	n, ok := args[i].(*value.Number)
	if !ok {
		return 0, value.NewError("%s: argument %d must be a number, got %s", fn, i+1, args[i].Type())
	}
	return n.Value, nil
}

func wantCallable(fn string, args []value.Value, i int) (value.Callable, error) {
	if i >= len(args) {
		return nil, value.NewError("%s: missing argument %d", fn, i+1)
	}
	c, ok := args[i].(value.Callable)
	if !ok {
		return nil, value.NewError("%s: argument %d must be callable, got %s", fn, i+1, args[i].Type())
	}
	return c, nil
}

func eatFromValue(v value.Value) Eat {
	switch res := v.(type) {
	case *value.Number:
		switch int(res.Value) {
		case int(EatPlugin):
			return EatPlugin
		case int(EatAll):
			return EatAll
		}
	case *value.Boolean:
		if res.Value {
			return EatAll
		}
	}
	return EatNone
}

func stringList(items []string) *value.List {
	out := &value.List{Items: make([]value.Value, len(items))}
	for i, s := range items {
		out.Items[i] = &value.String{Value: s}
	}
	return out
}

// ModuleFor builds the per-context host module: the namespace a plugin's
// globals expose as "host". Hook callbacks always fire on the main thread
// with ctx entered; callback errors are reported and the event passes on.
// Hooks register in the context's private store so teardown releases them.
func ModuleFor(api API, rt *interp.Runtime, ctx *interp.Context) *value.Namespace {
	mod := value.NewNamespace("host")

	bind := func(name string, fn func(args []value.Value, kwargs map[string]value.Value) (value.Value, error)) {
		mod.SetAttr(name, &value.Func{Name: name, Fn: fn})
	}

	// entered runs a script callback inside ctx on the main thread and
	// reports, rather than propagates, anything it raises.
	entered := func(what string, fn func() (value.Value, error)) value.Value {
		mt := rt.MainThread()
		st := rt.Enter(mt, ctx)
		defer rt.Leave(st)
		res, err := fn()
		if err != nil {
			logger.Errorf("%s hook in %q failed:\n%s", what, ctx.Name(), value.Capture(err).Stacktrace())
			return value.NIL
		}
		return res
	}

	mod.SetAttr("EAT_NONE", &value.Number{Value: float64(EatNone)})
	mod.SetAttr("EAT_PLUGIN", &value.Number{Value: float64(EatPlugin)})
	mod.SetAttr("EAT_ALL", &value.Number{Value: float64(EatAll)})

	bind("print", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		text, err := wantString("host.print", args, 0)
		if err != nil {
			return nil, err
		}
		api.Print(text)
		return value.NIL, nil
	})

	bind("command", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		cmd, err := wantString("host.command", args, 0)
		if err != nil {
			return nil, err
		}
		if err := api.Command(cmd); err != nil {
			return nil, value.Capture(err)
		}
		return value.NIL, nil
	})

	bind("emit_print", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		event, err := wantString("host.emit_print", args, 0)
		if err != nil {
			return nil, err
		}
		rest := make([]string, 0, len(args)-1)
		for i := 1; i < len(args); i++ {
			s, err := wantString("host.emit_print", args, i)
			if err != nil {
				return nil, err
			}
			rest = append(rest, s)
		}
		if err := api.EmitPrint(event, rest...); err != nil {
			return nil, value.Capture(err)
		}
		return value.NIL, nil
	})

	bind("get_info", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		key, err := wantString("host.get_info", args, 0)
		if err != nil {
			return nil, err
		}
		v, ok := api.GetInfo(key)
		if !ok {
			return value.NIL, nil
		}
		return &value.String{Value: v}, nil
	})

	bind("list_fields", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		name, err := wantString("host.list_fields", args, 0)
		if err != nil {
			return nil, err
		}
		fields, ok := api.ListFields(name)
		if !ok {
			return value.NIL, nil
		}
		return stringList(fields), nil
	})

	bind("get_list", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		name, err := wantString("host.get_list", args, 0)
		if err != nil {
			return nil, err
		}
		rows, ok := api.GetList(name)
		if !ok {
			return value.NIL, nil
		}
		out := &value.List{}
		for _, row := range rows {
			m := value.NewMap()
			for k, v := range row {
				m.Set(&value.String{Value: k}, &value.String{Value: v})
			}
			out.Items = append(out.Items, m)
		}
		return out, nil
	})

	bind("find_window", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		network, err := wantString("host.find_window", args, 0)
		if err != nil {
			return nil, err
		}
		channel, err := wantString("host.find_window", args, 1)
		if err != nil {
			return nil, err
		}
		win, ok := api.FindWindow(network, channel)
		if !ok {
			return value.NIL, nil
		}
		return win, nil
	})

	bind("hook_command", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		name, err := wantString("host.hook_command", args, 0)
		if err != nil {
			return nil, err
		}
		cb, err := wantCallable("host.hook_command", args, 1)
		if err != nil {
			return nil, err
		}
		h := api.HookCommand(name, func(word []string) Eat {
			return eatFromValue(entered("command", func() (value.Value, error) {
				return cb.Call([]value.Value{stringList(word)}, nil)
			}))
		})
		ctx.AddHook(h)
		return &hookValue{ctx: ctx, h: h}, nil
	})

	bind("hook_print", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		event, err := wantString("host.hook_print", args, 0)
		if err != nil {
			return nil, err
		}
		cb, err := wantCallable("host.hook_print", args, 1)
		if err != nil {
			return nil, err
		}
		h := api.HookPrint(event, func(event string, eargs []string) Eat {
			return eatFromValue(entered("print", func() (value.Value, error) {
				return cb.Call([]value.Value{&value.String{Value: event}, stringList(eargs)}, nil)
			}))
		})
		ctx.AddHook(h)
		return &hookValue{ctx: ctx, h: h}, nil
	})

	bind("hook_server", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		event, err := wantString("host.hook_server", args, 0)
		if err != nil {
			return nil, err
		}
		cb, err := wantCallable("host.hook_server", args, 1)
		if err != nil {
			return nil, err
		}
		h := api.HookServer(event, func(line string) Eat {
			return eatFromValue(entered("server", func() (value.Value, error) {
				return cb.Call([]value.Value{&value.String{Value: line}}, nil)
			}))
		})
		ctx.AddHook(h)
		return &hookValue{ctx: ctx, h: h}, nil
	})

	bind("hook_timer", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		millis, err := wantNumber("host.hook_timer", args, 0)
		if err != nil {
			return nil, err
		}
		cb, err := wantCallable("host.hook_timer", args, 1)
		if err != nil {
			return nil, err
		}
		var h Hook
		h = api.HookTimer(time.Duration(millis)*time.Millisecond, func() bool {
			res := entered("timer", func() (value.Value, error) {
				return cb.Call(nil, nil)
			})
			keep := false
			switch res := res.(type) {
			case *value.Boolean:
				keep = res.Value
			case *value.Number:
				keep = res.Value != 0
			}
			if !keep {
				ctx.RemoveHook(h)
			}
			return keep
		})
		ctx.AddHook(h)
		return &hookValue{ctx: ctx, h: h}, nil
	})

	bind("unhook", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(args) < 1 {
			return nil, value.NewError("host.unhook: missing hook argument")
		}
		hv, ok := args[0].(*hookValue)
		if !ok {
			return nil, value.NewError("host.unhook: argument must be a hook, got %s", args[0].Type())
		}
		hv.ctx.RemoveHook(hv.h)
		hv.h.Unhook()
		return value.NIL, nil
	})

	bind("hook_unload", func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		cb, err := wantCallable("host.hook_unload", args, 0)
		if err != nil {
			return nil, err
		}
		ctx.OnUnload(func() error {
			// Teardown already holds the lock with ctx entered.
			_, err := cb.Call(nil, nil)
			return err
		})
		return value.NIL, nil
	})

	return mod
}
