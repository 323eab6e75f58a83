package plugin

import (
	"fmt"
	"sync"

	"quill/internal/dispatch"
	"quill/internal/host"
	"quill/internal/interp"
	"quill/internal/log"
	"quill/internal/proxy"
	"quill/internal/value"
)

var logger = log.NewLogger("plugin")

// InitFunc is a plugin's entry point. It runs on the main thread with the
// plugin's context entered and its globals already carrying the host
// module; an error aborts the load and tears the context down.
type InitFunc func(p *Plugin, globals *value.Namespace) error

// Plugin is one loaded plugin: its manifest, its interpreter context and
// handles to the host surfaces it may use.
type Plugin struct {
	manifest *Manifest
	ctx      *interp.Context
	rt       *interp.Runtime
	api      host.API
	prefs    *PrefStore
}

func (p *Plugin) Name() string             { return p.manifest.Name }
func (p *Plugin) Version() string          { return p.manifest.Version }
func (p *Plugin) Context() *interp.Context { return p.ctx }

// OnUnload registers a teardown callback with the plugin's context.
func (p *Plugin) OnUnload(fn interp.UnloadFunc) {
	p.ctx.OnUnload(fn)
}

// Sync wraps a callable from this plugin so worker goroutines can invoke
// it on the main thread and block for the result.
func (p *Plugin) Sync(name string, c value.Callable) *dispatch.Delegate {
	return dispatch.NewDelegate(p.rt, p.api, p.ctx, c, name, false)
}

// Async wraps a callable so worker invocations return an AsyncResult.
func (p *Plugin) Async(name string, c value.Callable) *dispatch.Delegate {
	return dispatch.NewDelegate(p.rt, p.api, p.ctx, c, name, true)
}

func (p *Plugin) SetPref(name string, v value.Value) error {
	if p.prefs == nil {
		return value.NewError("no preference store configured")
	}
	return p.prefs.Set(p.manifest.Name, name, v)
}

func (p *Plugin) GetPref(name string) (value.Value, bool, error) {
	if p.prefs == nil {
		return nil, false, nil
	}
	return p.prefs.Get(p.manifest.Name, name)
}

func (p *Plugin) DelPref(name string) error {
	if p.prefs == nil {
		return nil
	}
	return p.prefs.Delete(p.manifest.Name, name)
}

func (p *Plugin) ListPrefs() ([]string, error) {
	if p.prefs == nil {
		return nil, nil
	}
	return p.prefs.List(p.manifest.Name)
}

// Loader owns the set of loaded plugins, giving each its own context with
// the host module installed.
type Loader struct {
	rt    *interp.Runtime
	api   host.API
	prefs *PrefStore

	mu      sync.Mutex
	plugins map[string]*Plugin
}

// NewLoader wires a loader to the runtime and the host. prefs may be nil
// when no store is configured; plugins then run without persistence.
func NewLoader(rt *interp.Runtime, api host.API, prefs *PrefStore) *Loader {
	return &Loader{
		rt:      rt,
		api:     api,
		prefs:   prefs,
		plugins: make(map[string]*Plugin),
	}
}

// Load creates a context for the plugin, installs the host module and the
// sync/async wrappers into its globals, and runs init inside it. Must run
// on the main thread.
func (l *Loader) Load(t *interp.Thread, m *Manifest, init InitFunc) (*Plugin, error) {
	l.mu.Lock()
	if _, dup := l.plugins[m.Name]; dup {
		l.mu.Unlock()
		return nil, fmt.Errorf("plugin %q is already loaded", m.Name)
	}
	l.mu.Unlock()

	ctx := l.rt.CreateContext(t, m.Name)
	p := &Plugin{manifest: m, ctx: ctx, rt: l.rt, api: l.api, prefs: l.prefs}

	st := l.rt.Enter(t, ctx)
	mod := host.ModuleFor(l.api, l.rt, ctx)
	// Thread-safe faces of the module: attribute calls through these land
	// on the main thread, blocking or returning an AsyncResult.
	mod.SetAttr("synchronous", dispatch.NewDelegateProxy(l.rt, l.api, ctx, mod, false))
	mod.SetAttr("asynchronous", dispatch.NewDelegateProxy(l.rt, l.api, ctx, mod, true))
	ctx.CacheModule("host", mod)
	globals := ctx.Globals()
	globals.SetAttr("host", mod)
	globals.SetAttr("synchronous", wrapperFunc("synchronous", p, false))
	globals.SetAttr("asynchronous", wrapperFunc("asynchronous", p, true))
	// The privileged main context, reachable behind a proxy.
	globals.SetAttr("main", proxy.Wrap(l.rt, l.rt.MainContext(), ctx, l.rt.MainContext().Globals()))

	err := init(p, globals)
	l.rt.Leave(st)
	if err != nil {
		verr := value.Capture(err)
		logger.Errorf("plugin %q failed to load:\n%s", m.Name, verr.Stacktrace())
		if derr := l.rt.DestroyContext(t, ctx); derr != nil {
			logger.Warnf("discarding context for %q: %v", m.Name, derr)
		}
		return nil, verr
	}

	l.mu.Lock()
	l.plugins[m.Name] = p
	l.mu.Unlock()
	logger.Infof("loaded plugin %q version %s", m.Name, m.Version)
	return p, nil
}

// wrapperFunc builds the global that turns one of the plugin's callables
// into a thread-safe delegate.
func wrapperFunc(name string, p *Plugin, isAsync bool) *value.Func {
	return &value.Func{
		Name: name,
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			if len(args) < 1 {
				return nil, value.NewError("%s: missing callable argument", name)
			}
			c, ok := args[0].(value.Callable)
			if !ok {
				return nil, value.NewError("%s: argument must be callable, got %s", name, args[0].Type())
			}
			label := ""
			if f, ok := args[0].(*value.Func); ok {
				label = f.Name
			}
			if isAsync {
				return p.Async(label, c), nil
			}
			return p.Sync(label, c), nil
		},
	}
}

// Unload tears the named plugin down. Must run on the main thread.
func (l *Loader) Unload(t *interp.Thread, name string) error {
	l.mu.Lock()
	p, ok := l.plugins[name]
	if ok {
		delete(l.plugins, name)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin %q is not loaded", name)
	}

	if err := l.rt.DestroyContext(t, p.ctx); err != nil {
		return err
	}
	logger.Infof("unloaded plugin %q", name)
	return nil
}

// UnloadAll tears every plugin down, used at host shutdown.
func (l *Loader) UnloadAll(t *interp.Thread) {
	for _, p := range l.Plugins() {
		if err := l.Unload(t, p.Name()); err != nil {
			logger.Warnf("unload %q: %v", p.Name(), err)
		}
	}
}

// Plugins snapshots the loaded set.
func (l *Loader) Plugins() []*Plugin {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Plugin, 0, len(l.plugins))
	for _, p := range l.plugins {
		out = append(out, p)
	}
	return out
}

// Lookup finds a loaded plugin by name.
func (l *Loader) Lookup(name string) (*Plugin, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.plugins[name]
	return p, ok
}
