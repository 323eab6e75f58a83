package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quill/internal/dispatch"
	"quill/internal/host"
	"quill/internal/interp"
	"quill/internal/log"
	"quill/internal/plugin"
	"quill/internal/util"
	"quill/internal/value"
)

var (
	// Version is stamped by the build; "dev" outside a release.
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"

	help    bool
	version bool
	// logging
	logLevel string
	logFile  string
	// config vars
	configPath  string
	prefsDriver string
	prefsDSN    string
	demo        bool
)

func init() {
	flag.BoolVar(&help, "help", false, "Display help information and exit")
	flag.BoolVar(&help, "h", false, "Display help information and exit")
	flag.BoolVar(&version, "version", false, "Display version information and exit")
	flag.BoolVar(&version, "v", false, "Display version information and exit")
	// host config
	flag.StringVar(&configPath, "config", "quill.toml", "Path to the TOML configuration file")
	flag.StringVar(&prefsDriver, "prefs-driver", "", "Preference store driver: sqlite3, mysql, postgres")
	flag.StringVar(&prefsDSN, "prefs-dsn", "", "Preference store data source name")
	flag.BoolVar(&demo, "demo", true, "Load the built-in greeter plugin")
	// log config
	flag.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, none")
	flag.StringVar(&logFile, "log-file", "", "Log file path (if not set, logs to stderr)")
}

func main() {
	flag.Parse()

	if version {
		printVersion()
		return
	}
	if help {
		printHelp()
		return
	}

	config, err := util.LoadConfiguration(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad configuration %s: %v\n", configPath, err)
		os.Exit(1)
	}
	config.Version = Version
	config.BuildDate = BuildDate
	config.Commit = Commit
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}
	if prefsDriver != "" {
		config.PrefsDriver = prefsDriver
	}
	if prefsDSN != "" {
		config.PrefsDSN = prefsDSN
	}

	log.Init(config.LogLevel, config.LogFile, true)
	defer log.Close()
	logger := log.NewLogger("main")

	pump := host.NewPumpSized(config.QueueSize)
	localHost := host.NewLocalHost(pump)
	localHost.SetInfo("version", config.Version)
	localHost.SetInfo("nick", "quill")

	rt := interp.NewRuntime()

	prefs, err := plugin.OpenPrefStore(config.PrefsDriver, config.PrefsDSN)
	if err != nil {
		logger.Warnf("preference store unavailable, plugins run without persistence: %v", err)
		prefs = nil
	}

	loader := plugin.NewLoader(rt, localHost, prefs)

	if demo {
		if err := loadGreeter(rt, loader, localHost); err != nil {
			logger.Errorf("demo plugin: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	localHost.Print("quill host running, ^C to exit")
	pump.Run(ctx)

	loader.UnloadAll(rt.MainThread())
	rt.Shutdown(rt.MainThread())
	if prefs != nil {
		if err := prefs.Close(); err != nil {
			logger.Warnf("closing preference store: %v", err)
		}
	}
}

// loadGreeter installs the built-in demo plugin: a GREET command hook, an
// unload notice, and a background worker exercising a sync delegate from
// off the main thread.
func loadGreeter(rt *interp.Runtime, loader *plugin.Loader, localHost *host.LocalHost) error {
	manifest, err := plugin.ParseManifest([]byte(`{
		"name": "greeter",
		"version": "1.0",
		"description": "greets on demand and counts greetings"
	}`))
	if err != nil {
		return err
	}

	p, err := loader.Load(rt.MainThread(), manifest, func(p *plugin.Plugin, globals *value.Namespace) error {
		hostMod, _ := globals.Attr("host")
		mod := hostMod.(*value.Namespace)

		count := 0
		greet := &value.Func{
			Name: "on_greet",
			Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
				count++
				localHost.Print(fmt.Sprintf("hello! (%d greetings so far)", count))
				return &value.Number{Value: float64(host.EatAll)}, nil
			},
		}
		hookCommand, _ := mod.Attr("hook_command")
		if _, err := hookCommand.(value.Callable).Call(
			[]value.Value{&value.String{Value: "greet"}, greet}, nil); err != nil {
			return err
		}

		counter := &value.Func{
			Name: "greeting_count",
			Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
				return &value.Number{Value: float64(count)}, nil
			},
		}
		globals.SetAttr("greeting_count", p.Sync("greeting_count", counter))

		p.OnUnload(func() error {
			localHost.Print("greeter going away")
			return nil
		})
		return nil
	})
	if err != nil {
		return err
	}

	// A worker goroutine polling plugin state through the dispatcher; every
	// read lands on the main thread with the plugin's context entered.
	go func() {
		wt := rt.NewThread()
		counterValue, _ := p.Context().Globals().Attr("greeting_count")
		counter := counterValue.(*dispatch.Delegate)
		for {
			time.Sleep(30 * time.Second)
			if p.Context().State() != interp.StateActive {
				return
			}
			res, err := counter.Invoke(wt, nil, nil)
			if err != nil {
				return
			}
			localHost.Print(fmt.Sprintf("worker sees %s greetings", res.Inspect()))
		}
	}()

	return nil
}

func printVersion() {
	fmt.Printf("quill %s (built %s, commit %s)\n", Version, BuildDate, Commit)
}

func printHelp() {
	fmt.Println("quill - a thread-safe plugin host bridge")
	fmt.Println()
	fmt.Println("Usage: quill [options]")
	fmt.Println()
	flag.PrintDefaults()
}
