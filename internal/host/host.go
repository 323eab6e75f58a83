package host

import (
	"fmt"
	"time"

	"quill/internal/value"
)

// Eat tells the host what to do with an event after a hook ran.
type Eat int

const (
	EatNone   Eat = iota // pass the event on
	EatPlugin            // hide from other plugins
	EatAll               // consume entirely
)

type (
	// CommandFunc handles a slash command; word holds the command and its
	// arguments.
	CommandFunc func(word []string) Eat
	// PrintFunc handles a text event about to be shown.
	PrintFunc func(event string, args []string) Eat
	// ServerFunc handles a raw server line.
	ServerFunc func(line string) Eat
	// TimerFunc runs after a delay; returning true reschedules it.
	TimerFunc func() bool
)

// Hook identifies a registration with the host; Unhook releases it.
type Hook interface {
	Unhook()
}

// API is the chat client's plugin surface. Every method is safe to call
// only from the host's main thread; other threads must go through the
// dispatch package. The implementation behind this interface is the
// host application itself.
type API interface {
	Print(text string)
	Command(cmd string) error
	EmitPrint(event string, args ...string) error

	GetInfo(key string) (string, bool)
	ListFields(name string) ([]string, bool)
	GetList(name string) ([]map[string]string, bool)
	FindWindow(network, channel string) (*WindowRef, bool)

	HookCommand(name string, cb CommandFunc) Hook
	HookPrint(event string, cb PrintFunc) Hook
	HookServer(event string, cb ServerFunc) Hook
	HookTimer(delay time.Duration, cb TimerFunc) Hook
	Unhook(h Hook)
}

// TimerQueue is the slice of the API the dispatcher needs: a way to get a
// callback run once on the main thread.
type TimerQueue interface {
	HookTimer(delay time.Duration, cb TimerFunc) Hook
}

// WindowRef points at one chat window (network/channel pair). It is bound
// to the host and may only be used directly on the main thread; results
// carrying a WindowRef across threads get wrapped by the dispatcher.
type WindowRef struct {
	Network string
	Channel string
}

func (w *WindowRef) Type() value.Type { return "WINDOW" }

func (w *WindowRef) Inspect() string {
	return fmt.Sprintf("Window(network=%q, channel=%q)", w.Network, w.Channel)
}

// MainThreadOnly marks WindowRef as bound to the host's main thread.
func (w *WindowRef) MainThreadOnly() {}

func (w *WindowRef) Attr(name string) (value.Value, bool) {
	switch name {
	case "network":
		return &value.String{Value: w.Network}, true
	case "channel":
		return &value.String{Value: w.Channel}, true
	}
	return nil, false
}
