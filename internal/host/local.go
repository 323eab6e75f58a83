package host

import (
	"strings"
	"sync"
	"time"

	"quill/internal/log"
)

var logger = log.NewLogger("host")

type hookKind int

const (
	hookCommand hookKind = iota
	hookPrint
	hookServer
	hookTimer
)

type registration struct {
	host *LocalHost
	kind hookKind
	name string

	command CommandFunc
	print   PrintFunc
	server  ServerFunc
	timer   TimerFunc

	delay   time.Duration
	pending *time.Timer
	removed bool
}

func (h *registration) Unhook() {
	h.host.Unhook(h)
}

// LocalHost is an in-process implementation of the API, backed by a Pump
// for its main-thread event loop. It is the host used by the standalone
// binary and by tests; a real chat client would supply its own API.
type LocalHost struct {
	pump *Pump

	mu     sync.Mutex
	hooks  []*registration
	info   map[string]string
	lists  map[string][]map[string]string
	fields map[string][]string
	output []string
}

func NewLocalHost(pump *Pump) *LocalHost {
	return &LocalHost{
		pump:   pump,
		info:   make(map[string]string),
		lists:  make(map[string][]map[string]string),
		fields: make(map[string][]string),
	}
}

func (lh *LocalHost) Print(text string) {
	lh.mu.Lock()
	lh.output = append(lh.output, text)
	lh.mu.Unlock()
	logger.Infof("%s", text)
}

// Output snapshots everything printed so far.
func (lh *LocalHost) Output() []string {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	out := make([]string, len(lh.output))
	copy(out, lh.output)
	return out
}

// Command parses and dispatches a slash command line to registered
// command hooks. Must be called on the main thread.
func (lh *LocalHost) Command(cmd string) error {
	word := strings.Fields(cmd)
	if len(word) == 0 {
		return nil
	}
	name := strings.ToUpper(word[0])
	for _, h := range lh.snapshot(hookCommand) {
		if h.name != name {
			continue
		}
		if h.command(word) == EatAll {
			return nil
		}
	}
	return nil
}

// EmitPrint fires a text event at registered print hooks.
func (lh *LocalHost) EmitPrint(event string, args ...string) error {
	for _, h := range lh.snapshot(hookPrint) {
		if h.name != event {
			continue
		}
		if h.print(event, args) == EatAll {
			return nil
		}
	}
	return nil
}

// EmitServer feeds a raw server line to registered server hooks. Test and
// demo helper; a real client calls this from its network layer.
func (lh *LocalHost) EmitServer(event, line string) {
	for _, h := range lh.snapshot(hookServer) {
		if h.name != event {
			continue
		}
		if h.server(line) == EatAll {
			return
		}
	}
}

func (lh *LocalHost) GetInfo(key string) (string, bool) {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	v, ok := lh.info[key]
	return v, ok
}

// SetInfo seeds a value returned by GetInfo.
func (lh *LocalHost) SetInfo(key, val string) {
	lh.mu.Lock()
	lh.info[key] = val
	lh.mu.Unlock()
}

func (lh *LocalHost) ListFields(name string) ([]string, bool) {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	f, ok := lh.fields[name]
	return f, ok
}

func (lh *LocalHost) GetList(name string) ([]map[string]string, bool) {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	rows, ok := lh.lists[name]
	return rows, ok
}

// SetList seeds a named list and derives its field set from the first row.
func (lh *LocalHost) SetList(name string, rows []map[string]string) {
	fields := []string{}
	if len(rows) > 0 {
		for k := range rows[0] {
			fields = append(fields, k)
		}
	}
	lh.mu.Lock()
	lh.lists[name] = rows
	lh.fields[name] = fields
	lh.mu.Unlock()
}

func (lh *LocalHost) FindWindow(network, channel string) (*WindowRef, bool) {
	rows, ok := lh.GetList("channels")
	if !ok {
		return nil, false
	}
	for _, row := range rows {
		if row["network"] == network && row["channel"] == channel {
			return &WindowRef{Network: network, Channel: channel}, true
		}
	}
	return nil, false
}

func (lh *LocalHost) HookCommand(name string, cb CommandFunc) Hook {
	h := &registration{host: lh, kind: hookCommand, name: strings.ToUpper(name), command: cb}
	lh.add(h)
	return h
}

func (lh *LocalHost) HookPrint(event string, cb PrintFunc) Hook {
	h := &registration{host: lh, kind: hookPrint, name: event, print: cb}
	lh.add(h)
	return h
}

func (lh *LocalHost) HookServer(event string, cb ServerFunc) Hook {
	h := &registration{host: lh, kind: hookServer, name: event, server: cb}
	lh.add(h)
	return h
}

// HookTimer schedules cb on the main thread after delay. A zero delay
// posts straight to the pump; this is the path cross-thread dispatch
// rides on. The callback reschedules itself by returning true.
func (lh *LocalHost) HookTimer(delay time.Duration, cb TimerFunc) Hook {
	h := &registration{host: lh, kind: hookTimer, timer: cb, delay: delay}
	lh.add(h)
	lh.arm(h)
	return h
}

func (lh *LocalHost) arm(h *registration) {
	fire := func() {
		lh.mu.Lock()
		dead := h.removed
		lh.mu.Unlock()
		if dead {
			return
		}
		if h.timer() {
			lh.arm(h)
			return
		}
		lh.Unhook(h)
	}
	if h.delay <= 0 {
		lh.pump.Post(fire)
		return
	}
	lh.mu.Lock()
	if !h.removed {
		h.pending = time.AfterFunc(h.delay, func() { lh.pump.Post(fire) })
	}
	lh.mu.Unlock()
}

func (lh *LocalHost) Unhook(h Hook) {
	reg, ok := h.(*registration)
	if !ok || reg.host != lh {
		return
	}
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if reg.removed {
		return
	}
	reg.removed = true
	if reg.pending != nil {
		reg.pending.Stop()
	}
	for i, existing := range lh.hooks {
		if existing == reg {
			lh.hooks = append(lh.hooks[:i], lh.hooks[i+1:]...)
			return
		}
	}
}

func (lh *LocalHost) snapshot(kind hookKind) []*registration {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	out := []*registration{}
	for _, h := range lh.hooks {
		if h.kind == kind {
			out = append(out, h)
		}
	}
	return out
}

func (lh *LocalHost) add(h *registration) {
	lh.mu.Lock()
	lh.hooks = append(lh.hooks, h)
	lh.mu.Unlock()
}
