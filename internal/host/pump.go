package host

import (
	"context"
	"sync"
)

// Pump is the host's main-thread event queue. Any goroutine may Post work;
// only the main thread drains it. It stands in for the client's event loop:
// everything the host does happens inside a pumped callback.
type Pump struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewPump() *Pump {
	return NewPumpSized(0)
}

// NewPumpSized preallocates queue capacity for hosts that know their load.
func NewPumpSized(capacity int) *Pump {
	p := &Pump{wake: make(chan struct{}, 1)}
	if capacity > 0 {
		p.queue = make([]func(), 0, capacity)
	}
	return p
}

// Post enqueues fn for execution on the main thread. Safe from any
// goroutine.
func (p *Pump) Post(fn func()) {
	p.mu.Lock()
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// PumpOne runs the oldest queued callback. Returns false when the queue
// was empty.
func (p *Pump) PumpOne() bool {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return false
	}
	fn := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()
	fn()
	return true
}

// Drain runs queued callbacks until the queue is empty, including work
// posted by the callbacks themselves. Returns how many ran.
func (p *Pump) Drain() int {
	n := 0
	for p.PumpOne() {
		n++
	}
	return n
}

// Run drains the queue whenever work arrives, until ctx is cancelled.
// This is the blocking main loop of a standalone host.
func (p *Pump) Run(ctx context.Context) {
	for {
		p.Drain()
		select {
		case <-ctx.Done():
			p.Drain()
			return
		case <-p.wake:
		}
	}
}
