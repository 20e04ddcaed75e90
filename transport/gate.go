package transport

import "sync"

// Gate is a one-shot broadcast signal: every receive loop waits on Done()
// before processing its first message, so no handler runs before the bus
// has finished Start (registrations frozen, entities provisioned, every
// receive loop launched). Open is idempotent; only the first call closes
// the channel.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate creates a closed-by-Open, not-yet-open gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open closes the gate's channel exactly once, unblocking every current and
// future Done() waiter.
func (g *Gate) Open() {
	g.once.Do(func() {
		close(g.ch)
	})
}

// Done returns the channel a receive loop should select on; it closes when
// Open is called.
func (g *Gate) Done() <-chan struct{} {
	return g.ch
}
