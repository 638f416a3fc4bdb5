package bus

import (
	"sync"
)

// Node is a device attached to a Loopback bus. It sees every frame the host
// sends and returns the frames it puts on the bus in reply.
type Node func(Frame) []Frame

// Loopback is an in-process bus. Replies from attached nodes are delivered to
// listeners on the sending goroutine; frames sent from inside a listener are
// queued and delivered once that listener returns, so listeners never re-enter.
type Loopback struct {
	mu         sync.Mutex
	subs       listenerSet
	nodes      []Node
	sent       []Frame
	queue      []Frame
	delivering bool

	failAfter int
	failErr   error
}

func NewLoopback(nodes ...Node) *Loopback {
	return &Loopback{nodes: nodes, failAfter: -1}
}

func (l *Loopback) Attach(n Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes = append(l.nodes, n)
}

// FailAfter makes every Send after the first n successful ones return err.
func (l *Loopback) FailAfter(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failAfter = n
	l.failErr = err
}

func (l *Loopback) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	f = NewFrame(f.ID, f.Data)

	l.mu.Lock()
	if l.failAfter >= 0 && len(l.sent) >= l.failAfter {
		err := l.failErr
		l.mu.Unlock()
		return err
	}
	l.sent = append(l.sent, f)
	for _, n := range l.nodes {
		l.queue = append(l.queue, n(f)...)
	}
	l.mu.Unlock()

	l.deliver()
	return nil
}

// Inject puts a frame on the bus as if a device had sent it.
func (l *Loopback) Inject(frames ...Frame) {
	l.mu.Lock()
	for _, f := range frames {
		l.queue = append(l.queue, NewFrame(f.ID, f.Data))
	}
	l.mu.Unlock()
	l.deliver()
}

func (l *Loopback) deliver() {
	l.mu.Lock()
	if l.delivering {
		l.mu.Unlock()
		return
	}
	l.delivering = true
	for len(l.queue) > 0 {
		f := l.queue[0]
		l.queue = l.queue[1:]
		listeners := l.subs.snapshot()
		l.mu.Unlock()
		for _, fn := range listeners {
			fn(f)
		}
		l.mu.Lock()
	}
	l.delivering = false
	l.mu.Unlock()
}

func (l *Loopback) Subscribe(fn Listener) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs.add(fn)
}

func (l *Loopback) Unsubscribe(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs.remove(h)
}

// Sent returns a copy of every frame the host has sent.
func (l *Loopback) Sent() []Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Frame(nil), l.sent...)
}

// Listeners reports the number of active subscriptions.
func (l *Loopback) Listeners() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs.len()
}
