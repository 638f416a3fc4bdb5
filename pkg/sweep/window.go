package sweep

import (
	"sync"
	"time"

	"github.com/roffe/canrecon/pkg/bus"
)

// Classifier inspects one inbound frame in the context of the candidate that
// is in flight. It runs on the port's delivery path.
type Classifier func(w *Window, f bus.Frame)

// Window is the response window of a single candidate. It is the only
// listener registered on the port while open.
type Window struct {
	// Value is the candidate of a linear sweep.
	Value int
	// Values holds the byte at each position of a cartesian sweep.
	Values []byte
	// Sent is the frame transmitted for this candidate.
	Sent bus.Frame
	// State is free for the classifier and dropped with the window.
	State any

	port     bus.Port
	session  *Session
	wait     *Countdown
	classify Classifier

	mu     sync.Mutex
	closed bool
	handle bus.Handle
	once   sync.Once
}

// Stop asks the sweep to end after the current candidate.
func (w *Window) Stop() {
	w.session.Stop()
}

// Finish cuts the remaining wait of this candidate short.
func (w *Window) Finish() {
	if w.wait != nil {
		w.wait.Set(0)
	}
}

// Extend replaces the remaining wait of this candidate with d.
func (w *Window) Extend(d time.Duration) {
	if w.wait != nil {
		w.wait.Set(d)
	}
}

// Send transmits data, zero padded, on the candidate's arbitration ID.
func (w *Window) Send(data []byte) error {
	return w.port.Send(bus.NewFrame(w.Sent.ID, Pad(data)))
}

func (w *Window) deliver(f bus.Frame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.classify(w, f)
}

// Close unsubscribes the window. It is safe to call more than once; after it
// returns the classifier is not invoked again for this window.
func (w *Window) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.port.Unsubscribe(w.handle)
	})
}

// Closed reports whether Close has been called.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// slot keeps at most one window open on a port.
type slot struct {
	mu      sync.Mutex
	current *Window
}

// open closes the previous window, if any, and registers w.
func (s *slot) open(port bus.Port, w *Window) *Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Close()
	}
	w.port = port
	w.handle = port.Subscribe(w.deliver)
	s.current = w
	return w
}

func (s *slot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
}
