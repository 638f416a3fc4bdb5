package bus

// Listener receives inbound frames. It is called on the port's delivery path,
// which may run concurrently with the goroutine that sends.
type Listener func(Frame)

// Handle identifies a subscription.
type Handle uint64

// Port is the link layer the discovery engine drives.
type Port interface {
	Send(Frame) error
	Subscribe(Listener) Handle
	Unsubscribe(Handle)
}

// listenerSet is the subscription table shared by the port implementations.
type listenerSet struct {
	next      Handle
	listeners map[Handle]Listener
	order     []Handle
}

func (s *listenerSet) add(l Listener) Handle {
	if s.listeners == nil {
		s.listeners = make(map[Handle]Listener)
	}
	s.next++
	s.listeners[s.next] = l
	s.order = append(s.order, s.next)
	return s.next
}

func (s *listenerSet) remove(h Handle) {
	if _, ok := s.listeners[h]; !ok {
		return
	}
	delete(s.listeners, h)
	for i, o := range s.order {
		if o == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// snapshot returns the listeners in subscription order.
func (s *listenerSet) snapshot() []Listener {
	out := make([]Listener, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.listeners[h])
	}
	return out
}

func (s *listenerSet) len() int {
	return len(s.listeners)
}
