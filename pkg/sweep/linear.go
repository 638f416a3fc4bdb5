package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/rs/zerolog"
)

// Range is an inclusive span of candidate values.
type Range struct {
	Min int
	Max int
}

var (
	IDRange   = Range{Min: 0x000, Max: bus.MaxID}
	ByteRange = Range{Min: 0x00, Max: 0xFF}
)

func (r Range) Validate() error {
	if r.Min < 0 {
		return fmt.Errorf("invalid range: min 0x%X is negative", r.Min)
	}
	if r.Min > r.Max {
		return fmt.Errorf("invalid range: min 0x%X above max 0x%X", r.Min, r.Max)
	}
	return nil
}

func (r Range) Len() int {
	return r.Max - r.Min + 1
}

// Linear walks one dimension in ascending order, one candidate in flight at a time.
type Linear struct {
	Port    bus.Port
	Session *Session
	// SettleDelay is the fixed wait after each send.
	SettleDelay time.Duration
	// OnCandidate is called with each value before it is sent.
	OnCandidate func(v int)
	Log         zerolog.Logger

	slot slot
}

func NewLinear(port bus.Port) *Linear {
	return &Linear{
		Port:        port,
		Session:     NewSession(),
		SettleDelay: DefaultSettleDelay,
		Log:         zerolog.Nop(),
	}
}

// Run sends build(v) for every v in r. It returns early, without calling
// onExhausted, once the session is stopped. A failed send ends the sweep.
func (l *Linear) Run(r Range, build func(v int) (bus.Frame, error), classify Classifier, onExhausted func()) error {
	if l.Port == nil {
		return errors.New("linear sweep: no port")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if l.Session == nil {
		l.Session = NewSession()
	}
	if classify == nil {
		classify = func(*Window, bus.Frame) {}
	}
	defer l.slot.close()

	for v := r.Min; v <= r.Max; v++ {
		frame, err := build(v)
		if err != nil {
			return fmt.Errorf("build candidate 0x%X: %w", v, err)
		}
		if l.OnCandidate != nil {
			l.OnCandidate(v)
		}
		l.slot.open(l.Port, &Window{
			Value:    v,
			Sent:     frame,
			session:  l.Session,
			classify: classify,
		})
		if err := l.Port.Send(frame); err != nil {
			return fmt.Errorf("send candidate 0x%X: %w", v, err)
		}
		if l.SettleDelay > 0 {
			time.Sleep(l.SettleDelay)
		}
		if !l.Session.Running() {
			l.Log.Debug().Int("value", v).Msg("sweep stopped")
			return nil
		}
	}

	l.slot.close()
	l.Log.Debug().Int("min", r.Min).Int("max", r.Max).Msg("sweep exhausted")
	if onExhausted != nil {
		onExhausted()
	}
	return nil
}
