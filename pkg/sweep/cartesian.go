package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/rs/zerolog"
)

// Cartesian enumerates every combination of 0x00-0xFF over a set of byte
// positions. The first position varies slowest. The search space is 256^k;
// keeping k small is up to the caller.
type Cartesian struct {
	Port    bus.Port
	Session *Session
	// Delay is the wait per candidate. Classifiers may shorten or renew it.
	Delay     time.Duration
	DelayStep time.Duration
	// OnCandidate is called with the position values before each send.
	OnCandidate func(values []byte)
	Log         zerolog.Logger

	slot slot
}

func NewCartesian(port bus.Port) *Cartesian {
	return &Cartesian{
		Port:      port,
		Session:   NewSession(),
		Delay:     DefaultDelay,
		DelayStep: DefaultDelayStep,
		Log:       zerolog.Nop(),
	}
}

func validatePositions(positions []int, size int) error {
	if len(positions) == 0 {
		return errors.New("no positions to bruteforce")
	}
	seen := make(map[int]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= size {
			return fmt.Errorf("position %d outside message of %d bytes", p, size)
		}
		if seen[p] {
			return fmt.Errorf("position %d given twice", p)
		}
		seen[p] = true
	}
	return nil
}

// Run sends template, with positions filled in, to id for every combination.
// onDone is only called when the whole space has been covered.
func (c *Cartesian) Run(id uint32, positions []int, template []byte, classify Classifier, onDone func()) error {
	if c.Port == nil {
		return errors.New("cartesian sweep: no port")
	}
	if len(template) > bus.MaxDataLen {
		return fmt.Errorf("%w: template is %d bytes", bus.ErrInvalidLen, len(template))
	}
	if err := validatePositions(positions, len(template)); err != nil {
		return err
	}
	if c.Session == nil {
		c.Session = NewSession()
	}
	if classify == nil {
		classify = func(*Window, bus.Frame) {}
	}
	defer c.slot.close()

	data := append([]byte(nil), template...)
	for _, p := range positions {
		data[p] = 0
	}
	counters := make([]byte, len(positions))
	wait := &Countdown{}

	for {
		for i, p := range positions {
			data[p] = counters[i]
		}
		values := append([]byte(nil), counters...)
		frame := bus.NewFrame(id, Pad(data))
		if c.OnCandidate != nil {
			c.OnCandidate(values)
		}

		wait.Set(c.Delay)
		c.slot.open(c.Port, &Window{
			Values:   values,
			Sent:     frame,
			session:  c.Session,
			wait:     wait,
			classify: classify,
		})
		if err := c.Port.Send(frame); err != nil {
			return fmt.Errorf("send candidate % X: %w", values, err)
		}
		wait.Wait(c.DelayStep)
		if !c.Session.Running() {
			c.Log.Debug().Hex("values", values).Msg("sweep stopped")
			return nil
		}

		// odometer: the last position is the least significant digit
		i := len(counters) - 1
		for ; i >= 0; i-- {
			counters[i]++
			if counters[i] != 0 {
				break
			}
		}
		if i < 0 {
			break
		}
	}

	c.slot.close()
	if onDone != nil {
		onDone()
	}
	return nil
}
