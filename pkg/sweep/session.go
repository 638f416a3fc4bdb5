package sweep

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	DefaultSettleDelay = 100 * time.Millisecond
	DefaultDelay       = 200 * time.Millisecond
	DefaultDelayStep   = 20 * time.Millisecond
)

// Session is the running flag shared between a sweep and its classifiers.
// Listeners only ever stop it, the sweep loop only ever reads it.
type Session struct {
	running atomic.Bool
}

func NewSession() *Session {
	s := &Session{}
	s.running.Store(true)
	return s
}

// Stop is one-way; a stopped session cannot be restarted.
func (s *Session) Stop() {
	s.running.Store(false)
}

func (s *Session) Running() bool {
	return s.running.Load()
}

// StopOnCancel stops the session when ctx is done. The current candidate
// still finishes its wait. The returned func detaches the hook.
func (s *Session) StopOnCancel(ctx context.Context) (detach func() bool) {
	return context.AfterFunc(ctx, s.Stop)
}

// Countdown is the remaining wait of the in-flight candidate. Classifiers
// renew or shorten it with Set, the sweep loop consumes it in Wait.
type Countdown struct {
	remaining atomic.Int64
}

func (c *Countdown) Set(d time.Duration) {
	c.remaining.Store(int64(d))
}

func (c *Countdown) Remaining() time.Duration {
	return time.Duration(c.remaining.Load())
}

// Wait sleeps step by step until the countdown reaches zero.
func (c *Countdown) Wait(step time.Duration) {
	if step <= 0 {
		step = DefaultDelayStep
	}
	for {
		left := c.remaining.Load()
		if left <= 0 {
			return
		}
		d := min(step, time.Duration(left))
		time.Sleep(d)
		c.remaining.Add(-int64(d))
	}
}
