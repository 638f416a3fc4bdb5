package sweep

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(0xA0 + i)
		}
		out, err := Encode(payload)
		require.NoError(t, err)
		assert.Equal(t, byte(n), out[0])
		assert.Equal(t, payload, out[1:])
	}

	_, err := Encode(make([]byte, 8))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPad(t *testing.T) {
	assert.Equal(t, []byte{0x02, 0x10, 0x01, 0, 0, 0, 0, 0}, Pad([]byte{0x02, 0x10, 0x01}))
	assert.Len(t, Pad(make([]byte, 9)), 9)
}

func idFrame(v int) (bus.Frame, error) {
	return bus.Frame{ID: uint32(v), Data: Pad(MustEncode(0x10, 0x01))}, nil
}

func TestLinearVisitsEveryValueOnce(t *testing.T) {
	lb := bus.NewLoopback()
	l := NewLinear(lb)
	l.SettleDelay = 0

	var visited []int
	l.OnCandidate = func(v int) { visited = append(visited, v) }

	exhausted := false
	err := l.Run(Range{Min: 0x10, Max: 0x2F}, idFrame, nil, func() { exhausted = true })
	require.NoError(t, err)
	assert.True(t, exhausted)

	require.Len(t, visited, 0x20)
	sent := lb.Sent()
	require.Len(t, sent, 0x20)
	for i, v := range visited {
		assert.Equal(t, 0x10+i, v)
		assert.Equal(t, uint32(0x10+i), sent[i].ID)
	}
	assert.Equal(t, 0, lb.Listeners())
}

func TestLinearCancellationStopsFurtherSends(t *testing.T) {
	lb := bus.NewLoopback(func(f bus.Frame) []bus.Frame {
		if f.ID == 0x705 {
			return []bus.Frame{{ID: 0x70D, Data: []byte{0x02, 0x50, 0x01}}}
		}
		return nil
	})
	l := NewLinear(lb)
	l.SettleDelay = 0

	var hits []int
	classify := func(w *Window, f bus.Frame) {
		if f.Byte(1) == 0x50 {
			hits = append(hits, w.Value)
			w.Stop()
		}
	}
	exhausted := false
	require.NoError(t, l.Run(Range{Min: 0x700, Max: 0x70F}, idFrame, classify, func() { exhausted = true }))

	assert.False(t, exhausted)
	assert.Equal(t, []int{0x705}, hits)
	sent := lb.Sent()
	require.Len(t, sent, 6)
	assert.Equal(t, uint32(0x705), sent[len(sent)-1].ID)
	assert.Equal(t, 0, lb.Listeners())
}

func TestLinearSendErrorIsPropagated(t *testing.T) {
	boom := errors.New("bus off")
	lb := bus.NewLoopback()
	lb.FailAfter(3, boom)
	l := NewLinear(lb)
	l.SettleDelay = 0

	err := l.Run(Range{Min: 0, Max: 10}, idFrame, nil, func() { t.Fatal("exhausted after send error") })
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "send candidate 0x3")
	assert.Equal(t, 0, lb.Listeners())
}

func TestLinearRejectsBadRange(t *testing.T) {
	l := NewLinear(bus.NewLoopback())
	assert.Error(t, l.Run(Range{Min: 5, Max: 1}, idFrame, nil, nil))
	assert.Error(t, l.Run(Range{Min: -1, Max: 1}, idFrame, nil, nil))
}

func TestStaleListenerCannotClassify(t *testing.T) {
	lb := bus.NewLoopback()
	l := NewLinear(lb)
	l.SettleDelay = 0

	var calls atomic.Int32
	classify := func(w *Window, f bus.Frame) { calls.Add(1) }
	require.NoError(t, l.Run(Range{Min: 1, Max: 3}, idFrame, classify, nil))

	lb.Inject(bus.Frame{ID: 0x7E8, Data: []byte{0x02, 0x50, 0x01}})
	assert.Equal(t, int32(0), calls.Load())
}

func TestWindowCloseIsIdempotent(t *testing.T) {
	lb := bus.NewLoopback()
	var s slot
	calls := 0
	w := s.open(lb, &Window{session: NewSession(), classify: func(*Window, bus.Frame) { calls++ }})
	lb.Inject(bus.Frame{ID: 1})
	w.Close()
	w.Close()
	s.close()
	lb.Inject(bus.Frame{ID: 1})
	assert.Equal(t, 1, calls)
	assert.True(t, w.Closed())
	assert.Equal(t, 0, lb.Listeners())
}

func TestOpeningWindowReplacesPrevious(t *testing.T) {
	lb := bus.NewLoopback()
	var s slot
	var first, second int
	a := s.open(lb, &Window{session: NewSession(), classify: func(*Window, bus.Frame) { first++ }})
	s.open(lb, &Window{session: NewSession(), classify: func(*Window, bus.Frame) { second++ }})
	lb.Inject(bus.Frame{ID: 1})
	assert.True(t, a.Closed())
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, lb.Listeners())
	s.close()
}

// countingPort records only what the cartesian test needs.
type countingPort struct {
	pairs [][2]byte
}

func (p *countingPort) Send(f bus.Frame) error {
	p.pairs = append(p.pairs, [2]byte{f.Data[2], f.Data[3]})
	return nil
}
func (p *countingPort) Subscribe(bus.Listener) bus.Handle { return 1 }
func (p *countingPort) Unsubscribe(bus.Handle)            {}

func TestCartesianEnumeratesInOrder(t *testing.T) {
	port := &countingPort{}
	c := NewCartesian(port)
	c.Delay = 0

	done := false
	require.NoError(t, c.Run(0x733, []int{2, 3}, MustEncode(0x22, 0x00, 0x00), nil, func() { done = true }))
	assert.True(t, done)

	require.Len(t, port.pairs, 256*256)
	seen := make(map[[2]byte]bool, len(port.pairs))
	for i, pair := range port.pairs {
		require.Equal(t, [2]byte{byte(i / 256), byte(i % 256)}, pair, "candidate %d", i)
		seen[pair] = true
	}
	assert.Len(t, seen, 256*256)
}

func TestCartesianResetsPositions(t *testing.T) {
	lb := bus.NewLoopback()
	c := NewCartesian(lb)
	c.Delay = 0
	c.OnCandidate = func(values []byte) {
		if values[0] == 0x02 {
			c.Session.Stop()
		}
	}
	require.NoError(t, c.Run(0x733, []int{2}, []byte{0x02, 0x10, 0xAA, 0xBB}, nil, nil))

	sent := lb.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []byte{0x02, 0x10, 0x00, 0xBB, 0, 0, 0, 0}, sent[0].Data)
	assert.Equal(t, byte(0x02), sent[2].Data[2])
}

func TestCartesianCancellationAbortsEnumeration(t *testing.T) {
	lb := bus.NewLoopback(func(f bus.Frame) []bus.Frame {
		if f.Data[2] == 0x01 && f.Data[3] == 0x02 {
			return []bus.Frame{{ID: 0x633, Data: []byte{0x03, 0x62, 0x01, 0x02}}}
		}
		return nil
	})
	c := NewCartesian(lb)
	c.Delay = 0

	var stoppedAt []byte
	classify := func(w *Window, f bus.Frame) {
		stoppedAt = w.Values
		w.Stop()
	}
	done := false
	require.NoError(t, c.Run(0x733, []int{2, 3}, MustEncode(0x22, 0x00, 0x00), classify, func() { done = true }))
	assert.False(t, done)
	assert.Equal(t, []byte{0x01, 0x02}, stoppedAt)
	assert.Len(t, lb.Sent(), 256+3)
	assert.Equal(t, 0, lb.Listeners())
}

func TestCartesianFinishSkipsRemainingWait(t *testing.T) {
	lb := bus.NewLoopback(func(f bus.Frame) []bus.Frame {
		return []bus.Frame{{ID: 0x633, Data: []byte{0x01, 0x7E}}}
	})
	c := NewCartesian(lb)
	c.Delay = 5 * time.Second

	start := time.Now()
	require.NoError(t, c.Run(0x733, []int{1}, []byte{0x01, 0x00}, func(w *Window, f bus.Frame) { w.Finish() }, nil))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, lb.Sent(), 256)
}

func TestCartesianValidatesPositions(t *testing.T) {
	c := NewCartesian(&countingPort{})
	c.Delay = 0
	tmpl := MustEncode(0x22, 0x00, 0x00)
	assert.Error(t, c.Run(1, nil, tmpl, nil, nil))
	assert.Error(t, c.Run(1, []int{2, 2}, tmpl, nil, nil))
	assert.Error(t, c.Run(1, []int{4}, tmpl, nil, nil))
	assert.ErrorIs(t, c.Run(1, []int{1}, make([]byte, 9), nil, nil), bus.ErrInvalidLen)
}

func TestCountdownRenewAndFinish(t *testing.T) {
	var c Countdown
	c.Set(2 * time.Second)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Set(0)
	}()
	start := time.Now()
	c.Wait(5 * time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.LessOrEqual(t, c.Remaining(), time.Duration(0))
}

func TestSessionStopIsOneWay(t *testing.T) {
	s := NewSession()
	assert.True(t, s.Running())
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}
