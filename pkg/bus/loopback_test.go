package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr error
	}{
		{name: "ok", frame: Frame{ID: 0x7E0, Data: []byte{0x02, 0x10, 0x01}}},
		{name: "max id", frame: Frame{ID: MaxID}},
		{name: "extended id", frame: Frame{ID: 0x800}, wantErr: ErrInvalidID},
		{name: "too long", frame: Frame{ID: 0x1, Data: make([]byte, 9)}, wantErr: ErrInvalidLen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFrameString(t *testing.T) {
	f := Frame{ID: 0x7E8, Data: []byte{0x03, 0x7F, 0x22, 0x31}}
	assert.Equal(t, "0x7E8 [4] 03 7F 22 31", f.String())
	assert.Equal(t, byte(0), f.Byte(7))
}

func TestLoopbackDeliversNodeReplies(t *testing.T) {
	echo := func(f Frame) []Frame {
		return []Frame{{ID: f.ID + 8, Data: f.Data}}
	}
	lb := NewLoopback(echo)

	var got []Frame
	h := lb.Subscribe(func(f Frame) { got = append(got, f) })
	require.NoError(t, lb.Send(Frame{ID: 0x7E0, Data: []byte{0x01, 0x3E}}))
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0x7E8), got[0].ID)

	lb.Unsubscribe(h)
	require.NoError(t, lb.Send(Frame{ID: 0x7E0, Data: []byte{0x01, 0x3E}}))
	assert.Len(t, got, 1)
	assert.Equal(t, 0, lb.Listeners())
	assert.Len(t, lb.Sent(), 2)
}

func TestLoopbackSendFromListenerIsQueued(t *testing.T) {
	var depth, maxDepth int
	lb := NewLoopback(func(f Frame) []Frame {
		if f.Data[0] == 0x30 {
			return []Frame{{ID: 0x7E8, Data: []byte{0x21}}}
		}
		return []Frame{{ID: 0x7E8, Data: []byte{0x10}}}
	})

	var seen []byte
	lb.Subscribe(func(f Frame) {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		seen = append(seen, f.Data[0])
		if f.Data[0] == 0x10 {
			require.NoError(t, lb.Send(Frame{ID: 0x7E0, Data: []byte{0x30}}))
		}
		depth--
	})

	require.NoError(t, lb.Send(Frame{ID: 0x7E0, Data: []byte{0x01}}))
	assert.Equal(t, []byte{0x10, 0x21}, seen)
	assert.Equal(t, 1, maxDepth)
}

func TestLoopbackFailAfter(t *testing.T) {
	boom := errors.New("bus off")
	lb := NewLoopback()
	lb.FailAfter(1, boom)
	require.NoError(t, lb.Send(Frame{ID: 1}))
	assert.ErrorIs(t, lb.Send(Frame{ID: 2}), boom)
	assert.Len(t, lb.Sent(), 1)
}

func TestLoopbackRejectsInvalidFrame(t *testing.T) {
	lb := NewLoopback()
	assert.ErrorIs(t, lb.Send(Frame{ID: 0x1000}), ErrInvalidID)
	assert.Empty(t, lb.Sent())
}
