package dcm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roffe/canrecon/pkg/bus"
)

func TestBlacklist(t *testing.T) {
	bl := NewBlacklist(0, 0x7E8, 0x100)
	assert.True(t, bl.Contains(0x7E8))
	assert.False(t, bl.Contains(0x7E0))
	bl.Add(0x050)
	assert.Equal(t, []uint32{0x050, 0x100, 0x7E8}, bl.IDs())
	assert.Equal(t, 3, bl.Len())

	var none *Blacklist
	assert.False(t, none.Contains(0x7E8))
	assert.Nil(t, none.IDs())
}

func TestBlacklistExpires(t *testing.T) {
	bl := NewBlacklist(20*time.Millisecond, 0x7E8)
	assert.True(t, bl.Contains(0x7E8))
	assert.Eventually(t, func() bool {
		return !bl.Contains(0x7E8)
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, bl.IDs())
}

func TestLooksLikeDCMReply(t *testing.T) {
	assert.True(t, looksLikeDCMReply(frame(0x7E8, 0x02, 0x50, 0x01)))
	assert.True(t, looksLikeDCMReply(frame(0x7E8, 0x03, 0x7F, 0x10, 0x11)))
	assert.False(t, looksLikeDCMReply(frame(0x7E8, 0x02, 0x62, 0x01)))
	assert.False(t, looksLikeDCMReply(frame(0x7E8, 0x50)))
}

func TestAutoBlacklist(t *testing.T) {
	lb := bus.NewLoopback()
	bl := NewBlacklist(0, 0x100)

	go func() {
		for i := 0; i < 5; i++ {
			lb.Inject(
				frame(0x100, 0x02, 0x50, 0x01),
				frame(0x3A0, 0x08, 0x7F, 0x00, 0x00),
				frame(0x3A1, 0x11, 0x22, 0x33),
			)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	added, err := AutoBlacklist(context.Background(), lb, 100*time.Millisecond, bl)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []uint32{0x100, 0x3A0}, bl.IDs())
	assert.Zero(t, lb.Listeners())
}

func TestAutoBlacklistCancel(t *testing.T) {
	lb := bus.NewLoopback()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AutoBlacklist(ctx, lb, time.Hour, NewBlacklist(0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, lb.Listeners())
}
