package dcm

import (
	"context"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/roffe/canrecon/pkg/bus"
)

// Blacklist holds arbitration IDs whose traffic is ignored by DCM discovery.
// Entries expire after ttl; a zero ttl keeps them for the life of the list.
type Blacklist struct {
	cache *ttlcache.Cache[uint32, struct{}]
}

func NewBlacklist(ttl time.Duration, ids ...uint32) *Blacklist {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	b := &Blacklist{
		cache: ttlcache.New[uint32, struct{}](
			ttlcache.WithTTL[uint32, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[uint32, struct{}](),
		),
	}
	for _, id := range ids {
		b.Add(id)
	}
	return b
}

func (b *Blacklist) Add(id uint32) {
	b.cache.Set(id, struct{}{}, ttlcache.DefaultTTL)
}

func (b *Blacklist) Contains(id uint32) bool {
	if b == nil {
		return false
	}
	return b.cache.Has(id)
}

// IDs returns the live entries in ascending order.
func (b *Blacklist) IDs() []uint32 {
	if b == nil {
		return nil
	}
	var ids []uint32
	for _, id := range b.cache.Keys() {
		if b.cache.Has(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (b *Blacklist) Len() int {
	return len(b.IDs())
}

// looksLikeDCMReply is the reply shape DCM discovery accepts.
func looksLikeDCMReply(f bus.Frame) bool {
	return f.Byte(1) == 0x50 || f.Byte(1) == 0x7F
}

// AutoBlacklist listens to the bus for d without sending anything and adds
// every ID whose traffic would pass as a DCM reply. It returns the number of
// IDs added.
func AutoBlacklist(ctx context.Context, port bus.Port, d time.Duration, bl *Blacklist) (int, error) {
	found := make(chan uint32, 64)
	h := port.Subscribe(func(f bus.Frame) {
		if looksLikeDCMReply(f) {
			select {
			case found <- f.ID:
			default:
			}
		}
	})
	defer port.Unsubscribe(h)

	timer := time.NewTimer(d)
	defer timer.Stop()

	added := 0
	for {
		select {
		case id := <-found:
			if !bl.Contains(id) {
				bl.Add(id)
				added++
			}
		case <-timer.C:
			// frames that raced the timer
			for {
				select {
				case id := <-found:
					if !bl.Contains(id) {
						bl.Add(id)
						added++
					}
				default:
					return added, nil
				}
			}
		case <-ctx.Done():
			return added, ctx.Err()
		}
	}
}
