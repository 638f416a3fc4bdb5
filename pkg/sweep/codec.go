package sweep

import (
	"errors"
	"fmt"

	"github.com/roffe/canrecon/pkg/bus"
)

// MaxPayload is the largest payload that fits a single frame behind its length byte.
const MaxPayload = bus.MaxDataLen - 1

var ErrPayloadTooLarge = errors.New("payload too large")

// Encode prepends the payload length, ISO-TP single frame style.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: data can only contain up to %d bytes: %d", ErrPayloadTooLarge, MaxPayload, len(payload))
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(len(payload)))
	return append(out, payload...), nil
}

// MustEncode is Encode for payloads known to fit.
func MustEncode(payload ...byte) []byte {
	out, err := Encode(payload)
	if err != nil {
		panic(err)
	}
	return out
}

// Pad zero fills data to a full frame. Longer data is copied unchanged.
func Pad(data []byte) []byte {
	n := max(len(data), bus.MaxDataLen)
	out := make([]byte, n)
	copy(out, data)
	return out
}
