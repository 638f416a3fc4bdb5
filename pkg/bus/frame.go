package bus

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxID is the highest standard (11-bit) arbitration ID. Extended IDs are not used.
	MaxID = 0x7FF
	// MaxDataLen is the payload capacity of a classic CAN frame.
	MaxDataLen = 8
)

var (
	ErrInvalidID  = errors.New("bus: invalid arbitration id")
	ErrInvalidLen = errors.New("bus: invalid data length")
)

// Frame is a classic CAN data frame with a standard identifier.
type Frame struct {
	ID   uint32
	Data []byte
}

func NewFrame(id uint32, data []byte) Frame {
	return Frame{ID: id, Data: append([]byte(nil), data...)}
}

func (f Frame) Validate() error {
	if f.ID > MaxID {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.ID)
	}
	if len(f.Data) > MaxDataLen {
		return fmt.Errorf("%w: %d", ErrInvalidLen, len(f.Data))
	}
	return nil
}

// Byte returns data byte i, or 0 when the frame is shorter.
func (f Frame) Byte(i int) byte {
	if i < 0 || i >= len(f.Data) {
		return 0
	}
	return f.Data[i]
}

func (f Frame) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "0x%03X [%d]", f.ID, len(f.Data))
	for _, b := range f.Data {
		fmt.Fprintf(&out, " %02X", b)
	}
	return out.String()
}
