// Package ecusim is a small UDS responder that sits on a loopback bus. It
// answers single frame requests, segments long replies and honours flow
// control, which is enough to exercise every discovery mode without hardware.
package ecusim

import (
	"sync"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/uds"
)

type ECU struct {
	RequestID  uint32
	ResponseID uint32
	// Services the ECU implements; everything else gets serviceNotSupported.
	Services map[byte]bool
	// Sessions accepted by diagnostic session control.
	Sessions map[byte]bool
	// Data holds the records served by read data by identifier.
	Data map[uint16][]byte

	mu      sync.Mutex
	pending []byte
	seq     byte
}

// Default returns an ECU on 0x7E0/0x7E8 with a VIN long enough to need
// segmentation.
func Default() *ECU {
	return &ECU{
		RequestID:  0x7E0,
		ResponseID: 0x7E8,
		Services: map[byte]bool{
			uds.DIAGNOSTIC_SESSION_CONTROL: true,
			uds.ECU_RESET:                  true,
			uds.READ_DATA_BY_IDENTIFIER:    true,
			uds.SECURITY_ACCESS:            true,
			uds.TESTER_PRESENT:             true,
		},
		Sessions: map[byte]bool{
			uds.DEFAULT_SESSION:  true,
			uds.EXTENDED_SESSION: true,
		},
		Data: map[uint16][]byte{
			0xF190: []byte("YS3FD49Y241012345"),
			0xF18C: {0x12, 0x34},
		},
	}
}

// Node attaches the ECU to a loopback bus.
func (e *ECU) Node() bus.Node {
	return e.handle
}

func (e *ECU) handle(f bus.Frame) []bus.Frame {
	if f.ID != e.RequestID || len(f.Data) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch f.Data[0] & 0xF0 {
	case 0x30:
		return e.flowControl(f.Data[0])
	case 0x00:
		n := int(f.Data[0] & 0x0F)
		if n == 0 || n >= len(f.Data) {
			return nil
		}
		e.pending = nil
		return e.segment(e.respond(f.Data[1 : 1+n]))
	}
	return nil
}

func (e *ECU) flowControl(fc byte) []bus.Frame {
	if fc != 0x30 {
		// overflow/abort
		e.pending = nil
		return nil
	}
	var out []bus.Frame
	for len(e.pending) > 0 {
		e.seq = (e.seq + 1) & 0x0F
		n := min(7, len(e.pending))
		data := make([]byte, 8)
		data[0] = 0x20 | e.seq
		copy(data[1:], e.pending[:n])
		e.pending = e.pending[n:]
		out = append(out, bus.Frame{ID: e.ResponseID, Data: data})
	}
	return out
}

func (e *ECU) segment(resp []byte) []bus.Frame {
	if resp == nil {
		return nil
	}
	data := make([]byte, 8)
	if len(resp) <= 7 {
		data[0] = byte(len(resp))
		copy(data[1:], resp)
		return []bus.Frame{{ID: e.ResponseID, Data: data}}
	}
	data[0] = 0x10 | byte(len(resp)>>8)&0x0F
	data[1] = byte(len(resp))
	copy(data[2:], resp[:6])
	e.pending = append([]byte(nil), resp[6:]...)
	e.seq = 0
	return []bus.Frame{{ID: e.ResponseID, Data: data}}
}

func negative(service, code byte) []byte {
	return []byte{uds.NEGATIVE_RESPONSE, service, code}
}

func (e *ECU) respond(req []byte) []byte {
	sid := req[0]
	if !e.Services[sid] {
		return negative(sid, uds.SERVICE_NOT_SUPPORTED)
	}
	pos := sid + uds.POSITIVE_RESPONSE_OFFSET
	switch sid {
	case uds.DIAGNOSTIC_SESSION_CONTROL:
		if len(req) < 2 {
			return negative(sid, uds.INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT)
		}
		if !e.Sessions[req[1]] {
			return negative(sid, uds.SUB_FUNCTION_NOT_SUPPORTED)
		}
		return []byte{pos, req[1], 0x00, 0x32, 0x01, 0xF4}
	case uds.ECU_RESET:
		if len(req) < 2 || req[1] != 0x01 {
			return negative(sid, uds.SUB_FUNCTION_NOT_SUPPORTED)
		}
		return []byte{pos, req[1]}
	case uds.TESTER_PRESENT:
		return []byte{pos, 0x00}
	case uds.READ_DATA_BY_IDENTIFIER:
		if len(req) < 3 {
			return negative(sid, uds.INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT)
		}
		did := uint16(req[1])<<8 | uint16(req[2])
		record, ok := e.Data[did]
		if !ok {
			return negative(sid, uds.REQUEST_OUT_OF_RANGE)
		}
		return append([]byte{pos, req[1], req[2]}, record...)
	case uds.SECURITY_ACCESS:
		return negative(sid, uds.CONDITIONS_NOT_CORRECT)
	}
	return negative(sid, uds.REQUEST_OUT_OF_RANGE)
}
