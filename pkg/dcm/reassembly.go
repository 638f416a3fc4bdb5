package dcm

import (
	"fmt"
	"time"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/uds"
)

// ISO-TP protocol control information, high nibble of the first byte.
const (
	pciSingleFrame      = 0x00
	pciFirstFrame       = 0x10
	pciConsecutiveFrame = 0x20

	// FlowControlContinue asks the ECU for the rest of a segmented reply.
	FlowControlContinue = 0x30
	// FlowControlAbort tells the ECU to drop the rest of a segmented reply.
	FlowControlAbort = 0x32
)

type ReassemblyState int

const (
	AwaitingFirst ReassemblyState = iota
	AwaitingContinuation
	Complete
	Aborted
)

func (s ReassemblyState) String() string {
	switch s {
	case AwaitingFirst:
		return "awaiting first"
	case AwaitingContinuation:
		return "awaiting continuation"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("ReassemblyState(%d)", int(s))
	}
}

// window is the part of sweep.Window the reassembler drives.
type window interface {
	Finish()
	Extend(time.Duration)
	Send(data []byte) error
}

// Reassembler follows the reply to a single sub-function candidate. It lives
// as long as the candidate's response window.
type Reassembler struct {
	Service  byte
	RecvID   uint32
	ShowData bool
	// Continuation is the wait granted for each segment of a multi-frame reply.
	Continuation time.Duration
	// Values identifies the candidate recorded with the match.
	Values []byte
	SendID uint32

	matches *Matches
	state   ReassemblyState
	match   *Match
}

func NewReassembler(matches *Matches) *Reassembler {
	return &Reassembler{matches: matches, Continuation: time.Second}
}

func (r *Reassembler) State() ReassemblyState {
	return r.state
}

// Match returns the match being assembled, nil when nothing was accepted.
func (r *Reassembler) Match() *Match {
	return r.match
}

// accepted reports whether a single frame reply accepts the candidate.
func (r *Reassembler) accepted(f bus.Frame) bool {
	// only single frames; a first frame or stray consecutive frame may carry
	// the echo byte by accident
	if f.Byte(0)&0xF0 != pciSingleFrame {
		return false
	}
	if uds.IsPositiveResponse(f.Byte(1), r.Service) {
		return true
	}
	return f.Byte(1) == uds.NEGATIVE_RESPONSE && !uds.Contains(uds.SubFunctionRejectCodes, f.Byte(3))
}

func (r *Reassembler) record(f bus.Frame) *Match {
	return r.matches.Add(&Match{
		ArbitrationID: r.SendID,
		ReplyID:       f.ID,
		Values:        append([]byte(nil), r.Values...),
		Frames:        []bus.Frame{f},
	})
}

// Feed advances the state machine by one inbound frame. Frames from other IDs
// and frames arriving once the reply is complete are ignored. An unexpected
// frame marks the candidate Aborted but a later accepted reply in the same
// window still counts. The only error is a failed flow control send.
func (r *Reassembler) Feed(w window, f bus.Frame) error {
	if f.ID != r.RecvID {
		return nil
	}
	switch r.state {
	case AwaitingFirst, Aborted:
		switch {
		case f.Byte(0)&0xF0 == pciFirstFrame:
			r.match = r.record(f)
			r.state = AwaitingContinuation
			w.Extend(r.Continuation)
			fc := byte(FlowControlAbort)
			if r.ShowData {
				fc = FlowControlContinue
			}
			if err := w.Send([]byte{fc}); err != nil {
				return fmt.Errorf("send flow control: %w", err)
			}
		case r.accepted(f):
			r.match = r.record(f)
			r.state = Complete
			w.Finish()
		default:
			r.state = Aborted
		}
	case AwaitingContinuation:
		if f.Byte(0)&0xF0 == pciConsecutiveFrame {
			r.matches.Append(r.match, f)
			w.Extend(r.Continuation)
			return nil
		}
		w.Finish()
		r.state = Complete
	}
	return nil
}
