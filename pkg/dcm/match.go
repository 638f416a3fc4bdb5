package dcm

import (
	"sync"
	"time"

	"github.com/roffe/canrecon/pkg/bus"
)

type Mode string

const (
	ModeDCM          Mode = "dcm"
	ModeServices     Mode = "services"
	ModeSubFunctions Mode = "subfunc"
)

// Match is a candidate that got an accepted reply, with the frames captured for it.
type Match struct {
	// ArbitrationID is the ID the candidate was sent on.
	ArbitrationID uint32
	// ReplyID is the ID of the first accepted reply.
	ReplyID uint32
	// Values holds the candidate byte(s) for service and sub-function scans.
	Values []byte
	Frames []bus.Frame
}

// Matches is the ordered result set of a session. Classifiers add to it while
// a window is open; Add returns the handle later frames are appended to.
type Matches struct {
	mu    sync.Mutex
	items []*Match
}

func (m *Matches) Add(match *Match) *Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, match)
	return match
}

// Append adds a frame to an in-progress match returned by Add.
func (m *Matches) Append(match *Match, f bus.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match.Frames = append(match.Frames, f)
}

func (m *Matches) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// List returns copies of the matches in discovery order.
func (m *Matches) List() []Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Match, 0, len(m.items))
	for _, it := range m.items {
		c := *it
		c.Values = append([]byte(nil), it.Values...)
		c.Frames = append([]bus.Frame(nil), it.Frames...)
		out = append(out, c)
	}
	return out
}

// Report is the outcome of one discovery session. It is returned even when
// the session was interrupted or failed, holding whatever was found.
type Report struct {
	Session   string
	Mode      Mode
	SendID    uint32
	RecvID    uint32
	Service   byte
	Positions []int
	ShowData  bool
	// Services lists supported service ids, services mode only.
	Services []byte
	Matches  []Match
	// Blacklisted IDs were ignored during the scan.
	Blacklisted []uint32
	// Completed is true when the whole search space was covered.
	Completed bool
	Started   time.Time
	Finished  time.Time
}
