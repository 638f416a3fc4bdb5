package dcm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/sweep"
	"github.com/roffe/canrecon/pkg/uds"
)

// firstSubFunctionPosition is the first byte after the length and service id
// of a framed request.
const firstSubFunctionPosition = 2

// Discoverer runs discovery sessions against one bus port, one at a time.
type Discoverer struct {
	port bus.Port
	cfg  Config
}

func New(port bus.Port, cfg Config) *Discoverer {
	def := DefaultConfig()
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.SubFunctionDelay < 0 {
		cfg.SubFunctionDelay = def.SubFunctionDelay
	}
	if cfg.ContinuationDelay <= 0 {
		cfg.ContinuationDelay = def.ContinuationDelay
	}
	if cfg.DelayStep <= 0 {
		cfg.DelayStep = def.DelayStep
	}
	return &Discoverer{port: port, cfg: cfg}
}

// run is the per-session bookkeeping shared by the discovery modes.
type run struct {
	id      string
	log     zerolog.Logger
	session *sweep.Session
	matches *Matches
	report  *Report

	mu      sync.Mutex
	lateErr error
}

func (d *Discoverer) start(ctx context.Context, mode Mode) (*run, func()) {
	id := uuid.NewString()
	r := &run{
		id:      id,
		log:     d.cfg.Log.With().Str("session", id).Str("mode", string(mode)).Logger(),
		session: sweep.NewSession(),
		matches: &Matches{},
		report:  &Report{Session: id, Mode: mode, Started: time.Now()},
	}
	detach := r.session.StopOnCancel(ctx)
	r.log.Info().Msg("discovery started")
	return r, func() { detach() }
}

// fail records an error raised on the listener path and stops the sweep.
func (r *run) fail(err error) {
	r.mu.Lock()
	if r.lateErr == nil {
		r.lateErr = err
	}
	r.mu.Unlock()
	r.session.Stop()
}

func (r *run) finish(err error) (*Report, error) {
	r.mu.Lock()
	if err == nil {
		err = r.lateErr
	}
	r.mu.Unlock()
	r.report.Matches = r.matches.List()
	r.report.Finished = time.Now()
	ev := r.log.Info()
	if err != nil {
		ev = r.log.Error().Err(err)
	}
	ev.Int("matches", len(r.report.Matches)).Bool("completed", r.report.Completed).
		Dur("elapsed", r.report.Finished.Sub(r.report.Started)).Msg("discovery finished")
	return r.report, err
}

func (d *Discoverer) progress(mode Mode, candidate string, found int) {
	if d.cfg.OnProgress != nil {
		d.cfg.OnProgress(Progress{Mode: mode, Candidate: candidate, Found: found})
	}
}

// DCMOptions tunes arbitration ID discovery.
type DCMOptions struct {
	// Range defaults to every standard ID when nil.
	Range *sweep.Range
	// All keeps scanning after the first responding ID.
	All       bool
	Blacklist *Blacklist
}

// FindDCM sends a default session control request on every arbitration ID in
// the range and reports the IDs that answer it, positively or negatively.
func (d *Discoverer) FindDCM(ctx context.Context, opts DCMOptions) (*Report, error) {
	r, done := d.start(ctx, ModeDCM)
	defer done()
	span := sweep.IDRange
	if opts.Range != nil {
		span = *opts.Range
	}
	r.report.Blacklisted = opts.Blacklist.IDs()

	request := sweep.Pad(sweep.MustEncode(uds.DIAGNOSTIC_SESSION_CONTROL, uds.DEFAULT_SESSION))
	build := func(v int) (bus.Frame, error) {
		return bus.Frame{ID: uint32(v), Data: request}, nil
	}
	classify := func(w *sweep.Window, f bus.Frame) {
		if opts.Blacklist.Contains(f.ID) || !looksLikeDCMReply(f) {
			return
		}
		if w.State != nil {
			return
		}
		w.State = f.ID
		r.matches.Add(&Match{ArbitrationID: uint32(w.Value), ReplyID: f.ID, Frames: []bus.Frame{f}})
		r.log.Info().Str("id", fmt.Sprintf("0x%03X", w.Value)).Str("reply", fmt.Sprintf("0x%03X", f.ID)).Msg("found DCM")
		if !opts.All {
			w.Stop()
		}
	}

	l := d.linear(r)
	l.OnCandidate = func(v int) {
		d.progress(ModeDCM, fmt.Sprintf("0x%03X", v), r.matches.Len())
	}
	err := l.Run(span, build, classify, func() {
		r.report.Completed = true
	})
	return r.finish(err)
}

// Services probes every service id on sendID and lists those the ECU on
// recvID does not reject with serviceNotSupported.
func (d *Discoverer) Services(ctx context.Context, sendID, recvID uint32) (*Report, error) {
	r, done := d.start(ctx, ModeServices)
	defer done()
	r.report.SendID, r.report.RecvID = sendID, recvID

	seen := make(map[byte]bool)
	template := sweep.MustEncode(0x00)
	const serviceIndex = 1

	build := func(v int) (bus.Frame, error) {
		data := append([]byte(nil), template...)
		data[serviceIndex] = byte(v)
		return bus.Frame{ID: sendID, Data: sweep.Pad(data)}, nil
	}
	classify := func(w *sweep.Window, f bus.Frame) {
		if f.ID != recvID {
			return
		}
		service := byte(w.Value)
		if nrc, ok := uds.ParseNegativeResponse(f.Data); ok {
			if uds.Contains(uds.ServiceRejectCodes, nrc.Code) {
				return
			}
			service = nrc.Service
		}
		if seen[service] {
			return
		}
		seen[service] = true
		r.report.Services = append(r.report.Services, service)
		r.matches.Add(&Match{ArbitrationID: sendID, ReplyID: f.ID, Values: []byte{service}, Frames: []bus.Frame{f}})
		r.log.Debug().Str("service", fmt.Sprintf("0x%02X", service)).Str("name", uds.ServiceName(service)).Msg("service supported")
	}

	l := d.linear(r)
	l.OnCandidate = func(v int) {
		d.progress(ModeServices, fmt.Sprintf("0x%02X", v), r.matches.Len())
	}
	err := l.Run(sweep.ByteRange, build, classify, func() {
		r.report.Completed = true
	})
	return r.finish(err)
}

// SubFunctionOptions selects the request and positions to bruteforce.
type SubFunctionOptions struct {
	Service byte
	SendID  uint32
	RecvID  uint32
	// Positions index the framed request; 0 is the length byte, 1 the service.
	Positions []int
	// ShowData requests the remainder of multi-frame replies instead of dropping it.
	ShowData bool
}

// SubFunctionTemplate returns the framed request [len, service, 0...] long
// enough to hold every position.
func SubFunctionTemplate(service byte, positions []int) ([]byte, error) {
	payloadLen := 3
	for _, p := range positions {
		if p < firstSubFunctionPosition {
			return nil, fmt.Errorf("position %d would overwrite the length or service byte", p)
		}
		payloadLen = max(payloadLen, p)
	}
	payload := make([]byte, payloadLen)
	payload[0] = service
	return sweep.Encode(payload)
}

// SubFunctions bruteforces the given positions of a request for service and
// records every combination the ECU accepts.
func (d *Discoverer) SubFunctions(ctx context.Context, opts SubFunctionOptions) (*Report, error) {
	r, done := d.start(ctx, ModeSubFunctions)
	defer done()
	r.report.SendID, r.report.RecvID = opts.SendID, opts.RecvID
	r.report.Service = opts.Service
	r.report.Positions = slices.Clone(opts.Positions)
	r.report.ShowData = opts.ShowData

	template, err := SubFunctionTemplate(opts.Service, opts.Positions)
	if err != nil {
		return r.finish(err)
	}

	classify := func(w *sweep.Window, f bus.Frame) {
		ra, _ := w.State.(*Reassembler)
		if ra == nil {
			ra = NewReassembler(r.matches)
			ra.Service = opts.Service
			ra.SendID = opts.SendID
			ra.RecvID = opts.RecvID
			ra.ShowData = opts.ShowData
			ra.Continuation = d.cfg.ContinuationDelay
			ra.Values = w.Values
			w.State = ra
		}
		before := ra.State()
		if err := ra.Feed(w, f); err != nil {
			r.fail(err)
			return
		}
		if before != ra.State() {
			r.log.Trace().Hex("values", w.Values).Stringer("state", ra.State()).Str("frame", f.String()).Msg("reassembly")
		}
	}

	c := sweep.NewCartesian(d.port)
	c.Session = r.session
	c.Delay = d.cfg.SubFunctionDelay
	c.DelayStep = d.cfg.DelayStep
	c.Log = r.log
	c.OnCandidate = func(values []byte) {
		d.progress(ModeSubFunctions, fmt.Sprintf("0x%02X % X", opts.Service, values), r.matches.Len())
	}
	err = c.Run(opts.SendID, opts.Positions, template, classify, func() {
		r.report.Completed = true
	})
	return r.finish(err)
}

func (d *Discoverer) linear(r *run) *sweep.Linear {
	l := sweep.NewLinear(d.port)
	l.Session = r.session
	l.SettleDelay = d.cfg.SettleDelay
	l.Log = r.log
	return l
}
