package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/dcm"
)

// document is the CBOR shape of a report. Field keys are short and stable.
type document struct {
	Session     string     `cbor:"session"`
	Mode        string     `cbor:"mode"`
	SendID      uint32     `cbor:"send_id,omitempty"`
	RecvID      uint32     `cbor:"recv_id,omitempty"`
	Service     byte       `cbor:"service,omitempty"`
	Positions   []int      `cbor:"positions,omitempty"`
	ShowData    bool       `cbor:"show_data,omitempty"`
	Services    []byte     `cbor:"services,omitempty"`
	Blacklisted []uint32   `cbor:"blacklisted,omitempty"`
	Matches     []docMatch `cbor:"matches"`
	Completed   bool       `cbor:"completed"`
	Started     time.Time  `cbor:"started"`
	Finished    time.Time  `cbor:"finished"`
}

type docMatch struct {
	ArbitrationID uint32     `cbor:"id"`
	ReplyID       uint32     `cbor:"reply_id"`
	Values        []byte     `cbor:"values,omitempty"`
	Frames        []docFrame `cbor:"frames"`
}

type docFrame struct {
	ID   uint32 `cbor:"id"`
	Data []byte `cbor:"data"`
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

func toDocument(r *dcm.Report) document {
	doc := document{
		Session:     r.Session,
		Mode:        string(r.Mode),
		SendID:      r.SendID,
		RecvID:      r.RecvID,
		Service:     r.Service,
		Positions:   r.Positions,
		ShowData:    r.ShowData,
		Services:    r.Services,
		Blacklisted: r.Blacklisted,
		Matches:     make([]docMatch, 0, len(r.Matches)),
		Completed:   r.Completed,
		Started:     r.Started,
		Finished:    r.Finished,
	}
	for _, m := range r.Matches {
		dm := docMatch{ArbitrationID: m.ArbitrationID, ReplyID: m.ReplyID, Values: m.Values}
		for _, f := range m.Frames {
			dm.Frames = append(dm.Frames, docFrame{ID: f.ID, Data: f.Data})
		}
		doc.Matches = append(doc.Matches, dm)
	}
	return doc
}

func fromDocument(doc document) *dcm.Report {
	r := &dcm.Report{
		Session:     doc.Session,
		Mode:        dcm.Mode(doc.Mode),
		SendID:      doc.SendID,
		RecvID:      doc.RecvID,
		Service:     doc.Service,
		Positions:   doc.Positions,
		ShowData:    doc.ShowData,
		Services:    doc.Services,
		Blacklisted: doc.Blacklisted,
		Completed:   doc.Completed,
		Started:     doc.Started,
		Finished:    doc.Finished,
	}
	for _, dm := range doc.Matches {
		m := dcm.Match{ArbitrationID: dm.ArbitrationID, ReplyID: dm.ReplyID, Values: dm.Values}
		for _, f := range dm.Frames {
			m.Frames = append(m.Frames, bus.NewFrame(f.ID, f.Data))
		}
		r.Matches = append(r.Matches, m)
	}
	return r
}

func WriteCBOR(w io.Writer, r *dcm.Report) error {
	return encMode.NewEncoder(w).Encode(toDocument(r))
}

// ReadCBOR decodes a report written by WriteCBOR.
func ReadCBOR(rd io.Reader) (*dcm.Report, error) {
	var doc document
	if err := cbor.NewDecoder(rd).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return fromDocument(doc), nil
}
