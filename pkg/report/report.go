// Package report renders discovery results for people (text) and for other
// tools (CBOR).
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/roffe/canrecon/pkg/dcm"
	"github.com/roffe/canrecon/pkg/uds"
)

type Format string

const (
	FormatText Format = "text"
	FormatCBOR Format = "cbor"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatCBOR:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q, want text or cbor", s)
}

// Write renders r in the given format.
func Write(w io.Writer, r *dcm.Report, format Format) error {
	switch format {
	case FormatCBOR:
		return WriteCBOR(w, r)
	case FormatText, "":
		return WriteText(w, r)
	}
	return fmt.Errorf("unknown report format %q", format)
}

var (
	heading = color.New(color.Bold).SprintFunc()
	found   = color.New(color.FgGreen).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func WriteText(w io.Writer, r *dcm.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s (%s) %s\n", heading("Session"), r.Session, r.Mode,
		faint(r.Finished.Sub(r.Started).Round(time.Millisecond)))
	if !r.Completed {
		fmt.Fprintln(&b, warn("scan did not cover the whole search space, results are partial"))
	}

	switch r.Mode {
	case dcm.ModeDCM:
		writeDCM(&b, r)
	case dcm.ModeServices:
		writeServices(&b, r)
	case dcm.ModeSubFunctions:
		writeSubFunctions(&b, r)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDCM(b *strings.Builder, r *dcm.Report) {
	if len(r.Blacklisted) > 0 {
		ids := make([]string, len(r.Blacklisted))
		for i, id := range r.Blacklisted {
			ids[i] = fmt.Sprintf("0x%03X", id)
		}
		fmt.Fprintf(b, "blacklisted: %s\n", strings.Join(ids, " "))
	}
	if len(r.Matches) == 0 {
		fmt.Fprintln(b, "no DCM found")
		return
	}
	fmt.Fprintf(b, "%s\n", heading(fmt.Sprintf("found %d DCM:", len(r.Matches))))
	for _, m := range r.Matches {
		fmt.Fprintf(b, "  send %s recv %s  %s\n",
			found(fmt.Sprintf("0x%03X", m.ArbitrationID)),
			found(fmt.Sprintf("0x%03X", m.ReplyID)),
			faint(firstFrame(m)))
	}
}

func writeServices(b *strings.Builder, r *dcm.Report) {
	fmt.Fprintf(b, "send 0x%03X recv 0x%03X\n", r.SendID, r.RecvID)
	if len(r.Services) == 0 {
		fmt.Fprintln(b, "no supported services found")
		return
	}
	fmt.Fprintf(b, "%s\n", heading(fmt.Sprintf("%d supported services:", len(r.Services))))
	for _, s := range r.Services {
		fmt.Fprintf(b, "  %s %s\n", found(fmt.Sprintf("0x%02X", s)), uds.ServiceName(s))
	}
}

func writeSubFunctions(b *strings.Builder, r *dcm.Report) {
	fmt.Fprintf(b, "service 0x%02X %s, send 0x%03X recv 0x%03X, positions %v\n",
		r.Service, uds.ServiceName(r.Service), r.SendID, r.RecvID, r.Positions)
	if len(r.Matches) == 0 {
		fmt.Fprintln(b, "no sub-functions found")
		return
	}
	fmt.Fprintf(b, "%s\n", heading(fmt.Sprintf("%d accepted:", len(r.Matches))))
	for _, m := range r.Matches {
		fmt.Fprintf(b, "  %s  %s\n", found(fmt.Sprintf("% X", m.Values)), describe(r.Service, m))
		if r.ShowData {
			for _, f := range m.Frames {
				fmt.Fprintf(b, "      %s\n", faint(f.String()))
			}
		}
	}
}

// describe summarises the first reply of a match.
func describe(service byte, m dcm.Match) string {
	if len(m.Frames) == 0 {
		return ""
	}
	f := m.Frames[0]
	if nrc, ok := uds.ParseNegativeResponse(f.Data); ok {
		return warn(uds.NRCName(nrc.Code))
	}
	if f.Byte(0)&0xF0 == 0x10 {
		size := int(f.Byte(0)&0x0F)<<8 | int(f.Byte(1))
		return fmt.Sprintf("positive, %d bytes in %d frames", size, len(m.Frames))
	}
	if uds.IsPositiveResponse(f.Byte(1), service) {
		return "positive"
	}
	return f.String()
}

func firstFrame(m dcm.Match) string {
	if len(m.Frames) == 0 {
		return ""
	}
	return m.Frames[0].String()
}
