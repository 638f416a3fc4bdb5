package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/dcm"
	"github.com/roffe/canrecon/pkg/report"
)

func reportFlags(cmd *cobra.Command) (report.Format, string, error) {
	raw, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(raw)
	if err != nil {
		return "", "", err
	}
	output, _ := cmd.Flags().GetString("output")
	return format, output, nil
}

func writeReport(cmd *cobra.Command, r *dcm.Report, format report.Format, output string) error {
	if output == "" {
		return report.Write(cmd.OutOrStdout(), r, format)
	}
	fh, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	color.NoColor = true
	if err := report.Write(fh, r, format); err != nil {
		fh.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info().Str("file", output).Str("format", string(format)).Msg("report written")
	return nil
}

// progress prints one status line per candidate, rewriting it in place.
type progress struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
	width int
}

func newProgress(w io.Writer, quiet bool) *progress {
	return &progress{w: w, quiet: quiet}
}

func (p *progress) update(pr dcm.Progress) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("%s: %s, %d found", pr.Mode, pr.Candidate, pr.Found)
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.width = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

func (p *progress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func parseUint(s string, limit uint64) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v > limit {
		return 0, fmt.Errorf("%s is above 0x%X", s, limit)
	}
	return v, nil
}

func parseID(s string) (uint32, error) {
	v, err := parseUint(s, bus.MaxID)
	return uint32(v), err
}

func parseIDs(in []string) ([]uint32, error) {
	out := make([]uint32, 0, len(in))
	for _, s := range in {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseIDPair(send, recv string) (uint32, uint32, error) {
	s, err := parseID(send)
	if err != nil {
		return 0, 0, fmt.Errorf("send id: %w", err)
	}
	r, err := parseID(recv)
	if err != nil {
		return 0, 0, fmt.Errorf("recv id: %w", err)
	}
	return s, r, nil
}

func parseByte(s string) (byte, error) {
	v, err := parseUint(s, 0xFF)
	return byte(v), err
}

func parsePositions(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		v, err := parseUint(a, bus.MaxDataLen-1)
		if err != nil {
			return nil, fmt.Errorf("position: %w", err)
		}
		out = append(out, int(v))
	}
	return out, nil
}
