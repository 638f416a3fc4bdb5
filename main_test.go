package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roffe/canrecon/pkg/dcm"
	"github.com/roffe/canrecon/pkg/report"
)

func TestParseHelpers(t *testing.T) {
	id, err := parseID("0x7E0")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7E0), id)

	id, err = parseID("2016")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7E0), id)

	_, err = parseID("0x800")
	assert.Error(t, err)
	_, err = parseID("seven")
	assert.Error(t, err)

	b, err := parseByte("0x22")
	require.NoError(t, err)
	assert.Equal(t, byte(0x22), b)
	_, err = parseByte("0x100")
	assert.Error(t, err)

	pos, err := parsePositions([]string{"2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, pos)
	_, err = parsePositions([]string{"8"})
	assert.Error(t, err)

	ids, err := parseIDs([]string{"0x100", "0x7E8"})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x100, 0x7E8}, ids)

	_, _, err = parseIDPair("0x7E0", "nope")
	assert.ErrorContains(t, err, "recv id")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, false)
	p.update(dcm.Progress{Mode: dcm.ModeServices, Candidate: "0x10", Found: 0})
	p.update(dcm.Progress{Mode: dcm.ModeServices, Candidate: "0x11", Found: 1})
	p.done()
	assert.Equal(t, "\rservices: 0x10, 0 found\rservices: 0x11, 1 found\n", buf.String())

	buf.Reset()
	p = newProgress(&buf, true)
	p.update(dcm.Progress{Mode: dcm.ModeDCM, Candidate: "0x000"})
	p.done()
	assert.Empty(t, buf.String())
}

// execute runs the CLI against the simulator with zero delays.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	conf := filepath.Join(dir, "canrecon.toml")
	require.NoError(t, os.WriteFile(conf, []byte(`
[adapter]
name = "sim"

[timing]
settle_delay = "0s"
subfunction_delay = "0s"
continuation_delay = "10ms"
delay_step = "1ms"
`), 0o644))

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", conf, "--quiet"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		closeLog()
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestServicesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.txt")
	_, err := execute(t, "dcm", "services", "0x7E0", "0x7E8", "--format", "text", "--output", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "5 supported services")
	assert.Contains(t, string(data), "0x22 READ_DATA_BY_IDENTIFIER")
}

func TestSubFunctionCommandCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subfunc.cbor")
	_, err := execute(t, "dcm", "subfunc", "0x7E0", "0x7E8", "0x10", "2", "--format", "cbor", "--output", path)
	require.NoError(t, err)

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	r, err := report.ReadCBOR(fh)
	require.NoError(t, err)
	assert.Equal(t, dcm.ModeSubFunctions, r.Mode)
	assert.True(t, r.Completed)
	require.Len(t, r.Matches, 2)
	assert.Equal(t, []byte{0x01}, r.Matches[0].Values)
	assert.Equal(t, []byte{0x03}, r.Matches[1].Values)
}

func TestBadArguments(t *testing.T) {
	_, err := execute(t, "dcm", "services", "0x7E0", "0x900", "--output", "")
	assert.ErrorContains(t, err, "recv id")

	_, err = execute(t, "dcm", "discovery", "--min", "0x10", "--max", "0x01")
	assert.ErrorContains(t, err, "invalid range")
}
