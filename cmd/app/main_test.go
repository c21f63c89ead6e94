package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestReplayCommandPrintsWarmResults(t *testing.T) {
	in := strings.Repeat("0,0,0,0,0\n", 11)
	out, errOut, err := run(t, in, "replay", "--preset", "generic")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "STABLE", first["label"])
	assert.Equal(t, 0.9, first["confidence"])

	assert.Contains(t, errOut, `"rows": 11`)
	assert.Contains(t, errOut, `"warm": 2`)
}

func TestReplayCommandQuietAndWindow(t *testing.T) {
	in := strings.Repeat("0,0,0,0,0\n", 4)
	out, errOut, err := run(t, in, "replay", "-q", "-n", "3")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, `"warm": 2`)
}

func TestReplayCommandUnknownPreset(t *testing.T) {
	_, _, err := run(t, "", "replay", "--preset", "glider")
	assert.Error(t, err)
}

func TestBCDCommands(t *testing.T) {
	out, _, err := run(t, "", "bcd", "encode", "12345")
	require.NoError(t, err)
	assert.Equal(t, "0010010001101000101\n", out)

	out, _, err = run(t, "", "bcd", "decode", "001 0010 0011 0100 0101")
	require.NoError(t, err)
	assert.Equal(t, "12345\n", out)

	_, _, err = run(t, "", "bcd", "encode", "90000")
	assert.Error(t, err)
}
