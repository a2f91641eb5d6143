package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowstate/internal/config"
	"github.com/petrijr/flowstate/pkg/api"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd, err := newRootCmd()
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--env-file", t.TempDir()+"/missing.env"))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestKeysParse(t *testing.T) {
	out, _, err := execute(t, "keys", "parse", "_c1_k2", "_cabc_k10")
	require.NoError(t, err)
	assert.Equal(t, "conversation=1 snapshot=2\nconversation=abc snapshot=10\n", out)

	_, _, err = execute(t, "keys", "parse", "c1k2")
	require.ErrorIs(t, err, api.ErrBadlyFormattedKey)
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("FLOWSTATE_MAX_CONTINUATIONS", "7")
	out, _, err := execute(t, "config", "--store", "sqlite", "--sqlite-path", ":memory:")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "sqlite", got["store"])
	assert.Equal(t, ":memory:", got["sqlite_path"])
	assert.EqualValues(t, 7, got["max_continuations"])
	assert.NotContains(t, got, "PostgresDSN")
}

func TestInvalidStoreIsRejected(t *testing.T) {
	_, _, err := execute(t, "config", "--store", "tape")
	require.ErrorIs(t, err, config.ErrStoreInvalid)
}

func TestDemo(t *testing.T) {
	backends := [][]string{
		{"--store", "memory"},
		{"--store", "sqlite", "--sqlite-path", ":memory:", "--compress"},
		{"--store", "blob", "--blob-url", "mem://"},
	}
	for _, backend := range backends {
		t.Run(backend[1], func(t *testing.T) {
			args := append([]string{"demo", "--users", "3", "--back", "--log-level", "error"}, backend...)
			out, _, err := execute(t, args...)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			require.Len(t, lines, 1+3*4)
			assert.True(t, strings.HasPrefix(lines[0], "USER"))

			confirmed := 0
			for _, line := range lines[1:] {
				if strings.Contains(line, "confirm") {
					confirmed++
					assert.Contains(t, line, "booked")
					assert.Regexp(t, `BK-USER-\d`, line)
				}
			}
			assert.Equal(t, 3, confirmed)
		})
	}
}

func TestDemo_RejectsZeroUsers(t *testing.T) {
	_, _, err := execute(t, "demo", "--users", "0")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])

	buf.Reset()
	newLogger("nope", "text", &buf).Debug("hidden")
	assert.Empty(t, buf.String())
	newLogger("debug", "text", &buf).Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
