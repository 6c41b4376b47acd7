package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtmfin"
)

// run 执行一次命令行，返回标准输出
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	root := rootCommand(newApp())
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestGenThenListen(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "keys.wav")

	_, err := run(t, "gen", "-o", wav, "--log-level", "warn", "9*0#")
	require.NoError(t, err)

	out, err := run(t, "listen", "--file", wav, "--speed", "8", "--log-level", "warn")
	require.NoError(t, err)

	var keys []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 2, "line %q", line)
		keys = append(keys, fields[0])
	}
	assert.Equal(t, []string{"9", "*", "0", "#"}, keys)
}

func TestProbeCommand(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "keys.wav")
	_, err := run(t, "gen", "-o", wav, "--log-level", "error", "2")
	require.NoError(t, err)

	out, err := run(t, "probe", wav, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "AT")
	assert.Contains(t, out, "1336.")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "gen", "--log-level", "loud", "1")
	assert.Error(t, err)

	_, err = run(t, "--config", "/nonexistent/dtmfin.yaml", "gen", "1")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("plain")))
	err := fmt.Errorf("wrapped: %w", dtmfin.ErrDeviceUnavailable)
	assert.Equal(t, 2, exitCode(err))
}
