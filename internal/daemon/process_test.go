package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "clipsync.pid")

	_, err := ReadPIDFile(path)
	assert.Error(t, err)

	require.NoError(t, WritePIDFile(path, 1234))
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	_, err = ReadPIDFile(path)
	assert.ErrorContains(t, err, "invalid PID")

	RemovePIDFile(path)
	RemovePIDFile(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipsync.pid")

	_, ok := Running(path)
	assert.False(t, ok)

	require.NoError(t, WritePIDFile(path, os.Getpid()))
	pid, ok := Running(path)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)

	// pid_max on Linux is at most 2^22
	require.NoError(t, WritePIDFile(path, 1<<23))
	_, ok = Running(path)
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stale pid file is removed")
}

func TestStopNotRunning(t *testing.T) {
	_, err := Stop(filepath.Join(t.TempDir(), "none.pid"))
	assert.ErrorIs(t, err, ErrNotRunning)
}
