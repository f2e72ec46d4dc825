package daemon

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPIDFile(t *testing.T) *PIDFile {
	t.Helper()
	return NewPIDFile(filepath.Join(t.TempDir(), "run", "voicelocal-serve.pid"))
}

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := newPIDFile(t)

	_, err := pf.Read()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(pf.Path), 0o755))

	for _, content := range []string{"not-a-number\n", "-4\n", ""} {
		require.NoError(t, os.WriteFile(pf.Path, []byte(content), 0o644))
		_, err := pf.Read()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PID file content")
	}
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.Acquire())
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	err := pf.Acquire()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestPIDFile_Acquire_ReplacesStaleFile(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(999999))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Release(t *testing.T) {
	pf := newPIDFile(t)

	// Nothing to release.
	require.NoError(t, pf.Release())

	// Another process's file is left alone.
	require.NoError(t, pf.WritePID(999999))
	require.NoError(t, pf.Release())
	_, err := os.Stat(pf.Path)
	assert.NoError(t, err)

	require.NoError(t, pf.Acquire())
	require.NoError(t, pf.Release())
	_, err = os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_IsRunning_DeadProcess(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(999999))

	pid, running := pf.IsRunning()
	assert.Equal(t, 999999, pid)
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pf := newPIDFile(t)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := newPIDFile(t)

	err := pf.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := newPIDFile(t)

	_, err := pf.Stop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)

	// A stale file is cleaned up.
	require.NoError(t, pf.WritePID(999999))
	_, err = pf.Stop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPIDFile_Write_CurrentPID(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}
