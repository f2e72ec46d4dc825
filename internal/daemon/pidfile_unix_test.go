//go:build !windows

package daemon

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_Signal_CurrentProcess(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(os.Getpid()))

	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_Stop_TerminatesChild(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	child := exec.Command("sleep", "30")
	require.NoError(t, child.Start())
	exited := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(exited)
	}()

	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(child.Process.Pid))

	pid, err := pf.Stop(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, child.Process.Pid, pid)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}
