//go:build unix

package process_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/coro"
	"github.com/momentics/coopio/process"
	"github.com/momentics/coopio/reactor"
)

func newRuntime(t *testing.T) (*coro.Scheduler, *process.Supervisor) {
	t.Helper()
	s := coro.NewScheduler()
	r, err := reactor.NewWithBackend("select", func(fn func()) { s.Go(fn) })
	require.NoError(t, err)
	s.SetReactor(r)
	t.Cleanup(r.Stop)
	return s, process.NewSupervisor(s)
}

func TestForkAndWaitExitCode(t *testing.T) {
	s, sup := newRuntime(t)

	pid, err := sup.Fork("/bin/sh", "-c", "sleep 0.2; exit 127")
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	code, err := sup.Wait(pid)
	require.NoError(t, err)
	assert.Equal(t, 127, code)

	// With no subscribers left the SIGCHLD watcher is released.
	assert.False(t, s.Reactor().IsActive())
}

func TestForkFromTask(t *testing.T) {
	s, sup := newRuntime(t)
	var code int
	var err error
	s.Go(func() {
		var pid int
		pid, err = sup.Fork("/bin/sh", "-c", "exit 3")
		if err != nil {
			return
		}
		code, err = sup.Wait(pid)
	})
	require.NoError(t, s.Run())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestWaitReturnsNegativeSignal(t *testing.T) {
	_, sup := newRuntime(t)

	pid, err := sup.Fork("/bin/sh", "-c", "sleep 5")
	require.NoError(t, err)
	require.NoError(t, sup.Signal(pid, unix.SIGKILL))

	code, err := sup.Wait(pid)
	require.NoError(t, err)
	assert.Equal(t, -int(unix.SIGKILL), code)
}

func TestForkEmptyArgv(t *testing.T) {
	_, sup := newRuntime(t)
	_, err := sup.Fork()
	require.Error(t, err)
}

func TestForkUnknownBinary(t *testing.T) {
	_, sup := newRuntime(t)
	_, err := sup.Fork("definitely-not-a-real-binary-coopio")
	require.Error(t, err)
}

func TestForkedHookRegistration(t *testing.T) {
	_, sup := newRuntime(t)
	called := false
	sup.Forked(func() { called = true })
	// Hooks run on the child side via RunChild; registration itself
	// must not invoke them.
	assert.False(t, called)
}
