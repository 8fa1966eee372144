package main

import (
	"bytes"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// childArgsEnv makes the test binary act as radterm with the given flags.
const childArgsEnv = "RADTERM_CHILD_ARGS"

func TestMain(m *testing.M) {
	if args, ok := os.LookupEnv(childArgsEnv); ok {
		os.Exit(run(strings.Fields(args), os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// child is radterm running in its own process group with a pty as its
// keyboard and another pty as its serial device.
type child struct {
	cmd    *exec.Cmd
	tty    *os.File
	before unix.Termios
	out    *syncBuffer
}

func startChild(t *testing.T) *child {
	t.Helper()
	devMaster, devSlave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { devMaster.Close(); devSlave.Close() })

	ttyMaster, ttySlave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { ttyMaster.Close(); ttySlave.Close() })

	c := &child{tty: ttySlave, out: &syncBuffer{}}
	c.before = c.termios(t)
	require.NotZero(t, c.before.Lflag&unix.ICANON)

	c.cmd = exec.Command(os.Args[0])
	c.cmd.Env = append(os.Environ(), childArgsEnv+"=-p "+devSlave.Name())
	c.cmd.Stdin = ttySlave
	c.cmd.Stdout = c.out
	c.cmd.Stderr = c.out
	c.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, c.cmd.Start())
	t.Cleanup(func() { c.cmd.Process.Kill() })

	require.Eventually(t, c.raw, 5*time.Second, 10*time.Millisecond, "output: %s", c.out.String())
	return c
}

func (c *child) termios(t *testing.T) unix.Termios {
	t.Helper()
	tio, err := unix.IoctlGetTermios(int(c.tty.Fd()), unix.TCGETS)
	require.NoError(t, err)
	return *tio
}

func (c *child) raw() bool {
	tio, err := unix.IoctlGetTermios(int(c.tty.Fd()), unix.TCGETS)
	return err == nil && tio.Lflag&(unix.ICANON|unix.ECHO) == 0
}

func (c *child) restored() bool {
	tio, err := unix.IoctlGetTermios(int(c.tty.Fd()), unix.TCGETS)
	return err == nil && *tio == c.before
}

// stopped reports whether the process is in the stopped state.
func (c *child) stopped() bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(c.cmd.Process.Pid) + "/stat")
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name.
	i := bytes.LastIndexByte(stat, ')')
	return i >= 0 && i+2 < len(stat) && stat[i+2] == 'T'
}

func (c *child) wait(t *testing.T) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for radterm to exit; output: %s", c.out.String())
		return nil
	}
}

func TestSignalsRestoreTerminal(t *testing.T) {
	tests := []struct {
		name string
		sig  syscall.Signal
	}{
		{"interrupt", syscall.SIGINT},
		{"quit", syscall.SIGQUIT},
		{"terminate", syscall.SIGTERM},
		{"hangup", syscall.SIGHUP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startChild(t)

			require.NoError(t, c.cmd.Process.Signal(tt.sig))
			require.NoError(t, c.wait(t), "output: %s", c.out.String())

			require.Equal(t, c.before, c.termios(t))
			require.Contains(t, c.out.String(), "Closing the connection.")
		})
	}
}

func TestSuspendRestoresTerminal(t *testing.T) {
	c := startChild(t)

	require.NoError(t, c.cmd.Process.Signal(syscall.SIGTSTP))
	require.Eventually(t, func() bool {
		return c.stopped() && c.restored()
	}, 5*time.Second, 10*time.Millisecond, "terminal left raw while stopped")

	require.NoError(t, c.cmd.Process.Signal(syscall.SIGCONT))
	require.Eventually(t, c.raw, 5*time.Second, 10*time.Millisecond, "raw mode not re-entered after resume")

	require.NoError(t, c.cmd.Process.Signal(syscall.SIGINT))
	require.NoError(t, c.wait(t))
	require.Equal(t, c.before, c.termios(t))
}
