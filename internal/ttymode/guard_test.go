package ttymode

import (
	"os"
	"testing"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openTTY(t *testing.T) *os.File {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })
	return slave
}

func termios(t *testing.T, f *os.File) *unix.Termios {
	t.Helper()
	tio, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	require.NoError(t, err)
	return tio
}

func TestGuard_RawAndBack(t *testing.T) {
	tty := openTTY(t)
	before := termios(t, tty)
	require.NotZero(t, before.Lflag&unix.ICANON, "pty should start canonical")

	g := New(tty.Fd(), zerolog.Nop())
	g.SetMode(true)
	require.True(t, g.Raw())

	raw := termios(t, tty)
	require.Zero(t, raw.Lflag&unix.ICANON)
	require.Zero(t, raw.Lflag&unix.ECHO)
	require.NotZero(t, raw.Lflag&unix.ISIG)
	require.Equal(t, uint8(1), raw.Cc[unix.VMIN])
	require.Equal(t, uint8(0), raw.Cc[unix.VTIME])

	g.SetMode(false)
	require.False(t, g.Raw())
	require.Equal(t, *before, *termios(t, tty))
}

func TestGuard_Idempotent(t *testing.T) {
	tty := openTTY(t)
	before := termios(t, tty)

	g := New(tty.Fd(), zerolog.Nop())
	g.SetMode(false)
	require.Equal(t, *before, *termios(t, tty))

	g.SetMode(true)
	once := termios(t, tty)
	g.SetMode(true)
	require.Equal(t, *once, *termios(t, tty))

	g.SetMode(false)
	g.SetMode(false)
	require.Equal(t, *before, *termios(t, tty))
}

func TestGuard_NotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(); w.Close() })

	g := New(r.Fd(), zerolog.Nop())
	g.SetMode(true)
	require.False(t, g.Raw())
	g.SetMode(false)
}

func TestGuard_ClosedDescriptor(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	defer master.Close()

	g := New(slave.Fd(), zerolog.Nop())
	require.NoError(t, slave.Close())

	require.NotPanics(t, func() {
		g.SetMode(true)
		g.SetMode(false)
	})
	require.False(t, g.Raw())
}
