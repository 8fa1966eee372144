// Package ttymode switches the controlling terminal between canonical and
// raw input mode and puts it back the way it found it.
package ttymode

import (
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Guard toggles one terminal between canonical and raw input.
// It is not safe for concurrent use.
type Guard struct {
	fd       int
	log      zerolog.Logger
	terminal bool
	raw      bool
	original *unix.Termios
}

// New returns a Guard for fd. If fd is not a terminal the guard does nothing.
func New(fd uintptr, log zerolog.Logger) *Guard {
	return &Guard{
		fd:       int(fd),
		log:      log,
		terminal: term.IsTerminal(int(fd)),
	}
}

// Raw reports whether the guard last put the terminal into raw mode.
func (g *Guard) Raw() bool {
	return g.raw
}

// SetMode puts the terminal into raw mode (no line buffering, no echo,
// reads return after one byte) or back into the mode captured on the first
// call. Repeating the current mode has no effect.
//
// SetMode never fails: it runs during shutdown, where there is nobody left
// to report to, so attribute errors are logged and dropped.
func (g *Guard) SetMode(raw bool) {
	if !g.terminal || raw == g.raw {
		return
	}

	if g.original == nil {
		cur, err := unix.IoctlGetTermios(g.fd, unix.TCGETS)
		if err != nil {
			g.log.Debug().Err(err).Msg("ttymode: get termios")
			return
		}
		g.original = cur
	}

	next := *g.original
	if raw {
		// ISIG stays on so Ctrl+C still reaches the signal handler.
		next.Lflag &^= unix.ICANON | unix.ECHO
		next.Cc[unix.VMIN] = 1
		next.Cc[unix.VTIME] = 0
	}

	if err := unix.IoctlSetTermios(g.fd, unix.TCSETS, &next); err != nil {
		g.log.Debug().Err(err).Bool("raw", raw).Msg("ttymode: set termios")
		return
	}
	g.raw = raw
}
