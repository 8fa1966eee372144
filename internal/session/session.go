// Package session ties a serial port, the terminal mode guard and the relay
// loop together for one run of the terminal.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	serial "github.com/luhtfiimanal/radterm"
	"github.com/luhtfiimanal/radterm/internal/relay"
	"github.com/luhtfiimanal/radterm/internal/ttymode"
)

// DefaultDevice is the serial device used when none is given.
const DefaultDevice = "/dev/ttyUSB0"

// Config is the parsed command line.
type Config struct {
	Device    string
	BaudRate  int
	Timestamp bool
	Verbose   bool

	// Accepted for compatibility; not implemented.
	PidFile string
	LogFile string
	Daemon  bool

	// TakeOwnership chowns Device to the invoking user before opening it.
	TakeOwnership bool
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		Device:   DefaultDevice,
		BaudRate: serial.DefaultBaudRate,
	}
}

// PortState tracks the serial handle through one session.
type PortState int

const (
	PortUnopened PortState = iota
	PortOpen
	PortClosed
)

func (s PortState) String() string {
	switch s {
	case PortUnopened:
		return "unopened"
	case PortOpen:
		return "open"
	case PortClosed:
		return "closed"
	default:
		return fmt.Sprintf("PortState(%d)", int(s))
	}
}

// Session is one run of the terminal. It is used from a single goroutine.
type Session struct {
	Config Config
	Stdin  *os.File
	Stdout io.Writer
	Log    zerolog.Logger

	port  *serial.Port
	state PortState
	mode  *ttymode.Guard
}

// New returns a Session that reads keys from stdin and prints to stdout.
// The terminal mode guard is bound to stdin.
func New(cfg Config, stdin *os.File, stdout io.Writer, log zerolog.Logger) *Session {
	return &Session{
		Config: cfg,
		Stdin:  stdin,
		Stdout: stdout,
		Log:    log,
		mode:   ttymode.New(stdin.Fd(), log),
	}
}

// State reports the serial handle's lifecycle state.
func (s *Session) State() PortState {
	return s.state
}

// Mode returns the guard for the session's terminal.
func (s *Session) Mode() *ttymode.Guard {
	return s.mode
}

// Run opens the device and relays until the device goes away or ctx ends.
// Both of those are a normal end of session and return nil. Errors are
// *OwnershipError, *ConnectError, or a failure of the relay itself.
//
// Once the port is open, canonical mode is restored and the port closed
// on every return path, panics included.
func (s *Session) Run(ctx context.Context) error {
	if s.state != PortUnopened {
		return errors.New("session already used")
	}
	s.unimplemented()

	if s.Config.TakeOwnership {
		if err := takeOwnership(s.Config.Device); err != nil {
			return err
		}
	}

	port, err := serial.Open(serial.Config{Device: s.Config.Device, BaudRate: s.Config.BaudRate})
	if err != nil {
		return &ConnectError{Device: s.Config.Device, Baud: s.Config.BaudRate, Err: err}
	}
	s.port = port
	s.state = PortOpen
	defer s.shutdown()

	s.Log.Debug().Str("device", port.Device()).Int("baud", port.BaudRate()).Msg("port open")
	fmt.Fprintln(s.Stdout, "Connected! Data received will be printed...")
	fmt.Fprintln(s.Stdout, "Use CTRL+C to quit.")

	// Ctrl+Z must not leave the shell with a raw terminal.
	jobs := make(chan os.Signal, 2)
	signal.Notify(jobs, syscall.SIGTSTP, syscall.SIGCONT)
	defer signal.Stop(jobs)

	loop := relay.New(port, s.Stdin, s.Stdout, s.mode, relay.Options{
		Timestamp:  s.Config.Timestamp,
		Log:        s.Log,
		JobControl: jobs,
	})
	err = loop.Run(ctx)
	switch {
	case errors.Is(err, relay.ErrReadFault):
		s.Log.Debug().Err(err).Msg("device stopped sending")
		return nil
	case interrupted(ctx, err):
		s.Log.Debug().Err(err).Msg("interrupted")
		return nil
	default:
		return err
	}
}

// interrupted reports whether err is the loop giving up because ctx ended,
// as opposed to a failure that happened around the same time.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// shutdown runs once per opened port.
func (s *Session) shutdown() {
	// Deferred so the terminal comes back even if closing the port panics.
	defer s.mode.SetMode(false)

	fmt.Fprintln(s.Stdout, "Closing the connection.")
	if err := s.port.Close(); err != nil {
		s.Log.Debug().Err(err).Msg("close port")
	}
	s.state = PortClosed
}

func (s *Session) unimplemented() {
	if s.Config.Daemon {
		s.Log.Debug().Msg("daemon mode is not implemented; running in the foreground")
	}
	if s.Config.PidFile != "" {
		s.Log.Debug().Str("pidfile", s.Config.PidFile).Msg("pidfile is not implemented; ignoring")
	}
	if s.Config.LogFile != "" {
		s.Log.Debug().Str("logfile", s.Config.LogFile).Msg("logfile is not implemented; ignoring")
	}
}

func takeOwnership(device string) error {
	if err := unix.Chown(device, unix.Getuid(), unix.Getgid()); err != nil {
		return &OwnershipError{Device: device, Err: err}
	}
	return nil
}
