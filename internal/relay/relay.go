// Package relay moves bytes between a serial device and the user's terminal.
//
// A Loop waits on the serial descriptor and the keyboard descriptor with
// poll(2). Received bytes go to the display as they arrive, optionally with
// a millisecond timestamp after every newline. Keystrokes go to the device
// one byte at a time with carriage returns dropped.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ErrReadFault is returned by Run when the serial side stops producing data.
var ErrReadFault = errors.New("serial read fault")

const readBufSize = 4096

// Source is a readable stream with a pollable file descriptor.
type Source interface {
	io.Reader
	Fd() uintptr
}

// Serial is the device side of the relay.
type Serial interface {
	Source
	io.Writer
}

// ModeSetter switches the terminal between canonical and raw input.
type ModeSetter interface {
	SetMode(raw bool)
}

// Options control the display side of the relay.
type Options struct {
	// Timestamp prints the epoch time in milliseconds after every
	// received newline.
	Timestamp bool
	// Now defaults to time.Now.
	Now func() time.Time
	Log zerolog.Logger

	// JobControl delivers SIGTSTP and SIGCONT. On SIGTSTP the loop puts
	// the terminal back in canonical mode and calls Stop; on SIGCONT it
	// re-enters raw mode.
	JobControl <-chan os.Signal
	// Stop suspends the process. Defaults to SIGSTOP for the process group.
	Stop func()
}

// Loop relays bytes until the serial side faults or the context ends.
type Loop struct {
	serial   Serial
	keyboard Source
	display  io.Writer
	mode     ModeSetter
	opts     Options

	poll func(fds []unix.PollFd, timeout int) (int, error)
	buf  []byte
	out  []byte
	ctl  [16]byte
}

// New returns a Loop. mode may be nil when no terminal is attached.
func New(serial Serial, keyboard Source, display io.Writer, mode ModeSetter, opts Options) *Loop {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stop == nil {
		opts.Stop = func() { unix.Kill(0, unix.SIGSTOP) }
	}
	return &Loop{
		serial:   serial,
		keyboard: keyboard,
		display:  display,
		mode:     mode,
		opts:     opts,
		poll:     unix.Poll,
		buf:      make([]byte, readBufSize),
	}
}

// Run puts the terminal into raw mode and relays until the serial side
// faults, in which case the error wraps ErrReadFault, or ctx is done, in
// which case ctx.Err() is returned. Restoring canonical mode is left to the
// owner of the terminal.
//
// When both sides are ready at once, both are serviced in the same
// iteration, device first. Job-control signals from Options.JobControl
// drop out of raw mode for the duration of a stop.
func (l *Loop) Run(ctx context.Context) error {
	if l.mode != nil {
		l.mode.SetMode(true)
	}

	wake, err := newWaker(ctx, l.opts.JobControl)
	if err != nil {
		return err
	}
	defer wake.close()

	pfd := []unix.PollFd{
		{Fd: int32(l.serial.Fd()), Events: unix.POLLIN},
		{Fd: int32(l.keyboard.Fd()), Events: unix.POLLIN},
		{Fd: int32(wake.r), Events: unix.POLLIN},
	}

	for {
		if _, err := l.poll(pfd, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if pfd[2].Revents != 0 {
			n, _ := unix.Read(wake.r, l.ctl[:])
			for _, c := range l.ctl[:max(n, 0)] {
				switch c {
				case wakeCancel:
					l.notice()
					return ctx.Err()
				case wakeSuspend:
					l.suspend()
				case wakeResume:
					l.resume()
				}
			}
		}

		if ready(pfd[0].Revents) {
			if err := l.fromSerial(); err != nil {
				l.opts.Log.Debug().Err(err).Msg("relay: serial side closed")
				l.notice()
				return err
			}
		}

		if ready(pfd[1].Revents) {
			if !l.fromKeyboard() {
				// Negative descriptors are ignored by poll.
				pfd[1].Fd = -1
			}
		}
	}
}

func ready(revents int16) bool {
	return revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
}

// fromSerial copies one read's worth of device bytes to the display.
func (l *Loop) fromSerial() error {
	n, err := l.serial.Read(l.buf)
	if n < 1 {
		if err == nil {
			err = io.EOF
		}
		return fmt.Errorf("%w: %w", ErrReadFault, err)
	}

	l.out = l.render(l.out[:0], l.buf[:n])
	if _, err := l.display.Write(l.out); err != nil {
		l.opts.Log.Debug().Err(err).Msg("relay: display write")
	}
	return nil
}

// render appends chunk to dst, inserting a timestamp after each newline
// when enabled. The time is read when the newline is reached.
func (l *Loop) render(dst, chunk []byte) []byte {
	if !l.opts.Timestamp {
		return append(dst, chunk...)
	}
	for _, b := range chunk {
		dst = append(dst, b)
		if b == '\n' {
			dst = AppendTimestamp(dst, l.opts.Now())
		}
	}
	return dst
}

// fromKeyboard forwards one keystroke. It returns false once the keyboard
// has nothing more to give.
func (l *Loop) fromKeyboard() bool {
	var b [1]byte
	n, err := l.keyboard.Read(b[:])
	if n < 1 {
		l.opts.Log.Debug().Err(err).Msg("relay: keyboard input ended")
		return false
	}
	if b[0] == '\r' {
		return true
	}
	if _, err := l.serial.Write(b[:]); err != nil {
		l.opts.Log.Debug().Err(err).Msg("relay: serial write")
	}
	return true
}

// suspend hands the terminal back before the process stops, so the shell
// gets a canonical, echoing terminal.
func (l *Loop) suspend() {
	l.opts.Log.Debug().Msg("relay: suspending")
	if l.mode != nil {
		l.mode.SetMode(false)
	}
	l.opts.Stop()
}

func (l *Loop) resume() {
	l.opts.Log.Debug().Msg("relay: resumed")
	if l.mode != nil {
		l.mode.SetMode(true)
	}
}

func (l *Loop) notice() {
	io.WriteString(l.display, "\nexit.\n")
}

// AppendTimestamp appends t as milliseconds since the Unix epoch,
// right-justified in 11 columns, followed by ": ".
func AppendTimestamp(dst []byte, t time.Time) []byte {
	var num [20]byte
	digits := strconv.AppendInt(num[:0], t.UnixMilli(), 10)
	for i := len(digits); i < 11; i++ {
		dst = append(dst, ' ')
	}
	dst = append(dst, digits...)
	return append(dst, ':', ' ')
}
