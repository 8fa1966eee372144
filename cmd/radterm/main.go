// Command radterm is a minimal interactive serial terminal.
//
// It opens a serial device, prints whatever the device sends and forwards
// keystrokes to it unbuffered. With -t every received line is followed by
// the time in milliseconds since the Unix epoch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/luhtfiimanal/radterm/internal/session"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "RaDtErM %s\n", version)

	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		// parseFlags has already reported it.
		return 2
	}

	log := newLogger(stderr, cfg.Verbose)

	fmt.Fprintf(stdout, "port = %s\n", cfg.Device)
	fmt.Fprintf(stdout, "baud rate = %d\n", cfg.BaudRate)

	if !term.IsTerminal(int(stdin.Fd())) {
		log.Warn().Msg("stdin is not a terminal; keystrokes are forwarded as they are read")
	}

	// Ctrl+C and Ctrl+\ still raise signals in raw mode; both end the
	// session through the normal shutdown path.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	s := session.New(cfg, stdin, stdout, log)
	if err := s.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
