package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/luhtfiimanal/radterm/internal/session"
)

const usageText = `Usage:
	radterm [options]

Options:
	-i --pidfile <path>  specify the pidfile location
	-g --logfile <path>  specify the logfile location
	-b --baud <num>      specify the baud rate, defaults to 9600
	-p --port <path>     specify the port, defaults to %s
	-t --time            prefix received lines with a millisecond timestamp
	-v --verbose         enable verbose output
	-d --daemon          run as a daemon in the background
	-o --own             chown the port to the current user before opening it
`

// parseFlags parses args into a session.Config. Short and long names are
// aliases of the same flag. Every error is reported on stderr, followed by
// the usage text, before it is returned.
func parseFlags(args []string, stderr io.Writer) (session.Config, error) {
	cfg := session.DefaultConfig()

	fs := flag.NewFlagSet("radterm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, usageText, session.DefaultDevice)
	}

	for _, name := range []string{"p", "port"} {
		fs.StringVar(&cfg.Device, name, cfg.Device, "serial port")
	}
	for _, name := range []string{"b", "baud"} {
		fs.IntVar(&cfg.BaudRate, name, cfg.BaudRate, "baud rate")
	}
	for _, name := range []string{"t", "time"} {
		fs.BoolVar(&cfg.Timestamp, name, false, "timestamp received lines")
	}
	for _, name := range []string{"v", "verbose"} {
		fs.BoolVar(&cfg.Verbose, name, false, "verbose output")
	}
	for _, name := range []string{"i", "pidfile"} {
		fs.StringVar(&cfg.PidFile, name, "", "pidfile location")
	}
	for _, name := range []string{"g", "logfile"} {
		fs.StringVar(&cfg.LogFile, name, "", "logfile location")
	}
	for _, name := range []string{"d", "daemon"} {
		fs.BoolVar(&cfg.Daemon, name, false, "run as a daemon")
	}
	for _, name := range []string{"o", "own"} {
		fs.BoolVar(&cfg.TakeOwnership, name, false, "chown the port first")
	}

	if err := fs.Parse(args); err != nil {
		return session.Config{}, err
	}
	fail := func(format string, a ...any) (session.Config, error) {
		err := fmt.Errorf(format, a...)
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return session.Config{}, err
	}
	if fs.NArg() > 0 {
		return fail("unexpected argument %q", fs.Arg(0))
	}
	if cfg.BaudRate <= 0 {
		return fail("invalid baud rate %d", cfg.BaudRate)
	}
	return cfg, nil
}
