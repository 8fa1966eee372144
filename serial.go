package serial

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultBaudRate is used when Config.BaudRate is zero.
const DefaultBaudRate = 9600

// ErrUnsupportedBaud is returned by Open for a rate missing from the termios table.
var ErrUnsupportedBaud = errors.New("unsupported baud rate")

// Port is an open serial device configured for raw byte I/O.
// Read and Write block; callers that must not block wait on Fd first.
type Port struct {
	fd        int
	file      *os.File
	closeOnce sync.Once
	config    Config
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device   string
	BaudRate int
}

// Open opens a serial port using the provided Config.
// The line is configured raw 8N1 with VMIN=1, VTIME=0.
func Open(cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	baud, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Turn back into blocking mode now that config is done
	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	return &Port{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		config: cfg,
	}, nil
}

// Device returns the path the port was opened with.
func (p *Port) Device() string {
	return p.config.Device
}

// BaudRate returns the configured line speed.
func (p *Port) BaudRate() int {
	return p.config.BaudRate
}

// Fd returns the underlying file descriptor, for use in readiness waits.
func (p *Port) Fd() uintptr {
	return uintptr(p.fd)
}

// Read reads whatever is available, blocking until at least one byte arrives.
func (p *Port) Read(b []byte) (int, error) {
	return p.file.Read(b)
}

// Write writes b to the device.
func (p *Port) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

// WriteByte writes a single byte to the device.
func (p *Port) WriteByte(c byte) error {
	_, err := p.file.Write([]byte{c})
	return err
}

// HasData reports whether a Read would return without blocking.
func (p *Port) HasData() (bool, error) {
	pfd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		return n > 0 && pfd[0].Revents&unix.POLLIN != 0, nil
	}
}

// Close closes the serial port.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		// file owns fd; closing it releases the descriptor.
		err = p.file.Close()
	})
	return err
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}
}
