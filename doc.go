// Package serial provides a minimal, Linux-only serial port for interactive
// byte-at-a-time use, such as a terminal relaying keystrokes to a device.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Exposes the file descriptor so callers can wait on it with poll(2)
//     alongside other inputs
//   - Non-blocking HasData check
//   - PTY-based tests for reliability
//
// This package does **not** support Windows.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 9600,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	if err := port.WriteByte('?'); err != nil {
//	    log.Println("Write failed:", err)
//	}
//
//	buf := make([]byte, 64)
//	n, err := port.Read(buf)
//	if err != nil {
//	    log.Println("Read failed:", err)
//	}
//	fmt.Printf("%q\n", buf[:n])
//
// The interactive terminal built on this package lives in cmd/radterm.
package serial
