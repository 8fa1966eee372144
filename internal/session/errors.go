package session

import "fmt"

// ConnectError reports a serial device that could not be opened.
type ConnectError struct {
	Device string
	Baud   int
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("could not open %s with %d: %v", e.Device, e.Baud, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// OwnershipError reports a failed chown of the device file.
type OwnershipError struct {
	Device string
	Err    error
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("can't chown %s: %v; please run as admin", e.Device, e.Err)
}

func (e *OwnershipError) Unwrap() error {
	return e.Err
}
