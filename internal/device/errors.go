package device

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Sentinel error kinds for device-level failures. The capture loop branches
// on these with errors.Is instead of driving control flow through panics.
var (
	// ErrDeviceNotFound indicates no matching device is present on the host
	ErrDeviceNotFound = errors.New("device not found")
	// ErrPermission indicates access to the device node was denied
	ErrPermission = errors.New("device permission denied")
	// ErrDisconnected indicates the OS or hardware closed the connection
	ErrDisconnected = errors.New("device disconnected")
	// ErrIO indicates an I/O fault other than disconnect
	ErrIO = errors.New("device i/o error")
	// ErrReadTimeout indicates a bounded read returned without data.
	// Consumed inside the capture loop; never surfaces to callers.
	ErrReadTimeout = errors.New("device read timeout")
	// ErrClosed indicates an operation on a reader after Close
	ErrClosed = errors.New("device closed")
)

// classifyOpenErr maps an OS-level open failure to the error taxonomy
func classifyOpenErr(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrPermission, path, err)
	default:
		return fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
}

// classifyReadErr maps an OS-level read failure to the error taxonomy.
// Unplugging an input or serial device surfaces as EOF, ENODEV or ENXIO
// depending on the driver; all mean the session is over.
func classifyReadErr(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, unix.ENODEV),
		errors.Is(err, unix.ENXIO),
		errors.Is(err, fs.ErrClosed):
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	default:
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
}
