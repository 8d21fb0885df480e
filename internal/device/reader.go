// Package device owns the scanner device handle: discovery, open, bounded
// chunk reads and disconnect detection. No other package touches the handle.
//
// Readers poll with a bounded timeout rather than blocking indefinitely, so
// a shutdown signal interrupts an in-flight read within read_timeout_ms.
package device

import (
	"context"
	"fmt"

	"github.com/e7canasta/scangate/internal/config"
)

// Reader is the contract for one scanner device connection.
//
// Implementations must guarantee:
//   - Open() holds at most one device handle at a time
//   - ReadChunk() returns ErrReadTimeout when no bytes arrived within the
//     configured poll window, ErrDisconnected when the session is over
//   - Close() is idempotent and best-effort
type Reader interface {
	// Open locates and opens the configured device.
	// Fails with ErrDeviceNotFound or ErrPermission.
	Open(ctx context.Context) error

	// ReadChunk blocks until at least one byte is available, the poll
	// timeout elapses (ErrReadTimeout) or the context is cancelled.
	// Fails with ErrDisconnected when the connection is closed by the
	// OS/hardware and ErrIO for other faults.
	ReadChunk(ctx context.Context) ([]byte, error)

	// Close releases the device handle. Idempotent.
	Close() error

	// Info returns a human-readable description of the open device.
	Info() string
}

// New creates a Reader for the configured scanner type
func New(cfg config.ScannerConfig) (Reader, error) {
	switch cfg.Type {
	case "evdev":
		return NewEvdevReader(cfg), nil
	case "usb":
		return NewUSBReader(cfg), nil
	case "serial":
		return NewSerialReader(cfg), nil
	case "mock":
		return NewMockReader(nil), nil
	default:
		return nil, fmt.Errorf("unknown scanner type: %s", cfg.Type)
	}
}
