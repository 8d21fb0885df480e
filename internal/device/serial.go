package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/e7canasta/scangate/internal/config"
)

// SerialReader reads a scanner presenting as a virtual COM port (CDC-ACM).
// The port read timeout bounds every blocking read so shutdown can interrupt
// the loop within one poll window.
type SerialReader struct {
	path    string
	baud    int
	timeout time.Duration

	mu     sync.Mutex
	port   serial.Port
	isOpen bool
}

// NewSerialReader creates a reader for a serial/virtual-COM scanner
func NewSerialReader(cfg config.ScannerConfig) *SerialReader {
	return &SerialReader{
		path:    cfg.Device,
		baud:    cfg.Baud,
		timeout: time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
	}
}

// Open opens the port at the configured baud rate (8N1)
func (r *SerialReader) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isOpen {
		return fmt.Errorf("%w: already open: %s", ErrIO, r.path)
	}

	port, err := serial.Open(r.path, &serial.Mode{BaudRate: r.baud})
	if err != nil {
		return classifySerialErr(r.path, err)
	}
	if err := port.SetReadTimeout(r.timeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: set read timeout: %v", ErrIO, err)
	}

	r.port = port
	r.isOpen = true

	return nil
}

// ReadChunk reads whatever bytes are buffered on the port, up to 256 per call
func (r *SerialReader) ReadChunk(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	port := r.port
	isOpen := r.isOpen
	r.mu.Unlock()

	if !isOpen {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, 256)
	n, err := port.Read(buf)
	if err != nil {
		return nil, classifySerialReadErr(err)
	}
	if n == 0 {
		// go.bug.st/serial signals an expired read timeout as (0, nil)
		return nil, ErrReadTimeout
	}

	return buf[:n], nil
}

// Close releases the port. Idempotent, best-effort.
func (r *SerialReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen {
		return nil
	}
	r.isOpen = false

	port := r.port
	r.port = nil
	_ = port.Close()

	return nil
}

// Info returns the device identity for logs
func (r *SerialReader) Info() string {
	return fmt.Sprintf("serial:%s@%d", r.path, r.baud)
}

// classifySerialErr maps go.bug.st/serial open failures to the error taxonomy
func classifySerialErr(path string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, path, err)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %s: %v", ErrPermission, path, err)
		}
	}
	return classifyOpenErr(path, err)
}

// classifySerialReadErr maps read failures; a vanished USB-serial adapter
// reports PortClosed or a raw I/O error depending on timing
func classifySerialReadErr(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return classifyReadErr(err)
}
