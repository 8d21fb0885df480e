package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/e7canasta/scangate/internal/config"
)

// inputEvent mirrors struct input_event from the Linux input subsystem.
// The timeval fields are arch-dependent via unix.Timeval, so the struct
// is sized correctly on both 64-bit hosts and 32-bit Pi images.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// evKey is the input event type for key press/release events
const evKey uint16 = 1

// EvdevReader reads a scanner in HID keyboard-emulation mode through the
// Linux input subsystem (/dev/input/eventN), the mode the deployed gate
// scanners use. Key events are translated to payload bytes by a KeyDecoder.
type EvdevReader struct {
	path      string
	timeoutMS int
	keys      *KeyDecoder
	eventSize int

	mu     sync.Mutex
	fd     int
	isOpen bool
}

// NewEvdevReader creates a reader for a keyboard-emulation input device
func NewEvdevReader(cfg config.ScannerConfig) *EvdevReader {
	return &EvdevReader{
		path:      cfg.Device,
		timeoutMS: cfg.ReadTimeoutMS,
		keys:      NewKeyDecoder(cfg.Delimiter[0]),
		eventSize: binary.Size(inputEvent{}),
		fd:        -1,
	}
}

// Open opens the input device node in non-blocking mode
func (r *EvdevReader) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isOpen {
		return fmt.Errorf("%w: already open: %s", ErrIO, r.path)
	}

	fd, err := unix.Open(r.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return classifyOpenErr(r.path, err)
	}

	r.fd = fd
	r.isOpen = true
	r.keys.Reset()

	return nil
}

// ReadChunk polls the device for key events and returns the payload bytes
// they decode to. A chunk may be empty when the events carried no payload
// (releases, modifier changes); that still counts as a live read.
func (r *EvdevReader) ReadChunk(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	fd := r.fd
	isOpen := r.isOpen
	r.mu.Unlock()

	if !isOpen {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, r.timeoutMS)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, ErrReadTimeout
		}
		return nil, classifyReadErr(err)
	}
	if n == 0 {
		return nil, ErrReadTimeout
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return nil, fmt.Errorf("%w: poll revents 0x%x", ErrDisconnected, pfd[0].Revents)
	}

	buf := make([]byte, 64*r.eventSize)
	nr, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, ErrReadTimeout
		}
		return nil, classifyReadErr(err)
	}
	if nr == 0 {
		return nil, fmt.Errorf("%w: zero-length read", ErrDisconnected)
	}

	return r.decodeEvents(buf[:nr])
}

// decodeEvents translates a batch of raw input events into payload bytes
func (r *EvdevReader) decodeEvents(raw []byte) ([]byte, error) {
	rd := bytes.NewReader(raw)
	var out []byte

	for rd.Len() >= r.eventSize {
		var ev inputEvent
		if err := binary.Read(rd, binary.NativeEndian, &ev); err != nil {
			return out, fmt.Errorf("%w: malformed input event: %v", ErrIO, err)
		}
		if ev.Type != evKey {
			continue
		}
		if b, ok := r.keys.Translate(ev.Code, ev.Value); ok {
			out = append(out, b)
		}
	}

	return out, nil
}

// Close releases the device node. Idempotent, best-effort.
func (r *EvdevReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen {
		return nil
	}
	r.isOpen = false

	fd := r.fd
	r.fd = -1
	_ = unix.Close(fd)

	return nil
}

// Info returns the device identity for logs
func (r *EvdevReader) Info() string {
	return fmt.Sprintf("evdev:%s", r.path)
}
