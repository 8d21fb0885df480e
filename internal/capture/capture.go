package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/scangate/internal/config"
	"github.com/e7canasta/scangate/internal/decode"
	"github.com/e7canasta/scangate/internal/device"
	"github.com/e7canasta/scangate/internal/types"
)

// DeviceCapture implements Provider over a device.Reader. It runs the
// open → read/decode/emit → backoff → reopen loop until stopped; device
// errors never terminate the loop, only shutdown does.
type DeviceCapture struct {
	reader  device.Reader
	decoder *decode.Decoder
	source  string

	initialBackoff time.Duration
	maxBackoff     time.Duration
	flushTimeout   time.Duration

	scans chan types.ScanRecord

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	// Stats
	mu               sync.RWMutex
	seq              uint64
	session          uint64
	scansCaptured    uint64
	bytesRead        uint64
	fragmentsDropped uint64
	scansDropped     uint64
	reconnects       uint64
	currentBackoff   time.Duration
	isConnected      bool
	lastScanAt       time.Time
	deviceInfo       string
}

// New creates a DeviceCapture reading from the given reader
func New(reader device.Reader, cfg *config.Config) *DeviceCapture {
	return &DeviceCapture{
		reader:         reader,
		decoder:        decode.NewDecoder(cfg.Scanner.Delimiter[0], cfg.Scanner.StripCR),
		source:         cfg.InstanceID,
		initialBackoff: time.Duration(cfg.Backoff.InitialS) * time.Second,
		maxBackoff:     time.Duration(cfg.Backoff.MaxS) * time.Second,
		flushTimeout:   emitFlushTimeout,
		scans:          make(chan types.ScanRecord, 16),
		done:           make(chan struct{}),
	}
}

// Start begins the capture loop in a goroutine
func (c *DeviceCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("capture already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.currentBackoff = c.initialBackoff

	c.wg.Add(1)
	go c.run()

	slog.Info("capture starting",
		"device", c.reader.Info(),
		"backoff_initial", c.initialBackoff,
		"backoff_max", c.maxBackoff,
	)

	return nil
}

// Scans returns the record channel
func (c *DeviceCapture) Scans() <-chan types.ScanRecord {
	return c.scans
}

// run owns the session lifecycle: retry open with backoff, then read until
// the session dies, then back off and reopen
func (c *DeviceCapture) run() {
	defer c.wg.Done()
	defer close(c.scans)
	defer close(c.done)

	backoff := c.initialBackoff

	for {
		select {
		case <-c.ctx.Done():
			slog.Info("capture loop context cancelled")
			return
		default:
		}

		if err := c.reader.Open(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			slog.Warn("device open failed",
				"device", c.reader.Info(),
				"error", err,
				"retry_in", backoff,
			)
			if !c.waitBackoff(backoff) {
				return
			}
			backoff = c.nextBackoff(backoff)
			continue
		}

		c.beginSession()
		slog.Info("device session opened",
			"device", c.reader.Info(),
			"session", c.sessionID(),
		)

		confirmed, err := c.readLoop()

		_ = c.reader.Close()
		c.endSession()

		if c.ctx.Err() != nil {
			slog.Info("capture loop stopped during session")
			return
		}

		slog.Warn("device session ended",
			"device", c.reader.Info(),
			"session", c.sessionID(),
			"error", err,
		)

		// A session that produced at least one successful read resets the
		// backoff to baseline; otherwise the previous schedule continues.
		if confirmed {
			backoff = c.initialBackoff
		}
		if !c.waitBackoff(backoff) {
			return
		}
		backoff = c.nextBackoff(backoff)
	}
}

// readLoop reads chunks and emits completed records until the session dies.
// Returns whether at least one read succeeded, and the terminal error.
func (c *DeviceCapture) readLoop() (bool, error) {
	confirmed := false

	for {
		select {
		case <-c.ctx.Done():
			return confirmed, c.ctx.Err()
		default:
		}

		chunk, err := c.reader.ReadChunk(c.ctx)
		if err != nil {
			if errors.Is(err, device.ErrReadTimeout) {
				continue
			}
			return confirmed, err
		}
		confirmed = true

		c.mu.Lock()
		c.bytesRead += uint64(len(chunk))
		c.mu.Unlock()

		records := c.decoder.Feed(chunk)
		for i, payload := range records {
			if !c.emit(payload) {
				c.countDropped(uint64(len(records) - i))
				return confirmed, c.ctx.Err()
			}
		}
	}
}

// emit builds a record and delivers it in order. A complete record is never
// abandoned just because shutdown started: cancellation gets one bounded
// flush window for the consumer to drain it. Returns false only when that
// window expires; the caller counts the record as dropped.
func (c *DeviceCapture) emit(payload string) bool {
	c.mu.Lock()
	c.seq++
	rec := types.ScanRecord{
		Seq:        c.seq,
		Payload:    payload,
		CapturedAt: time.Now(),
		Session:    c.session,
		Source:     c.source,
		TraceID:    uuid.New().String(),
	}
	c.scansCaptured++
	c.lastScanAt = rec.CapturedAt
	c.mu.Unlock()

	// Prefer delivery when both the send and cancellation are ready
	select {
	case c.scans <- rec:
		return true
	default:
	}

	select {
	case c.scans <- rec:
		return true
	case <-c.ctx.Done():
	}

	select {
	case c.scans <- rec:
		return true
	case <-time.After(c.flushTimeout):
		slog.Warn("complete record undeliverable at shutdown",
			"seq", rec.Seq,
			"trace_id", rec.TraceID,
		)
		return false
	}
}

// countDropped records complete, decoded records that could not be delivered
func (c *DeviceCapture) countDropped(n uint64) {
	c.mu.Lock()
	c.scansDropped += n
	c.mu.Unlock()
}

// waitBackoff sleeps for the given delay. Returns false when cancelled,
// so shutdown during backoff never attempts another open.
func (c *DeviceCapture) waitBackoff(delay time.Duration) bool {
	c.mu.Lock()
	c.reconnects++
	c.currentBackoff = delay
	c.mu.Unlock()

	select {
	case <-time.After(delay):
		return true
	case <-c.ctx.Done():
		slog.Info("capture loop cancelled during backoff")
		return false
	}
}

// nextBackoff doubles the delay up to the ceiling
func (c *DeviceCapture) nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	return d
}

// beginSession resets per-session state. The decoder buffer is cleared so a
// new connection never observes bytes from the previous one.
func (c *DeviceCapture) beginSession() {
	c.decoder.Reset()

	c.mu.Lock()
	c.session++
	c.isConnected = true
	c.deviceInfo = c.reader.Info()
	c.mu.Unlock()
}

// endSession discards any unterminated trailing fragment and marks the
// device disconnected
func (c *DeviceCapture) endSession() {
	if c.decoder.Pending() > 0 {
		c.mu.Lock()
		c.fragmentsDropped++
		c.mu.Unlock()
		slog.Debug("discarding unterminated fragment", "bytes", c.decoder.Pending())
	}
	c.decoder.Reset()

	c.mu.Lock()
	c.isConnected = false
	c.deviceInfo = ""
	c.mu.Unlock()
}

func (c *DeviceCapture) sessionID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Stop cancels the loop and waits for it to finish. Idempotent.
func (c *DeviceCapture) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-c.done:
	case <-time.After(stopTimeout):
		return fmt.Errorf("capture stop timeout after %v", stopTimeout)
	}

	c.wg.Wait()
	slog.Info("capture stopped")
	return nil
}

// Stats returns current capture statistics
func (c *DeviceCapture) Stats() types.CaptureStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return types.CaptureStats{
		ScansCaptured:    c.scansCaptured,
		BytesRead:        c.bytesRead,
		FragmentsDropped: c.fragmentsDropped,
		ScansDropped:     c.scansDropped,
		Sessions:         c.session,
		Reconnects:       c.reconnects,
		CurrentBackoff:   c.currentBackoff,
		IsConnected:      c.isConnected,
		LastScanAt:       c.lastScanAt,
		DeviceInfo:       c.deviceInfo,
	}
}
