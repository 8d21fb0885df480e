// Package capture drives the scanner device: open, read, decode, emit,
// reconnect. One sequential loop owns the device handle and the accumulation
// buffer, so no locking is needed around either.
package capture

import (
	"context"
	"time"

	"github.com/e7canasta/scangate/internal/types"
)

// Provider is the contract for scan acquisition.
//
// Implementations must guarantee:
//   - Start() returns immediately (non-blocking)
//   - Scans() delivers records in strict arrival order, no duplicates
//   - Stop() is idempotent (safe to call multiple times)
//   - Stats() is thread-safe (can be called from any goroutine)
type Provider interface {
	// Start begins the capture loop. Records arrive on Scans() once the
	// device opens; an absent device is retried forever with backoff.
	Start(ctx context.Context) error

	// Scans returns the record channel. It closes only after Stop() or
	// when the parent context is cancelled.
	Scans() <-chan types.ScanRecord

	// Stop gracefully shuts down the loop, completing an in-flight emit
	// but never starting another read. Idempotent.
	Stop() error

	// Stats returns current capture statistics.
	Stats() types.CaptureStats
}

// stopTimeout bounds how long Stop waits for the loop goroutine
const stopTimeout = 3 * time.Second

// emitFlushTimeout bounds how long a cancelled emit waits for the consumer
// to drain an already-decoded record. Must stay below stopTimeout so a
// flush never turns Stop into a timeout failure.
const emitFlushTimeout = 1 * time.Second
