package types

import "time"

// ScanRecord is one decoded, delimiter-bounded payload read from the scanner.
// Records are immutable once emitted and reach sinks in strict arrival order.
type ScanRecord struct {
	// Seq is the monotonic sequence number within the process lifetime
	Seq uint64 `json:"seq"`
	// Payload is the decoded scan contents, delimiter excluded
	Payload string `json:"payload"`
	// CapturedAt is when the terminating delimiter was seen
	CapturedAt time.Time `json:"captured_at"`
	// Session identifies the device session the record was read in
	Session uint64 `json:"session"`
	// Source identifies the emitting instance (config instance_id)
	Source string `json:"source"`
	// TraceID is a unique identifier for correlating downstream handling
	TraceID string `json:"trace_id"`
}

// CaptureStats contains current capture loop statistics
type CaptureStats struct {
	// ScansCaptured is the total number of complete records decoded
	ScansCaptured uint64
	// BytesRead is the total bytes read from the device
	BytesRead uint64
	// FragmentsDropped counts unterminated fragments discarded on disconnect
	FragmentsDropped uint64
	// ScansDropped counts complete records undeliverable at shutdown
	ScansDropped uint64
	// Sessions is the number of device sessions opened so far
	Sessions uint64
	// Reconnects is the number of reconnection attempts
	Reconnects uint64
	// CurrentBackoff is the wait before the next open attempt
	CurrentBackoff time.Duration
	// IsConnected indicates whether a device session is currently open
	IsConnected bool
	// LastScanAt is the capture time of the most recent record
	LastScanAt time.Time
	// DeviceInfo describes the connected device, empty when disconnected
	DeviceInfo string
}
