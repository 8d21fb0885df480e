package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/e7canasta/scangate/internal/relay"
	"github.com/e7canasta/scangate/internal/token"
	"github.com/e7canasta/scangate/internal/types"
)

// AccessSink interprets scan payloads as access tokens and actuates the
// relay on accepted scans. With token decoding disabled, every scan is
// accepted (bare badge/barcode gates). With a nil relay it only logs.
//
// Relay pulses run on their own goroutine so a long hold never stalls scan
// emission; the relay itself serializes overlapping pulses.
type AccessSink struct {
	decodeTokens bool
	gateRelay    relay.Relay

	mu       sync.Mutex
	wg       sync.WaitGroup
	accepted uint64
	rejected uint64
}

// NewAccessSink creates the access handling sink
func NewAccessSink(decodeTokens bool, gateRelay relay.Relay) *AccessSink {
	return &AccessSink{decodeTokens: decodeTokens, gateRelay: gateRelay}
}

// Name identifies the sink in logs and stats
func (s *AccessSink) Name() string { return "access" }

// Emit decides whether the scan opens the gate
func (s *AccessSink) Emit(ctx context.Context, rec types.ScanRecord) error {
	if s.decodeTokens {
		claims, err := token.Decode(rec.Payload)
		if err != nil {
			s.mu.Lock()
			s.rejected++
			s.mu.Unlock()
			slog.Info("scan is not a valid token",
				"seq", rec.Seq,
				"trace_id", rec.TraceID,
			)
			return nil
		}

		sub, _ := claims.Subject()
		slog.Info("token accepted",
			"seq", rec.Seq,
			"trace_id", rec.TraceID,
			"sub", sub,
			"claims", len(claims),
		)
	}

	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()

	if s.gateRelay == nil {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.gateRelay.Pulse(ctx); err != nil {
			slog.Error("relay pulse failed", "trace_id", rec.TraceID, "error", err)
		}
	}()

	return nil
}

// Drain waits for in-flight relay pulses, bounded by ctx, then releases the
// relay line
func (s *AccessSink) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown with relay pulse still in flight")
	}

	if s.gateRelay != nil {
		if err := s.gateRelay.Close(); err != nil {
			slog.Warn("relay close failed", "error", err)
		}
	}
}

// Counts returns accepted/rejected totals
func (s *AccessSink) Counts() (accepted, rejected uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted, s.rejected
}
