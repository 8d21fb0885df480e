// Package scanbus fans completed scan records out to the configured sinks.
// Delivery is synchronous and in registration order, so each sink observes
// records in the exact order their delimiters were read from the device.
package scanbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/e7canasta/scangate/internal/types"
)

// Sink consumes scan records. Emit errors are counted and logged by the bus
// but never stop the capture loop.
type Sink interface {
	// Name identifies the sink in logs and stats.
	Name() string
	// Emit hands one record to the sink. Called sequentially.
	Emit(ctx context.Context, rec types.ScanRecord) error
}

// BusStats contains distribution counters
type BusStats struct {
	ScansDistributed uint64
	SinksCount       int
	ErrorsBySink     map[string]uint64
}

// Bus distributes records to registered sinks
type Bus struct {
	mu               sync.RWMutex
	sinks            []Sink
	scansDistributed uint64
	errorsBySink     map[string]uint64
}

// New creates an empty Bus
func New() *Bus {
	return &Bus{errorsBySink: make(map[string]uint64)}
}

// Register adds a sink to receive records
func (b *Bus) Register(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks = append(b.sinks, sink)
	b.errorsBySink[sink.Name()] = 0

	slog.Info("sink registered",
		"sink", sink.Name(),
		"total_sinks", len(b.sinks),
	)
}

// Distribute delivers one record to every sink in registration order
func (b *Bus) Distribute(ctx context.Context, rec types.ScanRecord) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Emit(ctx, rec); err != nil {
			b.mu.Lock()
			b.errorsBySink[sink.Name()]++
			b.mu.Unlock()
			slog.Error("sink emit failed",
				"sink", sink.Name(),
				"seq", rec.Seq,
				"trace_id", rec.TraceID,
				"error", err,
			)
		}
	}

	b.mu.Lock()
	b.scansDistributed++
	b.mu.Unlock()
}

// Stats returns distribution counters
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	errs := make(map[string]uint64, len(b.errorsBySink))
	for k, v := range b.errorsBySink {
		errs[k] = v
	}
	return BusStats{
		ScansDistributed: b.scansDistributed,
		SinksCount:       len(b.sinks),
		ErrorsBySink:     errs,
	}
}
