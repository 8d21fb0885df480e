// Package relay drives the gate actuator: a relay wired to a GPIO line that
// is pulsed high for a configured hold time when a valid token is scanned.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/scangate/internal/config"
)

// Relay actuates the gate hardware.
//
// Pulse blocks for the hold duration; callers decide whether to run it
// asynchronously. Implementations must leave the line low on context
// cancellation.
type Relay interface {
	// Pulse drives the line high, holds, then drives it low.
	Pulse(ctx context.Context) error
	// Close releases the line, forcing it low.
	Close() error
}

// New creates the configured relay implementation
func New(cfg config.RelayConfig) (Relay, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	hold := time.Duration(cfg.HoldS) * time.Second

	switch cfg.Driver {
	case "gpio":
		return NewGPIORelay(cfg.Pin, hold)
	case "noop":
		return NewNoopRelay(hold), nil
	default:
		return nil, fmt.Errorf("unknown relay driver: %s", cfg.Driver)
	}
}

// NoopRelay logs pulses without touching hardware, for hosts without GPIO
type NoopRelay struct {
	hold time.Duration
}

// NewNoopRelay creates a relay that only logs
func NewNoopRelay(hold time.Duration) *NoopRelay {
	return &NoopRelay{hold: hold}
}

// Pulse waits out the hold time so timing behavior matches the gpio driver
func (r *NoopRelay) Pulse(ctx context.Context) error {
	slog.Info("relay pulse (noop)", "hold", r.hold)
	select {
	case <-time.After(r.hold):
	case <-ctx.Done():
	}
	return nil
}

// Close is a no-op
func (r *NoopRelay) Close() error { return nil }
