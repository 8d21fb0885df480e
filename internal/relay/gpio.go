package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var hostInit sync.Once

// GPIORelay drives a relay board over a host GPIO line (BCM naming on the
// Pi, e.g. "GPIO17").
type GPIORelay struct {
	pin  gpio.PinIO
	hold time.Duration

	mu sync.Mutex
}

// NewGPIORelay initializes the host GPIO drivers and claims the line
func NewGPIORelay(name string, hold time.Duration) (*GPIORelay, error) {
	var initErr error
	hostInit.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("gpio host init: %w", initErr)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio line not found: %s", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s init low: %w", name, err)
	}

	return &GPIORelay{pin: pin, hold: hold}, nil
}

// Pulse holds the line high for the hold duration, then low. The mutex
// serializes overlapping pulses; a pulse cut short by shutdown still drives
// the line low before returning.
func (r *GPIORelay) Pulse(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Info("relay on", "pin", r.pin.Name(), "hold", r.hold)
	if err := r.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("gpio %s high: %w", r.pin.Name(), err)
	}

	select {
	case <-time.After(r.hold):
	case <-ctx.Done():
		slog.Warn("relay pulse interrupted", "pin", r.pin.Name())
	}

	if err := r.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio %s low: %w", r.pin.Name(), err)
	}
	slog.Info("relay off", "pin", r.pin.Name())

	return nil
}

// Close forces the line low
func (r *GPIORelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pin.Out(gpio.Low)
}
