package relay

import (
	"context"
	"sync"
)

// MockRelay records pulses for tests
type MockRelay struct {
	mu     sync.Mutex
	pulses int
	closed bool
}

// NewMockRelay creates a recording relay
func NewMockRelay() *MockRelay {
	return &MockRelay{}
}

// Pulse records one actuation without holding
func (r *MockRelay) Pulse(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulses++
	return nil
}

// Close marks the relay released
func (r *MockRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Pulses returns how many times Pulse was called
func (r *MockRelay) Pulses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pulses
}

// Closed reports whether Close was called
func (r *MockRelay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
