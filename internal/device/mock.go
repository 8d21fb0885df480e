package device

import (
	"context"
	"sync"
	"time"
)

// MockStep is one scripted ReadChunk outcome
type MockStep struct {
	Chunk []byte
	Err   error
	Delay time.Duration
}

// MockReader is a scripted Reader for tests and bring-up without hardware.
// Open consumes the OpenErrs queue; ReadChunk replays Steps in order and
// returns ErrReadTimeout once the script is exhausted.
type MockReader struct {
	mu         sync.Mutex
	steps      []MockStep
	openErrs   []error
	pos        int
	openCalls  int
	readCalls  int
	closeCalls int
	isOpen     bool
}

// NewMockReader creates a mock reader replaying the given script
func NewMockReader(steps []MockStep) *MockReader {
	return &MockReader{steps: steps}
}

// FailOpens queues errors returned by successive Open calls before the
// first success
func (m *MockReader) FailOpens(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs = append(m.openErrs, errs...)
}

// Append adds steps to the script
func (m *MockReader) Append(steps ...MockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Open consumes one queued failure or succeeds
func (m *MockReader) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCalls++
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		return err
	}
	m.isOpen = true
	return nil
}

// ReadChunk replays the next scripted step
func (m *MockReader) ReadChunk(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if !m.isOpen {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.readCalls++
	if m.pos >= len(m.steps) {
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
			return nil, ErrReadTimeout
		}
	}
	step := m.steps[m.pos]
	m.pos++
	m.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(step.Delay):
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Chunk, nil
}

// Close marks the reader closed. Idempotent.
func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isOpen {
		m.closeCalls++
		m.isOpen = false
	}
	return nil
}

// Info returns the device identity for logs
func (m *MockReader) Info() string {
	return "mock:scripted"
}

// OpenCalls returns how many times Open was called
func (m *MockReader) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// CloseCalls returns how many times Close actually closed the reader
func (m *MockReader) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
