// Package sink implements the scan record consumers: the append-only log
// stream and the MQTT hand-off channel.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/e7canasta/scangate/internal/config"
	"github.com/e7canasta/scangate/internal/types"
)

// LogSink writes one record per line, UTF-8, to stdout or an append-only
// file. Mode "text" writes the raw payload, "json" the full record.
type LogSink struct {
	mode string

	mu  sync.Mutex
	w   io.Writer
	f   *os.File // nil when writing to stdout
	enc *json.Encoder
}

// NewLogSink opens the output stream per config
func NewLogSink(cfg config.OutputConfig) (*LogSink, error) {
	s := &LogSink{mode: cfg.Mode, w: os.Stdout}

	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open output %s: %w", cfg.Path, err)
		}
		s.f = f
		s.w = f
	}
	if s.mode == "json" {
		s.enc = json.NewEncoder(s.w)
	}

	return s, nil
}

// Name identifies the sink in logs and stats
func (s *LogSink) Name() string { return "log" }

// Emit appends one line. The mutex serializes writes in case the stream is
// shared with another writer in-process.
func (s *LogSink) Emit(ctx context.Context, rec types.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == "json" {
		return s.enc.Encode(rec)
	}
	_, err := fmt.Fprintln(s.w, rec.Payload)
	return err
}

// Close releases the output file, if any
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	return f.Close()
}
