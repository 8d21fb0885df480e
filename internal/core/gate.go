// Package core wires the capture loop to the configured sinks and exposes
// the service lifecycle: run, pause/resume, health, graceful shutdown.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/scangate/internal/capture"
	"github.com/e7canasta/scangate/internal/config"
	"github.com/e7canasta/scangate/internal/control"
	"github.com/e7canasta/scangate/internal/device"
	"github.com/e7canasta/scangate/internal/relay"
	"github.com/e7canasta/scangate/internal/scanbus"
	"github.com/e7canasta/scangate/internal/sink"
)

// Gate is the main service orchestrator
type Gate struct {
	cfg *config.Config

	// Core components
	provider       capture.Provider
	bus            *scanbus.Bus
	logSink        *sink.LogSink
	mqttSink       *sink.MQTTSink
	access         *AccessSink
	controlHandler *control.Handler

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	isPaused  bool
	cancelRun context.CancelFunc // For the control plane shutdown command
}

// NewGate creates a Gate instance from a loaded configuration
func NewGate(cfg *config.Config) (*Gate, error) {
	reader, err := device.New(cfg.Scanner)
	if err != nil {
		return nil, fmt.Errorf("failed to create device reader: %w", err)
	}

	g := &Gate{
		cfg:      cfg,
		provider: capture.New(reader, cfg),
		bus:      scanbus.New(),
	}

	logSink, err := sink.NewLogSink(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to open output sink: %w", err)
	}
	g.logSink = logSink
	g.bus.Register(logSink)

	if cfg.MQTT.Broker != "" {
		g.mqttSink = sink.NewMQTTSink(cfg.MQTT)
		g.bus.Register(g.mqttSink)
	}

	if cfg.Token.Enabled || cfg.Relay.Enabled {
		gateRelay, err := relay.New(cfg.Relay)
		if err != nil {
			return nil, fmt.Errorf("failed to create relay: %w", err)
		}
		g.access = NewAccessSink(cfg.Token.Enabled, gateRelay)
		g.bus.Register(g.access)
	}

	slog.Info("gate configured",
		"instance_id", cfg.InstanceID,
		"gate_id", cfg.GateID,
		"scanner_type", cfg.Scanner.Type,
		"sinks", g.bus.Stats().SinksCount,
	)

	return g, nil
}

// Run starts the service and blocks until the context is cancelled or the
// capture loop ends
func (g *Gate) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.isRunning {
		g.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	g.isRunning = true
	g.started = time.Now()
	g.mu.Unlock()

	// Cancellable run context for the control plane shutdown command
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.mu.Lock()
	g.cancelRun = cancel
	g.mu.Unlock()

	slog.Info("scangate service starting", "instance_id", g.cfg.InstanceID)

	if g.mqttSink != nil {
		// Hand-off is best-effort at startup: paho keeps retrying in the
		// background, and the log sink carries the stream meanwhile
		if err := g.mqttSink.Connect(ctx); err != nil {
			slog.Warn("mqtt connect failed, continuing with auto-reconnect", "error", err)
		}

		g.controlHandler = control.NewHandler(g.cfg.MQTT, g.mqttSink.Client, control.Callbacks{
			OnGetStatus: g.statusData,
			OnPause:     g.pause,
			OnResume:    g.resume,
			OnShutdown: func() error {
				cancel()
				return nil
			},
		})
		if err := g.controlHandler.Start(ctx); err != nil {
			slog.Warn("control plane unavailable", "error", err)
			g.controlHandler = nil
		}

		g.wg.Add(1)
		go g.publishHealth(ctx)
	}

	if err := g.provider.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	g.consumeScans(ctx)

	return nil
}

// consumeScans consumes records from the capture loop and distributes them
// to the sinks in order. Returns when the scan channel closes.
func (g *Gate) consumeScans(ctx context.Context) {
	slog.Info("scan consumer started")

	consumed := uint64(0)
	lastLog := time.Now()
	logInterval := 30 * time.Second

	for rec := range g.provider.Scans() {
		consumed++

		if g.isPausedCheck() {
			slog.Debug("scan skipped (paused)", "seq", rec.Seq, "trace_id", rec.TraceID)
		} else {
			g.bus.Distribute(ctx, rec)
		}

		if time.Since(lastLog) >= logInterval {
			stats := g.provider.Stats()
			slog.Debug("capture stats",
				"scans_consumed", consumed,
				"bytes_read", stats.BytesRead,
				"sessions", stats.Sessions,
				"reconnects", stats.Reconnects,
				"connected", stats.IsConnected,
			)
			lastLog = time.Now()
		}
	}

	slog.Info("scan consumer stopped", "total_scans", consumed)
}

// publishHealth publishes a health snapshot to MQTT every 30 seconds
func (g *Gate) publishHealth(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := g.HealthCheck().JSON()
			if err != nil {
				slog.Error("failed to marshal health status", "error", err)
				continue
			}
			if err := g.mqttSink.PublishHealth(payload); err != nil {
				slog.Debug("health publish failed", "error", err)
			}
		}
	}
}

// Shutdown stops all components, bounded by ctx
func (g *Gate) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if !g.isRunning {
		g.mu.Unlock()
		return nil
	}
	g.isRunning = false
	g.mu.Unlock()

	slog.Info("shutting down gate")

	if err := g.provider.Stop(); err != nil {
		slog.Warn("capture stop failed", "error", err)
	}

	if g.controlHandler != nil {
		_ = g.controlHandler.Stop()
	}

	if g.access != nil {
		g.access.Drain(ctx)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}

	if g.mqttSink != nil {
		g.mqttSink.Disconnect()
	}
	if err := g.logSink.Close(); err != nil {
		slog.Warn("output close failed", "error", err)
	}

	slog.Info("gate shutdown complete")
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown deadline
func (g *Gate) ShutdownTimeout() time.Duration {
	return time.Duration(g.cfg.ShutdownTimeoutS) * time.Second
}

// pause suppresses sink emission; capture keeps running
func (g *Gate) pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isPaused = true
	slog.Info("emission paused")
	return nil
}

// resume re-enables sink emission
func (g *Gate) resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isPaused = false
	slog.Info("emission resumed")
	return nil
}

func (g *Gate) isPausedCheck() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isPaused
}

// statusData builds the control plane get_status payload
func (g *Gate) statusData() map[string]any {
	stats := g.provider.Stats()
	busStats := g.bus.Stats()

	g.mu.RLock()
	paused := g.isPaused
	uptime := time.Since(g.started).Seconds()
	g.mu.RUnlock()

	return map[string]any{
		"instance_id":       g.cfg.InstanceID,
		"gate_id":           g.cfg.GateID,
		"uptime_seconds":    int64(uptime),
		"paused":            paused,
		"device_connected":  stats.IsConnected,
		"device":            stats.DeviceInfo,
		"scans_captured":    stats.ScansCaptured,
		"scans_distributed": busStats.ScansDistributed,
		"sessions":          stats.Sessions,
		"reconnects":        stats.Reconnects,
	}
}
