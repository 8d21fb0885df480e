package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status           string    `json:"status"` // "healthy", "degraded"
	UptimeSeconds    int64     `json:"uptime_seconds"`
	DeviceConnected  bool      `json:"device_connected"`
	Device           string    `json:"device,omitempty"`
	MQTTConnected    bool      `json:"mqtt_connected"`
	ScansCaptured    uint64    `json:"scans_captured"`
	Sessions         uint64    `json:"sessions"`
	Reconnects       uint64    `json:"reconnects"`
	FragmentsDropped uint64    `json:"fragments_dropped"`
	ScansDropped     uint64    `json:"scans_dropped"`
	LastScanAt       time.Time `json:"last_scan_at,omitempty"`
	Paused           bool      `json:"paused"`
}

// JSON serializes the status for the MQTT health topic
func (h HealthStatus) JSON() ([]byte, error) {
	return json.Marshal(h)
}

// HealthCheck returns the current health status. The service is degraded,
// not unhealthy, while the device is disconnected: the loop is still up and
// reconnecting on its own.
func (g *Gate) HealthCheck() HealthStatus {
	stats := g.provider.Stats()

	g.mu.RLock()
	uptime := int64(time.Since(g.started).Seconds())
	paused := g.isPaused
	g.mu.RUnlock()

	status := HealthStatus{
		Status:           "healthy",
		UptimeSeconds:    uptime,
		DeviceConnected:  stats.IsConnected,
		Device:           stats.DeviceInfo,
		ScansCaptured:    stats.ScansCaptured,
		Sessions:         stats.Sessions,
		Reconnects:       stats.Reconnects,
		FragmentsDropped: stats.FragmentsDropped,
		ScansDropped:     stats.ScansDropped,
		LastScanAt:       stats.LastScanAt,
		Paused:           paused,
	}

	if g.mqttSink != nil {
		status.MQTTConnected = g.mqttSink.IsConnected()
	}

	if !stats.IsConnected {
		status.Status = "degraded"
	}

	return status
}

// StartHealthServer exposes GET /health on the given port (non-blocking).
// An empty port disables the endpoint.
func (g *Gate) StartHealthServer(port string) error {
	if port == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(g.HealthCheck()); err != nil {
			slog.Error("failed to encode health status", "error", err)
		}
	})

	go func() {
		addr := ":" + port
		slog.Info("health server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("health server stopped", "error", err)
		}
	}()

	return nil
}
