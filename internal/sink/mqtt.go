package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/scangate/internal/config"
	"github.com/e7canasta/scangate/internal/types"
)

// MQTTSink publishes scan records to the local hand-off topic so other
// processes on the host can consume them.
type MQTTSink struct {
	cfg    config.MQTTConfig
	Client mqtt.Client // Exported for the control plane

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTSink creates an MQTT hand-off sink
func NewMQTTSink(cfg config.MQTTConfig) *MQTTSink {
	return &MQTTSink{cfg: cfg}
}

// Connect establishes the broker connection with auto-reconnect
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", s.cfg.Broker,
			"client_id", s.cfg.ClientID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", s.cfg.Broker,
		)
	}

	s.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", s.cfg.Broker)

	token := s.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	return nil
}

// Name identifies the sink in logs and stats
func (s *MQTTSink) Name() string { return "mqtt" }

// Emit publishes one record as JSON to the scans topic
func (s *MQTTSink) Emit(ctx context.Context, rec types.ScanRecord) error {
	if !s.IsConnected() {
		s.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		s.countError()
		return fmt.Errorf("failed to marshal scan record: %w", err)
	}

	token := s.Client.Publish(s.cfg.Topics.Scans, s.cfg.QoS["scans"], false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		s.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		s.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()

	slog.Debug("scan published",
		"topic", s.cfg.Topics.Scans,
		"seq", rec.Seq,
		"trace_id", rec.TraceID,
	)

	return nil
}

// PublishHealth publishes a health snapshot to the health topic
func (s *MQTTSink) PublishHealth(payload []byte) error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	token := s.Client.Publish(s.cfg.Topics.Health, s.cfg.QoS["health"], false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// IsConnected reports whether the broker connection is up
func (s *MQTTSink) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Disconnect closes the broker connection
func (s *MQTTSink) Disconnect() {
	if s.Client != nil && s.Client.IsConnected() {
		s.Client.Disconnect(250)
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}
