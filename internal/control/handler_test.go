package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/scangate/internal/config"
)

// fakeToken is an immediately-resolved paho token
type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient records publishes and captures the subscription handler.
// Unimplemented mqtt.Client methods are never called by the handler.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	handler   mqtt.MessageHandler
	published map[string][][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: make(map[string][][]byte)}
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = cb
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = append(c.published[topic], payload.([]byte))
	return &fakeToken{}
}

func (c *fakeClient) acks(topic string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.published[topic]...)
}

// fakeMessage carries only the payload; nothing else is read by the handler
type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m *fakeMessage) Payload() []byte { return m.payload }

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:   "localhost:1883",
		ClientID: "test-gate",
		Topics: config.MQTTTopics{
			Scans:   "scangate/scans/test-gate",
			Control: "scangate/control/test-gate",
			Health:  "scangate/health/test-gate",
		},
		QoS: map[string]byte{"scans": 1, "control": 1, "health": 0},
	}
}

// waitAck polls until one ack is published on the ack topic
func waitAck(t *testing.T, client *fakeClient, want int) []byte {
	t.Helper()
	topic := "scangate/control/test-gate/ack"
	deadline := time.After(2 * time.Second)
	for {
		if acks := client.acks(topic); len(acks) >= want {
			return acks[want-1]
		}
		select {
		case <-deadline:
			t.Fatalf("no ack %d published on %s", want, topic)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandler_CommandRoundTrip(t *testing.T) {
	client := newFakeClient()
	paused := false
	h := NewHandler(testMQTTConfig(), client, Callbacks{
		OnPause: func() error {
			paused = true
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	client.handler(nil, &fakeMessage{payload: []byte(`{"command":"pause"}`)})

	var resp Response
	if err := json.Unmarshal(waitAck(t, client, 1), &resp); err != nil {
		t.Fatalf("ack is not valid JSON: %v", err)
	}

	if !paused {
		t.Error("OnPause callback not invoked")
	}
	if resp.CommandAck != "pause" || resp.Status != "paused" {
		t.Errorf("ack = %+v, want command_ack pause, status paused", resp)
	}
	if resp.Data["emission_active"] != false {
		t.Errorf("Data[emission_active] = %v, want false", resp.Data["emission_active"])
	}
	if resp.Timestamp == "" {
		t.Error("ack timestamp not set")
	}
}

func TestHandler_BadJSONAcksError(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testMQTTConfig(), client, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	client.handler(nil, &fakeMessage{payload: []byte(`{not json`)})

	var resp Response
	if err := json.Unmarshal(waitAck(t, client, 1), &resp); err != nil {
		t.Fatalf("ack is not valid JSON: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Errorf("ack = %+v, want error status with message", resp)
	}
}

func TestHandleCommand(t *testing.T) {
	callbacks := Callbacks{
		OnGetStatus: func() map[string]any { return map[string]any{"paused": false} },
		OnResume:    func() error { return nil },
		OnShutdown:  func() error { return errors.New("already stopping") },
	}
	h := NewHandler(testMQTTConfig(), nil, callbacks)

	tests := []struct {
		name       string
		command    string
		wantStatus string
		wantErr    string
	}{
		{"get_status", "get_status", "success", ""},
		{"resume", "resume", "success", ""},
		{"shutdown callback error", "shutdown", "error", "already stopping"},
		{"pause not wired", "pause", "error", "pause not implemented"},
		{"unknown command", "reboot", "error", "unknown command: reboot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.handleCommand(Command{Command: tt.command})
			if resp.CommandAck != tt.command {
				t.Errorf("CommandAck = %q, want %q", resp.CommandAck, tt.command)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Error != tt.wantErr {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestHandler_StopIsSafeAgainstLateMessages(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testMQTTConfig(), client, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	// A broker message arriving after Stop must be dropped, not panic on a
	// send to the closed command channel
	client.handler(nil, &fakeMessage{payload: []byte(`{"command":"pause"}`)})
}
