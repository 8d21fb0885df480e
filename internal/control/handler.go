// Package control implements the MQTT control plane: status queries and
// pause/resume/shutdown commands from the fleet manager.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/scangate/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Callbacks contains the command implementations supplied by the orchestrator
type Callbacks struct {
	OnGetStatus func() map[string]any
	OnPause     func() error
	OnResume    func() error
	OnShutdown  func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg       config.MQTTConfig
	client    mqtt.Client
	commands  chan Command
	callbacks Callbacks

	mu     sync.Mutex
	closed bool
}

// NewHandler creates a control plane handler
func NewHandler(cfg config.MQTTConfig, client mqtt.Client, callbacks Callbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start subscribes to the control topic and begins processing commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Topics.Control
	qos := h.cfg.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop unsubscribes and stops processing. Idempotent. The closed flag is
// set before the channel closes so a paho message callback still in flight
// cannot send into a closed channel.
func (h *Handler) Stop() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.Topics.Control)
		token.Wait()
	}

	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	// The check and the send share the mutex so Stop cannot close the
	// channel between them
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		slog.Debug("command after shutdown, dropping", "command", cmd.Command)
		return
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

// handleCommand executes a command and builds the ack
func (h *Handler) handleCommand(cmd Command) Response {
	var resp Response
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	case "pause":
		resp = h.runCallback(cmd, h.callbacks.OnPause, "paused",
			map[string]any{"emission_active": false})

	case "resume":
		resp = h.runCallback(cmd, h.callbacks.OnResume, "success",
			map[string]any{"emission_active": true})

	case "shutdown":
		resp = h.runCallback(cmd, h.callbacks.OnShutdown, "success",
			map[string]any{"shutting_down": true})

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	return resp
}

// runCallback executes a no-argument callback and builds the ack
func (h *Handler) runCallback(cmd Command, fn func() error, okStatus string, okData map[string]any) Response {
	resp := Response{CommandAck: cmd.Command}
	if fn == nil {
		resp.Status = "error"
		resp.Error = fmt.Sprintf("%s not implemented", cmd.Command)
		return resp
	}
	if err := fn(); err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		return resp
	}
	resp.Status = okStatus
	resp.Data = okData
	return resp
}

// sendResponse publishes the ack on <control topic>/ack
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal control response", "error", err)
		return
	}

	topic := h.cfg.Topics.Control + "/ack"
	token := h.client.Publish(topic, h.cfg.QoS["control"], false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Warn("control response publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control response publish failed", "topic", topic, "error", err)
	}
}
