package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete scangate configuration
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	GateID           string        `yaml:"gate_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	HealthPort       string        `yaml:"health_port"`        // Empty disables the health endpoint
	Scanner          ScannerConfig `yaml:"scanner"`
	Backoff          BackoffConfig `yaml:"backoff"`
	Output           OutputConfig  `yaml:"output"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
	Token            TokenConfig   `yaml:"token"`
	Relay            RelayConfig   `yaml:"relay"`
}

// ScannerConfig contains scanner device settings
type ScannerConfig struct {
	Type          string `yaml:"type"`            // evdev, usb, serial, mock
	Device        string `yaml:"device"`          // e.g. /dev/input/event5 or /dev/ttyACM0 (evdev/serial)
	VendorID      uint16 `yaml:"vendor_id"`       // USB discovery is by VID/PID
	ProductID     uint16 `yaml:"product_id"`
	SerialNumber  string `yaml:"serial_number"`   // Optional USB serial number
	Baud          int    `yaml:"baud"`            // Serial baud rate (default: 9600)
	Delimiter     string `yaml:"delimiter"`       // Record terminator (default: "\n")
	StripCR       bool   `yaml:"strip_cr"`        // Drop trailing \r before the delimiter
	ReadTimeoutMS int    `yaml:"read_timeout_ms"` // Poll timeout bounding shutdown latency (default: 250)
}

// BackoffConfig contains reconnect backoff settings
type BackoffConfig struct {
	InitialS int `yaml:"initial_s"` // Baseline wait between reconnects (default: 1)
	MaxS     int `yaml:"max_s"`     // Backoff ceiling (default: 30)
}

// OutputConfig contains the append-only scan log sink settings
type OutputConfig struct {
	Mode string `yaml:"mode"` // "text" (payload per line) or "json" (record per line)
	Path string `yaml:"path"` // Empty means stdout
}

// MQTTConfig contains MQTT hand-off settings. Empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string          `yaml:"broker"`
	ClientID string          `yaml:"client_id"`
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Scans   string `yaml:"scans"`
	Control string `yaml:"control"`
	Health  string `yaml:"health"`
}

// TokenConfig controls JWT decoding of scan payloads
type TokenConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RelayConfig contains relay actuation settings
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // "gpio", "noop" (default: gpio when enabled)
	Pin     string `yaml:"pin"`    // GPIO line name (default: GPIO17)
	HoldS   int    `yaml:"hold_s"` // Seconds the line is held high (default: 30)
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets the supervisor environment override deploy-specific values
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCANGATE_DEVICE"); v != "" {
		cfg.Scanner.Device = v
	}
	if v := os.Getenv("SCANGATE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
}
