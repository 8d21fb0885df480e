package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		InstanceID: "gate-01",
		Scanner: ScannerConfig{
			Type:   "evdev",
			Device: "/dev/input/event5",
		},
	}
}

func TestValidate_FailFast(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing instance_id",
			mutate:  func(c *Config) { c.InstanceID = "" },
			wantErr: true,
			errMsg:  "instance_id is required",
		},
		{
			name:    "bad instance_id pattern",
			mutate:  func(c *Config) { c.InstanceID = "Gate 01" },
			wantErr: true,
			errMsg:  "instance_id must match",
		},
		{
			name:    "unknown scanner type",
			mutate:  func(c *Config) { c.Scanner.Type = "telnet" },
			wantErr: true,
			errMsg:  "unknown type",
		},
		{
			name:    "evdev requires device path",
			mutate:  func(c *Config) { c.Scanner.Device = "" },
			wantErr: true,
			errMsg:  "device path is required",
		},
		{
			name: "usb requires vid and pid",
			mutate: func(c *Config) {
				c.Scanner.Type = "usb"
				c.Scanner.Device = ""
			},
			wantErr: true,
			errMsg:  "vendor_id and product_id",
		},
		{
			name: "usb with device path but no ids",
			mutate: func(c *Config) {
				c.Scanner.Type = "usb"
				c.Scanner.Device = "/dev/bus/usb/001/004"
			},
			wantErr: true,
			errMsg:  "vendor_id and product_id",
		},
		{
			name: "usb with vid and pid",
			mutate: func(c *Config) {
				c.Scanner.Type = "usb"
				c.Scanner.Device = ""
				c.Scanner.VendorID = 0x0c2e
				c.Scanner.ProductID = 0x0a07
			},
			wantErr: false,
		},
		{
			name:    "multi-byte delimiter rejected",
			mutate:  func(c *Config) { c.Scanner.Delimiter = "\r\n" },
			wantErr: true,
			errMsg:  "single byte",
		},
		{
			name: "backoff ceiling below baseline",
			mutate: func(c *Config) {
				c.Backoff.InitialS = 10
				c.Backoff.MaxS = 5
			},
			wantErr: true,
			errMsg:  "backoff.max_s",
		},
		{
			name:    "bad output mode",
			mutate:  func(c *Config) { c.Output.Mode = "xml" },
			wantErr: true,
			errMsg:  "output.mode",
		},
		{
			name: "unknown relay driver",
			mutate: func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.Driver = "i2c"
			},
			wantErr: true,
			errMsg:  "unknown driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want containing %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("ShutdownTimeoutS = %d, want 5", cfg.ShutdownTimeoutS)
	}
	if cfg.Scanner.Delimiter != "\n" {
		t.Errorf("Delimiter = %q, want \\n", cfg.Scanner.Delimiter)
	}
	if cfg.Scanner.ReadTimeoutMS != 250 {
		t.Errorf("ReadTimeoutMS = %d, want 250", cfg.Scanner.ReadTimeoutMS)
	}
	if cfg.Backoff.InitialS != 1 || cfg.Backoff.MaxS != 30 {
		t.Errorf("Backoff = %d/%d, want 1/30", cfg.Backoff.InitialS, cfg.Backoff.MaxS)
	}
	if cfg.Output.Mode != "text" {
		t.Errorf("Output.Mode = %q, want text", cfg.Output.Mode)
	}
}

func TestValidate_MQTTDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Broker = "localhost:1883"

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.MQTT.ClientID != "gate-01" {
		t.Errorf("ClientID = %q, want gate-01", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.Topics.Scans != "scangate/scans/gate-01" {
		t.Errorf("Topics.Scans = %q", cfg.MQTT.Topics.Scans)
	}
	if cfg.MQTT.Topics.Control != "scangate/control/gate-01" {
		t.Errorf("Topics.Control = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.QoS["scans"] != 1 {
		t.Errorf("QoS[scans] = %d, want 1", cfg.MQTT.QoS["scans"])
	}
}

func TestValidate_RelayDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.Enabled = true

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Relay.Driver != "gpio" {
		t.Errorf("Relay.Driver = %q, want gpio", cfg.Relay.Driver)
	}
	if cfg.Relay.Pin != "GPIO17" {
		t.Errorf("Relay.Pin = %q, want GPIO17", cfg.Relay.Pin)
	}
	if cfg.Relay.HoldS != 30 {
		t.Errorf("Relay.HoldS = %d, want 30", cfg.Relay.HoldS)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scangate.yaml")

	yaml := `
instance_id: gate-07
gate_id: side-door
scanner:
  type: serial
  device: /dev/ttyACM0
  baud: 115200
backoff:
  initial_s: 2
  max_s: 60
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.InstanceID != "gate-07" {
		t.Errorf("InstanceID = %q, want gate-07", cfg.InstanceID)
	}
	if cfg.Scanner.Type != "serial" || cfg.Scanner.Baud != 115200 {
		t.Errorf("Scanner = %+v", cfg.Scanner)
	}
	if cfg.Backoff.MaxS != 60 {
		t.Errorf("Backoff.MaxS = %d, want 60", cfg.Backoff.MaxS)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scangate.yaml")

	yaml := `
instance_id: gate-07
scanner:
  type: evdev
  device: /dev/input/event5
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCANGATE_DEVICE", "/dev/input/event9")
	t.Setenv("SCANGATE_MQTT_BROKER", "broker.local:1883")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scanner.Device != "/dev/input/event9" {
		t.Errorf("Device = %q, want /dev/input/event9", cfg.Scanner.Device)
	}
	if cfg.MQTT.Broker != "broker.local:1883" {
		t.Errorf("Broker = %q, want broker.local:1883", cfg.MQTT.Broker)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/scangate.yaml"); err == nil {
		t.Error("Load() = nil, want error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scangate.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil, want error")
	}
}
