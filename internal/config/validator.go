package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills in defaults.
// Any error here is fatal at startup: there is no sensible recovery from
// a broken configuration, unlike a missing device.
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5 // default
	}

	if err := validateScanner(&cfg.Scanner); err != nil {
		return fmt.Errorf("scanner validation failed: %w", err)
	}

	// Backoff defaults: 1s baseline doubling to a 30s ceiling
	if cfg.Backoff.InitialS <= 0 {
		cfg.Backoff.InitialS = 1
	}
	if cfg.Backoff.MaxS <= 0 {
		cfg.Backoff.MaxS = 30
	}
	if cfg.Backoff.MaxS < cfg.Backoff.InitialS {
		return fmt.Errorf("backoff.max_s (%d) must be >= backoff.initial_s (%d)",
			cfg.Backoff.MaxS, cfg.Backoff.InitialS)
	}

	switch cfg.Output.Mode {
	case "":
		cfg.Output.Mode = "text"
	case "text", "json":
	default:
		return fmt.Errorf("output.mode must be 'text' or 'json', got '%s'", cfg.Output.Mode)
	}

	// MQTT is optional; validate topics only when a broker is configured
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = cfg.InstanceID
		}
		if cfg.MQTT.Topics.Scans == "" {
			cfg.MQTT.Topics.Scans = fmt.Sprintf("scangate/scans/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("scangate/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("scangate/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"scans":   1,
				"control": 1,
				"health":  0,
			}
		}
	}

	if err := validateRelay(&cfg.Relay); err != nil {
		return fmt.Errorf("relay validation failed: %w", err)
	}

	return nil
}

// validateScanner validates device settings for the configured reader type
func validateScanner(sc *ScannerConfig) error {
	switch sc.Type {
	case "":
		sc.Type = "evdev"
	case "evdev", "usb", "serial", "mock":
	default:
		return fmt.Errorf("unknown type '%s' (must be evdev, usb, serial or mock)", sc.Type)
	}

	switch sc.Type {
	case "evdev", "serial":
		if sc.Device == "" {
			return fmt.Errorf("device path is required for type '%s'", sc.Type)
		}
	case "usb":
		// The usb reader discovers by VID/PID only; a device path alone
		// would validate and then never open
		if sc.VendorID == 0 || sc.ProductID == 0 {
			return fmt.Errorf("usb scanner requires vendor_id and product_id")
		}
	}

	if sc.Baud <= 0 {
		sc.Baud = 9600
	}
	if sc.Delimiter == "" {
		sc.Delimiter = "\n"
	}
	if len(sc.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single byte, got %q", sc.Delimiter)
	}
	if sc.ReadTimeoutMS <= 0 {
		sc.ReadTimeoutMS = 250
	}

	return nil
}

// validateRelay validates relay settings, matching the original gate defaults
func validateRelay(rc *RelayConfig) error {
	if !rc.Enabled {
		return nil
	}
	switch rc.Driver {
	case "":
		rc.Driver = "gpio"
	case "gpio", "noop":
	default:
		return fmt.Errorf("unknown driver '%s' (must be gpio or noop)", rc.Driver)
	}
	if rc.Pin == "" {
		rc.Pin = "GPIO17"
	}
	if rc.HoldS <= 0 {
		rc.HoldS = 30
	}
	return nil
}
