package device

import (
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/google/gousb"
	"golang.org/x/sys/unix"
)

func TestClassifyOpenErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing node", fs.ErrNotExist, ErrDeviceNotFound},
		{"no device", unix.ENODEV, ErrDeviceNotFound},
		{"permission", fs.ErrPermission, ErrPermission},
		{"other", errors.New("boom"), ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyOpenErr("/dev/input/event5", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyOpenErr(%v) = %v, want kind %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyReadErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"eof means unplugged", io.EOF, ErrDisconnected},
		{"enodev means unplugged", unix.ENODEV, ErrDisconnected},
		{"enxio means unplugged", unix.ENXIO, ErrDisconnected},
		{"closed file", fs.ErrClosed, ErrDisconnected},
		{"other fault", unix.EIO, ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyReadErr(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyReadErr(%v) = %v, want kind %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDetermineMode(t *testing.T) {
	tests := []struct {
		name                     string
		class, subClass, protocol int
		want                     ScannerMode
	}{
		{"keyboard emulation", 3, 1, 1, ScannerModeKeyboard},
		{"hid pos", 3, 0, 0, ScannerModeHIDPOS},
		{"cdc-acm com", 2, 2, 1, ScannerModeCOM},
		{"unknown triplet", 255, 0, 0, ScannerModeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := determineMode(
				gousb.Class(tt.class),
				gousb.Class(tt.subClass),
				gousb.Protocol(tt.protocol),
			)
			if got != tt.want {
				t.Errorf("determineMode() = %v, want %v", got, tt.want)
			}
		})
	}
}
