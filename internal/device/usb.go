package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/e7canasta/scangate/internal/config"
)

// ScannerMode identifies how a USB scanner presents its data
type ScannerMode uint8

const (
	// ScannerModeUnknown is an interface triplet we do not recognize
	ScannerModeUnknown ScannerMode = iota
	// ScannerModeKeyboard is HID keyboard emulation (class 3, subclass 1, protocol 1)
	ScannerModeKeyboard
	// ScannerModeHIDPOS is the HID POS profile (class 3, subclass 0, protocol 0)
	ScannerModeHIDPOS
	// ScannerModeCOM is CDC-ACM virtual COM (class 2, subclass 2, protocol 1)
	ScannerModeCOM
)

func (m ScannerMode) String() string {
	switch m {
	case ScannerModeKeyboard:
		return "keyboard"
	case ScannerModeHIDPOS:
		return "hidpos"
	case ScannerModeCOM:
		return "com"
	default:
		return "unknown"
	}
}

// determineMode classifies the scanner from the interface descriptor triplet
func determineMode(class, subClass gousb.Class, protocol gousb.Protocol) ScannerMode {
	switch {
	case class == 3 && subClass == 1 && protocol == 1:
		return ScannerModeKeyboard
	case class == 3 && subClass == 0 && protocol == 0:
		return ScannerModeHIDPOS
	case class == 2 && subClass == 2 && protocol == 1:
		return ScannerModeCOM
	default:
		return ScannerModeUnknown
	}
}

// endpointInfo locates the IN endpoint within the device descriptor tree
type endpointInfo struct {
	config        int
	iface         int
	setting       int
	endpoint      int
	maxPacketSize int
	mode          ScannerMode
}

// USBReader reads a scanner over raw USB using discovery by VID/PID. It
// claims the first IN endpoint, reads MaxPacketSize chunks and translates
// keyboard-emulation reports to payload bytes when the interface requires it.
type USBReader struct {
	cfg       config.ScannerConfig
	timeout   time.Duration
	delimiter byte

	mu      sync.Mutex
	usbCtx  *gousb.Context
	dev     *gousb.Device
	devCfg  *gousb.Config
	intf    *gousb.Interface
	ep      *gousb.InEndpoint
	info    endpointInfo
	reports *bootReportDecoder
	isOpen  bool
}

// NewUSBReader creates a reader discovering the scanner by vendor/product ID
func NewUSBReader(cfg config.ScannerConfig) *USBReader {
	return &USBReader{
		cfg:       cfg,
		timeout:   time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		delimiter: cfg.Delimiter[0],
	}
}

// Open discovers and claims the scanner's IN endpoint
func (r *USBReader) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isOpen {
		return fmt.Errorf("%w: usb device already open", ErrIO)
	}

	usbCtx := gousb.NewContext()

	dev, err := r.openDevice(usbCtx)
	if err != nil {
		usbCtx.Close()
		return err
	}

	// The kernel HID driver binds keyboard-emulation scanners by default
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: auto-detach: %v", ErrIO, err)
	}

	info, ok := findInEndpoint(dev.Desc)
	if !ok {
		dev.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: no IN endpoint on %04x:%04x",
			ErrDeviceNotFound, r.cfg.VendorID, r.cfg.ProductID)
	}

	devCfg, err := dev.Config(info.config)
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: claim config %d: %v", ErrIO, info.config, err)
	}
	intf, err := devCfg.Interface(info.iface, info.setting)
	if err != nil {
		devCfg.Close()
		dev.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: claim interface %d: %v", ErrIO, info.iface, err)
	}
	ep, err := intf.InEndpoint(info.endpoint)
	if err != nil {
		intf.Close()
		devCfg.Close()
		dev.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: endpoint %d: %v", ErrIO, info.endpoint, err)
	}

	r.usbCtx = usbCtx
	r.dev = dev
	r.devCfg = devCfg
	r.intf = intf
	r.ep = ep
	r.info = info
	r.reports = newBootReportDecoder(r.delimiter)
	r.isOpen = true

	return nil
}

// openDevice opens by VID/PID, filtering on serial number when configured
func (r *USBReader) openDevice(usbCtx *gousb.Context) (*gousb.Device, error) {
	vid := gousb.ID(r.cfg.VendorID)
	pid := gousb.ID(r.cfg.ProductID)

	if r.cfg.SerialNumber == "" {
		dev, err := usbCtx.OpenDeviceWithVIDPID(vid, pid)
		if err != nil {
			if errors.Is(err, gousb.ErrorAccess) {
				return nil, fmt.Errorf("%w: %04x:%04x: %v", ErrPermission, vid, pid, err)
			}
			return nil, fmt.Errorf("%w: open %04x:%04x: %v", ErrIO, vid, pid, err)
		}
		if dev == nil {
			return nil, fmt.Errorf("%w: no usb device %04x:%04x", ErrDeviceNotFound, vid, pid)
		}
		return dev, nil
	}

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		if errors.Is(err, gousb.ErrorAccess) {
			return nil, fmt.Errorf("%w: %04x:%04x: %v", ErrPermission, vid, pid, err)
		}
		return nil, fmt.Errorf("%w: enumerate %04x:%04x: %v", ErrIO, vid, pid, err)
	}

	var match *gousb.Device
	for _, d := range devs {
		serial, serr := d.SerialNumber()
		if match == nil && serr == nil && serial == r.cfg.SerialNumber {
			match = d
			continue
		}
		d.Close()
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no usb device %04x:%04x serial %s",
			ErrDeviceNotFound, vid, pid, r.cfg.SerialNumber)
	}
	return match, nil
}

// findInEndpoint walks configs, interfaces and alt settings for the first
// IN endpoint, the traversal order scanners expose their data interface in
func findInEndpoint(desc *gousb.DeviceDesc) (endpointInfo, bool) {
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				for _, end := range alt.Endpoints {
					if end.Direction != gousb.EndpointDirectionIn {
						continue
					}
					return endpointInfo{
						config:        cfg.Number,
						iface:         iface.Number,
						setting:       alt.Alternate,
						endpoint:      end.Number,
						maxPacketSize: end.MaxPacketSize,
						mode:          determineMode(alt.Class, alt.SubClass, alt.Protocol),
					}, true
				}
			}
		}
	}
	return endpointInfo{}, false
}

// ReadChunk reads one transfer from the IN endpoint. Keyboard-emulation
// interfaces yield decoded payload bytes; HID POS and COM yield raw bytes.
func (r *USBReader) ReadChunk(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	ep := r.ep
	isOpen := r.isOpen
	mode := r.info.mode
	size := r.info.maxPacketSize
	reports := r.reports
	r.mu.Unlock()

	if !isOpen {
		return nil, ErrClosed
	}

	readCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	buf := make([]byte, size)
	n, err := ep.ReadContext(readCtx, buf)
	if err != nil {
		switch {
		case errors.Is(readCtx.Err(), context.DeadlineExceeded):
			return nil, ErrReadTimeout
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.ErrorNotFound):
			return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if n == 0 {
		return nil, ErrReadTimeout
	}

	if mode == ScannerModeKeyboard {
		return reports.Decode(buf[:n]), nil
	}
	return buf[:n], nil
}

// Close releases the claimed interface and device. Idempotent, best-effort.
func (r *USBReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen {
		return nil
	}
	r.isOpen = false

	if r.intf != nil {
		r.intf.Close()
	}
	if r.devCfg != nil {
		_ = r.devCfg.Close()
	}
	if r.dev != nil {
		_ = r.dev.Close()
	}
	if r.usbCtx != nil {
		_ = r.usbCtx.Close()
	}
	r.intf, r.devCfg, r.dev, r.usbCtx, r.ep = nil, nil, nil, nil, nil

	return nil
}

// Info returns the device identity for logs. Guarded because Open writes
// the endpoint info while other goroutines log the identity.
func (r *USBReader) Info() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("usb:%04x:%04x mode=%s", r.cfg.VendorID, r.cfg.ProductID, r.info.mode)
}
