package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// IfaceClassPrinter is the USB interface class of printers.
// Reference: http://www.usb.org/developers/defined_class
const IfaceClassPrinter = 0x07

// USBAddress selects a USB printer. An Auto address picks the first device
// exposing a printer interface.
type USBAddress struct {
	Vendor  gousb.ID
	Product gousb.ID
	Serial  string
	Auto    bool
}

func (a USBAddress) String() string {
	if a.Auto {
		return "auto"
	}
	s := fmt.Sprintf("%s:%s", a.Vendor, a.Product)
	if a.Serial != "" {
		s += "/" + a.Serial
	}
	return s
}

// ParseUSBAddress parses "vid:pid", "vid:pid/serial" (hex IDs) or "auto".
func ParseUSBAddress(address string) (USBAddress, error) {
	address = strings.TrimSpace(address)
	if address == "" || strings.EqualFold(address, "auto") {
		return USBAddress{Auto: true}, nil
	}

	ids, serial, _ := strings.Cut(address, "/")
	vid, pid, ok := strings.Cut(ids, ":")
	if !ok {
		return USBAddress{}, invalidAddress(USB, address, "expected vid:pid")
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(vid), "0x"), 16, 16)
	if err != nil {
		return USBAddress{}, invalidAddress(USB, address, "bad vendor id")
	}
	p, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(pid), "0x"), 16, 16)
	if err != nil {
		return USBAddress{}, invalidAddress(USB, address, "bad product id")
	}

	return USBAddress{Vendor: gousb.ID(v), Product: gousb.ID(p), Serial: serial}, nil
}

// USBTransport writes to printers attached in host mode through libusb.
type USBTransport struct {
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewUSBTransport creates a USB transport.
func NewUSBTransport(logger *zap.Logger, writeTimeout time.Duration) *USBTransport {
	return &USBTransport{
		logger:       logger.Named("usb"),
		writeTimeout: writeTimeout,
	}
}

// Kind returns USB.
func (t *USBTransport) Kind() Kind { return USB }

// Open finds the device, claims its printer interface and locates the bulk
// OUT endpoint.
func (t *USBTransport) Open(address string, timeout time.Duration) (Conn, error) {
	addr, err := ParseUSBAddress(address)
	if err != nil {
		return nil, err
	}

	return openWithTimeout(USB, address, timeout, func() (Conn, error) {
		return t.open(addr)
	})
}

func (t *USBTransport) open(addr USBAddress) (Conn, error) {
	ctx := gousb.NewContext()

	dev, err := findDevice(ctx, addr)
	if err != nil {
		ctx.Close()
		return nil, classifyUSB(addr.String(), err)
	}

	c, err := claimPrinter(ctx, dev, t.writeTimeout)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, classifyUSB(addr.String(), err)
	}

	t.logger.Debug("claimed printer interface", zap.String("device", dev.String()))
	return c, nil
}

var errNoDevice = errors.New("cannot find printer")

func findDevice(ctx *gousb.Context, addr USBAddress) (*gousb.Device, error) {
	if addr.Auto {
		printers := FindPrinters(ctx)
		if len(printers) == 0 {
			return nil, errNoDevice
		}
		for _, p := range printers[1:] {
			p.Close()
		}
		return printers[0], nil
	}

	if addr.Serial == "" {
		return GetDeviceByVIDPID(ctx, uint16(addr.Vendor), uint16(addr.Product))
	}

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == addr.Vendor && desc.Product == addr.Product
	})
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	var match *gousb.Device
	for _, dev := range devices {
		if match == nil {
			if s, err := dev.SerialNumber(); err == nil && s == addr.Serial {
				match = dev
				continue
			}
		}
		dev.Close()
	}
	if match == nil {
		return nil, errors.New("device with serial number not found")
	}
	return match, nil
}

// IsPrinter checks if a device is a printer
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}
	_, ok := printerInterface(dev)
	return ok
}

// printerInterface returns the number of the first interface in the active
// configuration whose class is printer.
func printerInterface(dev *gousb.Device) (int, bool) {
	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return 0, false
	}
	cfgDesc, ok := dev.Desc.Configs[cfgNum]
	if !ok {
		return 0, false
	}
	return printerInterfaceIn(cfgDesc)
}

func printerInterfaceIn(cfgDesc gousb.ConfigDesc) (int, bool) {
	for _, iface := range cfgDesc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return iface.Number, true
			}
		}
	}
	return 0, false
}

// FindPrinters returns all USB printer devices. The caller closes them.
func FindPrinters(ctx *gousb.Context) []*gousb.Device {
	var printers []*gousb.Device

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true // Check all devices
	})
	if err != nil && len(devices) == 0 {
		return printers
	}

	for _, dev := range devices {
		if IsPrinter(dev) {
			printers = append(printers, dev)
		} else {
			dev.Close()
		}
	}

	return printers
}

// GetDeviceByVIDPID opens a device by VID and PID
func GetDeviceByVIDPID(ctx *gousb.Context, vid, pid uint16) (*gousb.Device, error) {
	device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, errNoDevice
	}
	return device, nil
}

func claimPrinter(ctx *gousb.Context, dev *gousb.Device, writeTimeout time.Duration) (*usbConn, error) {
	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		_ = dev.SetAutoDetach(true)
	}

	ifaceNum, ok := printerInterface(dev)
	if !ok {
		return nil, errors.New("no printer interface found")
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	iface, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	var out *gousb.OutEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut {
			if out, err = iface.OutEndpoint(epDesc.Number); err == nil {
				break
			}
		}
	}
	if out == nil {
		iface.Close()
		cfg.Close()
		return nil, errors.New("cannot find output endpoint from printer")
	}

	return &usbConn{
		ctx:          ctx,
		dev:          dev,
		cfg:          cfg,
		iface:        iface,
		out:          out,
		writeTimeout: writeTimeout,
	}, nil
}

func classifyUSB(address string, err error) error {
	var usbErr gousb.Error
	if errors.As(err, &usbErr) {
		k := printerr.Unreachable
		switch usbErr {
		case gousb.ErrorAccess:
			k = printerr.PermissionDenied
		case gousb.ErrorNoDevice, gousb.ErrorNotFound:
			k = printerr.NotFound
		case gousb.ErrorTimeout:
			k = printerr.Timeout
		case gousb.ErrorNotSupported:
			k = printerr.Unsupported
		}
		return &printerr.ConnectionError{Kind: k, Transport: string(USB), Address: address, Err: err}
	}
	if errors.Is(err, errNoDevice) {
		return &printerr.ConnectionError{Kind: printerr.NotFound, Transport: string(USB), Address: address, Err: err}
	}
	return classify(USB, address, err)
}

type usbConn struct {
	ctx          *gousb.Context
	dev          *gousb.Device
	cfg          *gousb.Config
	iface        *gousb.Interface
	out          *gousb.OutEndpoint
	writeTimeout time.Duration
}

func (c *usbConn) Write(p []byte) (int, error) {
	ctx := context.Background()
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}

	n, err := c.out.WriteContext(ctx, p)
	if err != nil {
		return n, &printerr.IOError{Transport: string(USB), Err: err}
	}
	return n, nil
}

// Close releases the interface, configuration, device and libusb context in
// that order.
func (c *usbConn) Close() error {
	var errs []error

	c.iface.Close()
	if err := c.cfg.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ctx.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
