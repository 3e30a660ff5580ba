package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// USBSource lists attached devices exposing the printer interface class.
type USBSource struct {
	logger *zap.Logger
}

func NewUSBSource(logger *zap.Logger) *USBSource {
	return &USBSource{logger: logger.Named("usb")}
}

func (s *USBSource) Name() string { return "usb" }

func (s *USBSource) Discover(_ context.Context) ([]profile.PrinterInfo, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	devices := transport.FindPrinters(usbCtx)
	printers := make([]profile.PrinterInfo, 0, len(devices))
	for _, dev := range devices {
		printers = append(printers, usbPrinterInfo(dev.Desc.Vendor, dev.Desc.Product, describe(dev)))
		dev.Close()
	}

	s.logger.Debug("usb scan", zap.Int("printers", len(printers)))
	return printers, nil
}

type usbStrings struct {
	manufacturer, product, serial string
}

func describe(dev *gousb.Device) usbStrings {
	var d usbStrings
	d.manufacturer, _ = dev.Manufacturer()
	d.product, _ = dev.Product()
	d.serial, _ = dev.SerialNumber()
	return d
}

// usbPrinterInfo builds the descriptor; the address is the form
// transport.ParseUSBAddress accepts.
func usbPrinterInfo(vid, pid gousb.ID, d usbStrings) profile.PrinterInfo {
	addr := transport.USBAddress{Vendor: vid, Product: pid, Serial: strings.TrimSpace(d.serial)}

	id := fmt.Sprintf("usb:%s:%s", vid, pid)
	if addr.Serial != "" {
		id += ":" + addr.Serial
	}

	name := strings.TrimSpace(strings.TrimSpace(d.manufacturer) + " " + strings.TrimSpace(d.product))
	if name == "" {
		name = fmt.Sprintf("USB printer %s:%s", vid, pid)
	}

	return profile.PrinterInfo{
		ID:      id,
		Name:    name,
		Address: addr.String(),
		Model:   strings.TrimSpace(d.product),
		Type:    transport.USB,
	}
}
