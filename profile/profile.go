// Package profile holds the printer descriptors and the store for the
// active printer profile.
package profile

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// DefaultConnectTimeout applies when a profile does not set one.
const DefaultConnectTimeout = 5 * time.Second

// PrinterInfo identifies one physical printer. Address is transport
// specific: MAC or serial port, USB vid:pid, or host:port.
type PrinterInfo struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Address string         `json:"address"`
	Model   string         `json:"model,omitempty"`
	Type    transport.Kind `json:"type"`
}

// Profile is the selected printer plus its print configuration.
type Profile struct {
	Printer        PrinterInfo
	PaperWidth     escpos.Width
	LineSpacing    int
	ConnectTimeout time.Duration
	// Endpoints lists addresses of the same printer on other transports.
	Endpoints map[transport.Kind]string
}

// Validate checks the fields the print path depends on.
func (p *Profile) Validate() error {
	if !p.Printer.Type.Valid() {
		return invalid("printer type %q", p.Printer.Type)
	}
	if _, err := escpos.ParseWidth(int(p.PaperWidth)); err != nil {
		return err
	}
	if p.LineSpacing < 0 || p.LineSpacing > 255 {
		return invalid("line spacing %d outside 0-255", p.LineSpacing)
	}
	if p.ConnectTimeout < 0 {
		return invalid("negative connect timeout")
	}
	for k := range p.Endpoints {
		if !k.Valid() {
			return invalid("endpoint type %q", k)
		}
	}
	return nil
}

// Timeout returns the connect timeout, falling back to the default.
func (p *Profile) Timeout() time.Duration {
	if p.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return p.ConnectTimeout
}

// Key identifies the physical printer for job serialization. Without an ID
// it is built from the normalized address, so "10.0.0.7" and
// "10.0.0.7:9100" share a key.
func (p *Profile) Key() string {
	if p.Printer.ID != "" {
		return p.Printer.ID
	}
	addr := strings.TrimSpace(p.Printer.Address)
	switch p.Printer.Type {
	case transport.LAN:
		if n, err := transport.NormalizeLANAddress(addr); err == nil {
			addr = n
		}
	case transport.Bluetooth:
		if _, _, isMAC, _ := transport.ParseRFCOMMAddress(addr); isMAC {
			addr = strings.ToUpper(addr)
		}
	}
	return string(p.Printer.Type) + "|" + addr
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Endpoints = maps.Clone(p.Endpoints)
	return &c
}

func invalid(format string, args ...any) error {
	return &printerr.ConfigError{Code: printerr.InvalidProfile, Detail: fmt.Sprintf(format, args...)}
}
