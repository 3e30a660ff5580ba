package server

import (
	"errors"
	"strings"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/printer"
	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// Message types
const (
	TypePrint    = "print"
	TypeBarcode  = "barcode"
	TypePrinters = "printers"
	TypeDiscover = "discover"
	TypeSelect   = "select"
	TypeStatus   = "status"
	TypePing     = "ping"

	TypeInfo     = "info"
	TypeAck      = "ack"
	TypeResult   = "result"
	TypeSelected = "selected"
	TypePong     = "pong"
	TypeError    = "error"
)

// Response statuses
const (
	StatusOK     = "ok"
	StatusQueued = "queued"
	StatusError  = "error"
)

// Message is a request from a client.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// print
	Text      string    `json:"text,omitempty"`
	Lines     []LineDTO `json:"lines,omitempty"`
	Preferred string    `json:"preferred,omitempty"`

	// barcode, or a barcode printed after the text of a print message
	Barcode *BarcodeDTO `json:"barcode,omitempty"`

	// select
	Profile *ProfileDTO `json:"profile,omitempty"`

	// printers
	Refresh bool `json:"refresh,omitempty"`
}

// LineDTO is one formatted text line.
type LineDTO struct {
	Text         string `json:"text"`
	Align        string `json:"align,omitempty"` // left, center, right
	Bold         bool   `json:"bold,omitempty"`
	Underline    bool   `json:"underline,omitempty"`
	DoubleWidth  bool   `json:"double_width,omitempty"`
	DoubleHeight bool   `json:"double_height,omitempty"`
}

// BarcodeDTO describes a barcode and its placement in dots.
type BarcodeDTO struct {
	Data         string `json:"data"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
	ModuleWidth  int    `json:"module_width"`
	ModuleHeight int    `json:"module_height"`
}

// ProfileDTO is the wire form of a printer profile.
type ProfileDTO struct {
	Printer          profile.PrinterInfo `json:"printer"`
	PaperWidth       int                 `json:"paper_width"`
	LineSpacing      int                 `json:"line_spacing,omitempty"`
	ConnectTimeoutMs int64               `json:"connect_timeout_ms,omitempty"`
	Endpoints        map[string]string   `json:"endpoints,omitempty"`
}

// Response is sent to clients.
type Response struct {
	Type      string                `json:"type"`
	ID        string                `json:"id,omitempty"`
	Status    string                `json:"status,omitempty"`
	Message   string                `json:"message,omitempty"`
	Transport string                `json:"transport,omitempty"`
	Printers  []profile.PrinterInfo `json:"printers,omitempty"`
	Profile   *ProfileDTO           `json:"profile,omitempty"`
	Stats     *printer.Statistics   `json:"stats,omitempty"`
}

func (m *Message) printJob() (printer.Job, error) {
	if len(m.Lines) > 0 && m.Text != "" {
		return printer.Job{}, errors.New("Fields 'text' and 'lines' cannot be combined")
	}

	var blocks []escpos.Block

	switch {
	case len(m.Lines) > 0:
		lines := make([]escpos.Line, len(m.Lines))
		for i, l := range m.Lines {
			lines[i] = l.toLine()
		}
		blocks = append(blocks, escpos.Text{Lines: lines})
	case m.Text != "":
		blocks = append(blocks, escpos.Text{Lines: escpos.PlainLines(m.Text)})
	}
	if m.Barcode != nil {
		blocks = append(blocks, m.Barcode.toBarcode())
	}
	if len(blocks) == 0 {
		return printer.Job{}, errors.New("Field 'text', 'lines' or 'barcode' is required for type 'print'")
	}

	kind, _ := transport.ParseKind(m.Preferred)
	return printer.Job{ID: m.ID, Payload: blocks, Preferred: kind}, nil
}

func (m *Message) barcodeJob() (printer.Job, error) {
	if m.Barcode == nil {
		return printer.Job{}, errors.New("Field 'barcode' is required for type 'barcode'")
	}
	kind, _ := transport.ParseKind(m.Preferred)
	job := printer.BarcodeJob(m.Barcode.toBarcode(), kind)
	job.ID = m.ID
	return job, nil
}

func (l LineDTO) toLine() escpos.Line {
	line := escpos.Line{
		Text:         l.Text,
		Bold:         l.Bold,
		Underline:    l.Underline,
		DoubleWidth:  l.DoubleWidth,
		DoubleHeight: l.DoubleHeight,
	}
	switch strings.ToLower(l.Align) {
	case "center":
		line.Align = escpos.AlignCenter
	case "right":
		line.Align = escpos.AlignRight
	default:
		line.Align = escpos.AlignLeft
	}
	return line
}

func (b *BarcodeDTO) toBarcode() escpos.Barcode {
	return escpos.Barcode{
		Data:         b.Data,
		X:            b.X,
		Y:            b.Y,
		ModuleWidth:  b.ModuleWidth,
		ModuleHeight: b.ModuleHeight,
	}
}

func (d *ProfileDTO) toProfile() profile.Profile {
	p := profile.Profile{
		Printer:        d.Printer,
		PaperWidth:     escpos.Width(d.PaperWidth),
		LineSpacing:    d.LineSpacing,
		ConnectTimeout: time.Duration(d.ConnectTimeoutMs) * time.Millisecond,
	}
	if kind, ok := transport.ParseKind(string(d.Printer.Type)); ok {
		p.Printer.Type = kind
	}
	for k, addr := range d.Endpoints {
		kind, ok := transport.ParseKind(k)
		if !ok {
			kind = transport.Kind(k)
		}
		if p.Endpoints == nil {
			p.Endpoints = make(map[transport.Kind]string)
		}
		p.Endpoints[kind] = addr
	}
	return p
}

func profileDTO(p *profile.Profile) *ProfileDTO {
	d := &ProfileDTO{
		Printer:          p.Printer,
		PaperWidth:       int(p.PaperWidth),
		LineSpacing:      p.LineSpacing,
		ConnectTimeoutMs: p.Timeout().Milliseconds(),
	}
	for k, addr := range p.Endpoints {
		if d.Endpoints == nil {
			d.Endpoints = make(map[string]string)
		}
		d.Endpoints[string(k)] = addr
	}
	return d
}

func resultResponse(r printer.Result) Response {
	status := StatusOK
	if !r.Success {
		status = StatusError
	}
	return Response{
		Type:      TypeResult,
		ID:        r.JobID,
		Status:    status,
		Message:   r.Message,
		Transport: string(r.Transport),
	}
}

func errorMessage(err error) string {
	return printerr.Message(err)
}
