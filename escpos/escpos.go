// Package escpos encodes receipt content into ESC/POS command streams.
//
// Every stream produced here is self-contained: it starts by initializing
// the printer, fixes the printable area to the paper width and ends with a
// feed followed by a cut. Encoding is pure, so identical input always yields
// identical bytes.
package escpos

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// Control bytes
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Width is the printable paper width in dots.
type Width int

// Supported paper widths
const (
	Width58mm  Width = 384
	Width80mm  Width = 576
	Width112mm Width = 832
)

// Font A cell width in dots.
const fontADots = 12

// DefaultMaxTextChars bounds the number of characters accepted in one job.
const DefaultMaxTextChars = 100_000

// feedLinesBeforeCut moves the last printed line past the cutter.
const feedLinesBeforeCut = 3

// Valid reports whether w is one of the supported paper widths.
func (w Width) Valid() bool {
	switch w {
	case Width58mm, Width80mm, Width112mm:
		return true
	}
	return false
}

// Millimeters returns the nominal paper size for w.
func (w Width) Millimeters() int {
	switch w {
	case Width58mm:
		return 58
	case Width80mm:
		return 80
	case Width112mm:
		return 112
	}
	return 0
}

// CharsPerLine returns how many Font A characters fit on one line.
func (w Width) CharsPerLine(doubleWidth bool) int {
	n := int(w) / fontADots
	if doubleWidth {
		n /= 2
	}
	return n
}

// ParseWidth validates a dot width read from a profile.
func ParseWidth(dots int) (Width, error) {
	w := Width(dots)
	if !w.Valid() {
		return 0, &printerr.ConfigError{
			Code:   printerr.InvalidProfile,
			Detail: fmt.Sprintf("paper width %d dots (use 384, 576 or 832)", dots),
		}
	}
	return w, nil
}

type codePage struct {
	table *charmap.Charmap
	// n is the ESC t argument selecting the table on the printer.
	n byte
}

var codePages = map[string]codePage{
	"cp437":  {charmap.CodePage437, 0},
	"cp850":  {charmap.CodePage850, 2},
	"cp858":  {charmap.CodePage858, 19},
	"cp866":  {charmap.CodePage866, 17},
	"cp1252": {charmap.Windows1252, 16},
}

// Encoder turns blocks into ESC/POS bytes. The zero value is not usable;
// build one with New.
type Encoder struct {
	lineSpacing  int
	maxTextChars int
	codePage     codePage
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithLineSpacing sets the line spacing in dots. Zero selects the printer
// default.
func WithLineSpacing(dots int) Option {
	return func(e *Encoder) {
		e.lineSpacing = dots
	}
}

// WithMaxTextChars caps the characters accepted per encode call.
func WithMaxTextChars(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.maxTextChars = n
		}
	}
}

// WithCodePage selects the character table text is transcoded to.
func WithCodePage(name string) Option {
	return func(e *Encoder) {
		if cp, ok := codePages[strings.ToLower(name)]; ok {
			e.codePage = cp
		}
	}
}

// New creates an encoder using CP437 and the printer's default line spacing
// unless options say otherwise.
func New(opts ...Option) *Encoder {
	e := &Encoder{
		maxTextChars: DefaultMaxTextChars,
		codePage:     codePages["cp437"],
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportedCodePage reports whether name is a known character table.
func SupportedCodePage(name string) bool {
	_, ok := codePages[strings.ToLower(name)]
	return ok
}

// Block is one piece of printable content. The set is closed: Text and
// Barcode.
type Block interface {
	encode(buf *bytes.Buffer, e *Encoder, w Width) error
	chars() int
}

// EncodeText encodes lines into a complete stream ending in a cut.
func (e *Encoder) EncodeText(lines []Line, width Width) ([]byte, error) {
	return e.EncodeDocument([]Block{Text{Lines: lines}}, width)
}

// EncodeBarcode encodes a single barcode into a complete stream ending in a
// cut.
func (e *Encoder) EncodeBarcode(b Barcode, width Width) ([]byte, error) {
	return e.EncodeDocument([]Block{b}, width)
}

// EncodeCut returns the cut instruction that terminates every stream.
func (e *Encoder) EncodeCut() []byte {
	return []byte{GS, 'V', 'A', 0}
}

// EncodeDocument encodes blocks in order between one initialization and one
// cut.
func (e *Encoder) EncodeDocument(blocks []Block, width Width) ([]byte, error) {
	if !width.Valid() {
		_, err := ParseWidth(int(width))
		return nil, err
	}

	total := 0
	for _, b := range blocks {
		total += b.chars()
	}
	if total > e.maxTextChars {
		return nil, &printerr.ConfigError{
			Code:   printerr.PayloadTooLarge,
			Detail: fmt.Sprintf("%d characters exceeds limit of %d", total, e.maxTextChars),
		}
	}

	var buf bytes.Buffer
	e.writeHeader(&buf, width)
	for _, b := range blocks {
		if err := b.encode(&buf, e, width); err != nil {
			return nil, err
		}
	}
	buf.Write([]byte{ESC, 'd', feedLinesBeforeCut})
	buf.Write(e.EncodeCut())

	return buf.Bytes(), nil
}

func (e *Encoder) writeHeader(buf *bytes.Buffer, width Width) {
	buf.Write([]byte{ESC, '@'})
	buf.Write([]byte{ESC, 't', e.codePage.n})

	if e.lineSpacing > 0 {
		buf.Write([]byte{ESC, '3', byte(clamp(e.lineSpacing, 0, 255))})
	} else {
		buf.Write([]byte{ESC, '2'})
	}

	// Left margin 0 and printable area exactly the paper width.
	buf.Write([]byte{GS, 'L', 0, 0})
	buf.Write([]byte{GS, 'W', byte(int(width) & 0xFF), byte(int(width) >> 8)})
}

// transcode maps s to single-byte characters of the selected table. Control
// characters become spaces and unmapped runes become '?', so the output
// never contains bytes the printer would read as instructions.
func (e *Encoder) transcode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == utf8.RuneError || r < 0x20 || r == 0x7F {
			out = append(out, ' ')
			continue
		}
		b, ok := e.codePage.table.EncodeRune(r)
		if !ok || b < 0x20 || b == 0x7F {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
