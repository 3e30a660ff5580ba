package escpos

import (
	"bytes"
	"fmt"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// PDF417 limits accepted by GS ( k.
const (
	MinModuleSize = 2
	MaxModuleSize = 8
	// MaxBarcodeData is the PDF417 byte-compaction capacity.
	MaxBarcodeData = 1108
	// MaxBarcodeOffsetY bounds the feed before the symbol.
	MaxBarcodeOffsetY = 1020
)

// GS ( k function codes for PDF417 (cn = 48).
const (
	pdf417       = 0x30
	fnModuleW    = 0x43
	fnRowHeight  = 0x44
	fnStoreData  = 0x50
	fnPrintStore = 0x51
)

// Barcode is a PDF417 symbol placed X dots from the left margin after
// feeding Y dots.
type Barcode struct {
	Data         string
	X            int
	Y            int
	ModuleWidth  int
	ModuleHeight int
}

// Clamped returns b with position and module sizes saturated into the range
// the printer accepts at width w.
func (b Barcode) Clamped(w Width) Barcode {
	b.X = clamp(b.X, 0, int(w)-1)
	b.Y = clamp(b.Y, 0, MaxBarcodeOffsetY)
	b.ModuleWidth = clamp(b.ModuleWidth, MinModuleSize, MaxModuleSize)
	b.ModuleHeight = clamp(b.ModuleHeight, MinModuleSize, MaxModuleSize)
	return b
}

func (b Barcode) chars() int { return 0 }

func (b Barcode) encode(buf *bytes.Buffer, _ *Encoder, w Width) error {
	if b.Data == "" {
		return &printerr.ConfigError{Code: printerr.MalformedInput, Detail: "barcode data is empty"}
	}
	if len(b.Data) > MaxBarcodeData {
		return &printerr.ProtocolError{
			Reason: fmt.Sprintf("barcode data is %d bytes, limit is %d", len(b.Data), MaxBarcodeData),
		}
	}

	b = b.Clamped(w)

	buf.Write([]byte{ESC, 'a', byte(AlignLeft)})
	for y := b.Y; y > 0; y -= 255 {
		buf.Write([]byte{ESC, 'J', byte(min(y, 255))})
	}
	buf.Write([]byte{ESC, '$', byte(b.X & 0xFF), byte(b.X >> 8)})

	// format
	buf.Write([]byte{GS, '(', 'k', 3, 0, pdf417, fnModuleW, byte(b.ModuleWidth)})
	buf.Write([]byte{GS, '(', 'k', 3, 0, pdf417, fnRowHeight, byte(b.ModuleHeight)})

	// store
	n := len(b.Data) + 3
	buf.Write([]byte{GS, '(', 'k', byte(n & 0xFF), byte(n >> 8), pdf417, fnStoreData, 0x30})
	buf.WriteString(b.Data)

	// print
	buf.Write([]byte{GS, '(', 'k', 3, 0, pdf417, fnPrintStore, 0x30})
	buf.WriteByte(LF)

	return nil
}
