package escpos

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// command is one decoded instruction of an encoded stream. Text runs have a
// nil op.
type command struct {
	op   []byte
	args []byte
	text []byte
}

// decode walks a stream produced by this package and splits it into
// instructions and text runs. It fails the test on bytes it does not know.
func decode(t *testing.T, data []byte) []command {
	t.Helper()

	var out []command
	var text []byte
	flush := func() {
		if text != nil {
			out = append(out, command{text: text})
			text = nil
		}
	}

	for i := 0; i < len(data); {
		switch data[i] {
		case ESC:
			require.Less(t, i+1, len(data))
			size := 0
			switch data[i+1] {
			case '@', '2':
				size = 2
			case 't', '3', 'a', 'E', '-', 'd', 'J':
				size = 3
			case '$':
				size = 4
			default:
				t.Fatalf("unknown ESC %q at %d", data[i+1], i)
			}
			flush()
			out = append(out, command{op: data[i : i+2], args: data[i+2 : i+size]})
			i += size
		case GS:
			require.Less(t, i+1, len(data))
			size := 0
			switch data[i+1] {
			case 'L', 'W', 'V':
				size = 4
			case '!':
				size = 3
			case '(':
				require.Equal(t, byte('k'), data[i+2])
				size = 5 + int(data[i+3]) + int(data[i+4])*256
			default:
				t.Fatalf("unknown GS %q at %d", data[i+1], i)
			}
			flush()
			out = append(out, command{op: data[i : i+2], args: data[i+2 : i+size]})
			i += size
		case LF:
			if text == nil {
				text = []byte{}
			}
			flush()
			out = append(out, command{op: []byte{LF}})
			i++
		default:
			require.GreaterOrEqual(t, data[i], byte(0x20), "control byte %#x in text at %d", data[i], i)
			text = append(text, data[i])
			i++
		}
	}
	flush()
	return out
}

func sampleLines() []Line {
	return []Line{
		{Text: "STORE 042", Align: AlignCenter, Bold: true, DoubleWidth: true, DoubleHeight: true},
		{Text: strings.Repeat("word ", 40)},
		{Text: strings.Repeat("X", 150), DoubleWidth: true},
		{Text: ""},
		{Text: "Total: 12.50", Align: AlignRight, Underline: true},
	}
}

func TestEncodeTextNeverExceedsWidth(t *testing.T) {
	enc := New()

	for _, w := range []Width{Width58mm, Width80mm, Width112mm} {
		t.Run(fmt.Sprintf("%dmm", w.Millimeters()), func(t *testing.T) {
			data, err := enc.EncodeText(sampleLines(), w)
			require.NoError(t, err)

			doubleWidth := false
			for _, c := range decode(t, data) {
				switch {
				case bytes.Equal(c.op, []byte{GS, 'W'}):
					area := int(c.args[0]) | int(c.args[1])<<8
					assert.LessOrEqual(t, area, int(w))
				case bytes.Equal(c.op, []byte{GS, '!'}):
					doubleWidth = c.args[0]&0x10 != 0
				case c.op == nil:
					cell := fontADots
					if doubleWidth {
						cell *= 2
					}
					assert.LessOrEqual(t, len(c.text)*cell, int(w), "line %q", c.text)
				}
			}
		})
	}
}

func TestEncodeTextDeterministic(t *testing.T) {
	enc := New(WithLineSpacing(30))

	first, err := enc.EncodeText(sampleLines(), Width80mm)
	require.NoError(t, err)
	second, err := enc.EncodeText(sampleLines(), Width80mm)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, mustEncode(t, New(WithLineSpacing(30)), sampleLines()))
}

func mustEncode(t *testing.T, enc *Encoder, lines []Line) []byte {
	t.Helper()
	data, err := enc.EncodeText(lines, Width80mm)
	require.NoError(t, err)
	return data
}

func TestEncodeTextFraming(t *testing.T) {
	enc := New(WithLineSpacing(40))

	data, err := enc.EncodeText(PlainLines("Hello"), Width58mm)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte{ESC, '@'}))
	assert.True(t, bytes.HasSuffix(data, enc.EncodeCut()))
	assert.Contains(t, string(data), "Hello\n")
	assert.True(t, bytes.Contains(data, []byte{ESC, '3', 40}))
	assert.True(t, bytes.Contains(data, []byte{GS, 'W', 0x80, 0x01}))
}

func TestEncodeTextWraps(t *testing.T) {
	enc := New()

	data, err := enc.EncodeText([]Line{{Text: "alpha beta gamma delta epsilon zeta eta theta"}}, Width58mm)
	require.NoError(t, err)

	var runs []string
	for _, c := range decode(t, data) {
		if c.op == nil {
			runs = append(runs, string(c.text))
		}
	}
	assert.Equal(t, []string{"alpha beta gamma delta epsilon", "zeta eta theta"}, runs)
}

func TestEncodeTextTranscodes(t *testing.T) {
	enc := New()

	data, err := enc.EncodeText([]Line{{Text: "café\tbar\x07 ☃"}}, Width80mm)
	require.NoError(t, err)

	assert.True(t, bytes.Contains(data, []byte{'c', 'a', 'f', 0x82, ' ', 'b', 'a', 'r', ' ', ' ', '?'}))
}

func TestEncodeTextPayloadCap(t *testing.T) {
	enc := New(WithMaxTextChars(10))

	_, err := enc.EncodeText(PlainLines("12345\n678901"), Width58mm)
	require.Error(t, err)
	assert.True(t, printerr.IsConfig(err, printerr.PayloadTooLarge))

	_, err = enc.EncodeText(PlainLines("12345\n67890"), Width58mm)
	assert.NoError(t, err)
}

func TestEncodeTextDefaultCap(t *testing.T) {
	enc := New()

	_, err := enc.EncodeText(PlainLines(strings.Repeat("a", DefaultMaxTextChars+1)), Width80mm)
	assert.True(t, printerr.IsConfig(err, printerr.PayloadTooLarge))
}

func TestEncodeInvalidWidth(t *testing.T) {
	_, err := New().EncodeText(PlainLines("x"), Width(500))
	assert.True(t, printerr.IsConfig(err, printerr.InvalidProfile))

	_, err = ParseWidth(576)
	assert.NoError(t, err)
}

func TestEncodeBarcodeFraming(t *testing.T) {
	enc := New()

	data, err := enc.EncodeBarcode(Barcode{Data: "X12345", X: 73, Y: 60, ModuleWidth: 2, ModuleHeight: 2}, Width58mm)
	require.NoError(t, err)

	format := []byte{GS, '(', 'k', 3, 0, 0x30, 0x43, 2, GS, '(', 'k', 3, 0, 0x30, 0x44, 2}
	store := []byte{GS, '(', 'k', 9, 0, 0x30, 0x50, 0x30, 'X', '1', '2', '3', '4', '5'}
	printCmd := []byte{GS, '(', 'k', 3, 0, 0x30, 0x51, 0x30}

	fi := bytes.Index(data, format)
	si := bytes.Index(data, store)
	pi := bytes.Index(data, printCmd)
	require.NotEqual(t, -1, fi)
	require.NotEqual(t, -1, si)
	require.NotEqual(t, -1, pi)
	assert.Less(t, fi, si)
	assert.Less(t, si, pi)

	assert.True(t, bytes.Contains(data, []byte{ESC, '$', 73, 0}))
	assert.True(t, bytes.Contains(data, []byte{ESC, 'J', 60}))
	assert.True(t, bytes.HasSuffix(data, enc.EncodeCut()))
}

func TestBarcodeClamping(t *testing.T) {
	tests := []struct {
		name   string
		in     Barcode
		wantW  int
		wantH  int
		wantX  int
		wantY  int
		paperW Width
	}{
		{"below range", Barcode{ModuleWidth: 0, ModuleHeight: -4, X: -10, Y: -1}, 2, 2, 0, 0, Width58mm},
		{"above range", Barcode{ModuleWidth: 40, ModuleHeight: 9, X: 5000, Y: 9000}, 8, 8, 383, MaxBarcodeOffsetY, Width58mm},
		{"in range", Barcode{ModuleWidth: 3, ModuleHeight: 5, X: 100, Y: 10}, 3, 5, 100, 10, Width80mm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamped(tt.paperW)
			assert.Equal(t, tt.wantW, got.ModuleWidth)
			assert.Equal(t, tt.wantH, got.ModuleHeight)
			assert.Equal(t, tt.wantX, got.X)
			assert.Equal(t, tt.wantY, got.Y)

			tt.in.Data = "ABC"
			data, err := New().EncodeBarcode(tt.in, tt.paperW)
			require.NoError(t, err)
			assert.True(t, bytes.Contains(data, []byte{GS, '(', 'k', 3, 0, 0x30, 0x43, byte(tt.wantW)}))
			assert.True(t, bytes.Contains(data, []byte{GS, '(', 'k', 3, 0, 0x30, 0x44, byte(tt.wantH)}))
		})
	}
}

func TestBarcodeLongFeedIsChunked(t *testing.T) {
	data, err := New().EncodeBarcode(Barcode{Data: "A", Y: 600}, Width80mm)
	require.NoError(t, err)

	assert.True(t, bytes.Contains(data, []byte{ESC, 'J', 255, ESC, 'J', 255, ESC, 'J', 90}))
}

func TestBarcodeRejects(t *testing.T) {
	enc := New()

	_, err := enc.EncodeBarcode(Barcode{Data: strings.Repeat("9", MaxBarcodeData+1)}, Width80mm)
	var protoErr *printerr.ProtocolError
	assert.ErrorAs(t, err, &protoErr)

	_, err = enc.EncodeBarcode(Barcode{Data: ""}, Width80mm)
	assert.True(t, printerr.IsConfig(err, printerr.MalformedInput))

	_, err = enc.EncodeBarcode(Barcode{Data: strings.Repeat("9", MaxBarcodeData)}, Width80mm)
	assert.NoError(t, err)
}

func TestEncodeDocument(t *testing.T) {
	enc := New()

	data, err := enc.EncodeDocument([]Block{
		Text{Lines: PlainLines("Order 17")},
		Barcode{Data: "17", ModuleWidth: 3, ModuleHeight: 3},
		Text{Lines: PlainLines("Thanks")},
	}, Width80mm)
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(data, []byte{ESC, '@'}))
	assert.Equal(t, 1, bytes.Count(data, enc.EncodeCut()))
	assert.Less(t, bytes.Index(data, []byte("Order 17")), bytes.Index(data, []byte("Thanks")))
	decode(t, data)
}

func TestCodePage(t *testing.T) {
	assert.True(t, SupportedCodePage("CP858"))
	assert.False(t, SupportedCodePage("utf8"))

	data, err := New(WithCodePage("cp1252")).EncodeText(PlainLines("€"), Width58mm)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte{ESC, 't', 16}))
	assert.True(t, bytes.Contains(data, []byte{0x80, LF}))
}
