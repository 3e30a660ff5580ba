package escpos

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Align is the horizontal justification of a line.
type Align byte

const (
	AlignLeft   Align = 0
	AlignCenter Align = 1
	AlignRight  Align = 2
)

// Line is one display line with its formatting.
type Line struct {
	Text         string
	Align        Align
	Bold         bool
	Underline    bool
	DoubleWidth  bool
	DoubleHeight bool
}

// Text is an ordered sequence of lines.
type Text struct {
	Lines []Line
}

// PlainLines splits s on newlines into unformatted lines.
func PlainLines(s string) []Line {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	parts := strings.Split(s, "\n")
	lines := make([]Line, len(parts))
	for i, p := range parts {
		lines[i] = Line{Text: strings.TrimSuffix(p, "\r")}
	}
	return lines
}

func (t Text) chars() int {
	n := 0
	for _, l := range t.Lines {
		n += utf8.RuneCountInString(l.Text)
	}
	return n
}

func (t Text) encode(buf *bytes.Buffer, e *Encoder, w Width) error {
	for _, l := range t.Lines {
		buf.Write([]byte{ESC, 'a', byte(l.Align)})
		buf.Write([]byte{ESC, 'E', boolByte(l.Bold)})
		buf.Write([]byte{ESC, '-', boolByte(l.Underline)})

		var size byte
		if l.DoubleWidth {
			size |= 0x10
		}
		if l.DoubleHeight {
			size |= 0x01
		}
		buf.Write([]byte{GS, '!', size})

		for _, seg := range wrap(e.transcode(l.Text), w.CharsPerLine(l.DoubleWidth)) {
			buf.Write(seg)
			buf.WriteByte(LF)
		}
	}

	// Leave the printer in plain left-aligned mode for whatever follows.
	buf.Write([]byte{ESC, 'a', 0, ESC, 'E', 0, ESC, '-', 0, GS, '!', 0})
	return nil
}

// wrap splits text into segments of at most limit bytes, preferring to break
// at the last space. An empty line yields one empty segment.
func wrap(text []byte, limit int) [][]byte {
	if len(text) <= limit {
		return [][]byte{text}
	}

	var out [][]byte
	for len(text) > limit {
		cut := bytes.LastIndexByte(text[:limit+1], ' ')
		if cut <= 0 {
			out = append(out, text[:limit])
			text = text[limit:]
			continue
		}
		out = append(out, text[:cut])
		text = text[cut+1:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
