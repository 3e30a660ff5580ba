// Package transport opens byte links to printers over Bluetooth, USB and
// LAN behind one interface.
package transport

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind names a transport variant.
type Kind string

const (
	Bluetooth Kind = "bluetooth"
	USB       Kind = "usb"
	LAN       Kind = "lan"
)

// Priority is the order in which kinds are tried when no preference applies.
var Priority = []Kind{Bluetooth, USB, LAN}

// ParseKind maps a caller supplied string to a Kind. Unknown strings report
// false and mean "no preference".
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, true
	}
	return "", false
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case Bluetooth, USB, LAN:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Conn is an open link to one printer. It is used by a single job and
// closed before the job returns.
type Conn interface {
	io.Writer
	Close() error
}

// Transport opens connections of one kind.
type Transport interface {
	Kind() Kind
	// Open resolves address and connects within timeout. Failures are
	// *printerr.ConnectionError.
	Open(address string, timeout time.Duration) (Conn, error)
}

// Set holds one transport per kind.
type Set map[Kind]Transport

// Options tunes the default transports.
type Options struct {
	// WriteTimeout bounds a single write on an open connection. A serial
	// port write that stalls past it closes the port.
	WriteTimeout time.Duration
	// BaudRate is used for Bluetooth serial ports (rfcomm TTYs, COM ports).
	BaudRate int
}

// DefaultWriteTimeout applies when Options.WriteTimeout is zero.
const DefaultWriteTimeout = 10 * time.Second

// DefaultBaudRate applies when Options.BaudRate is zero.
const DefaultBaudRate = 115200

// Default builds the Bluetooth, USB and LAN transports.
func Default(logger *zap.Logger, opts Options) Set {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	return Set{
		Bluetooth: NewBluetoothTransport(logger, opts.BaudRate, opts.WriteTimeout),
		USB:       NewUSBTransport(logger, opts.WriteTimeout),
		LAN:       NewLANTransport(logger, opts.WriteTimeout),
	}
}
