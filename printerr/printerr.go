// Package printerr defines the error taxonomy shared by the encoder, the
// transports and the print service.
package printerr

import (
	"errors"
	"fmt"
)

// ConfigCode identifies why a request was rejected before any transport
// was touched.
type ConfigCode int

const (
	NoPrinterConfigured ConfigCode = iota
	PayloadTooLarge
	MalformedInput
	InvalidProfile
)

func (c ConfigCode) String() string {
	switch c {
	case NoPrinterConfigured:
		return "no printer configured"
	case PayloadTooLarge:
		return "payload too large"
	case MalformedInput:
		return "malformed input"
	case InvalidProfile:
		return "invalid profile"
	default:
		return fmt.Sprintf("config error %d", int(c))
	}
}

// ConfigError is never retried.
type ConfigError struct {
	Code   ConfigCode
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Detail
}

// ConnKind classifies a failure to open a transport.
type ConnKind int

const (
	Unreachable ConnKind = iota
	Timeout
	PermissionDenied
	NotFound
	Unsupported
	InvalidAddress
)

func (k ConnKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Timeout:
		return "timeout"
	case PermissionDenied:
		return "permission denied"
	case NotFound:
		return "not found"
	case Unsupported:
		return "unsupported"
	case InvalidAddress:
		return "invalid address"
	default:
		return fmt.Sprintf("connection error %d", int(k))
	}
}

// ConnectionError is returned by Transport.Open. It makes the print service
// move on to the next candidate.
type ConnectionError struct {
	Kind      ConnKind
	Transport string
	Address   string
	Err       error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Transport, e.Address, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IOError is a write failure on an already open connection.
type IOError struct {
	Transport string
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s write failed: %v", e.Transport, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ProtocolError means the encoder refused to produce bytes for the input.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// ErrBusy is reported when a printer's queue cannot take another job.
var ErrBusy = errors.New("printer busy")

// ErrCanceled is reported when a job is canceled before its write started.
var ErrCanceled = errors.New("print canceled")

// IsRetryable reports whether err may clear up by writing again on the same
// connection. Only IOError qualifies.
func IsRetryable(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsConfig reports whether err is a ConfigError with the given code.
func IsConfig(err error, code ConfigCode) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr) && cfgErr.Code == code
}

// Message converts err into the text handed back to callers.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var (
		cfgErr   *ConfigError
		connErr  *ConnectionError
		ioErr    *IOError
		protoErr *ProtocolError
	)
	switch {
	case errors.As(err, &cfgErr) && cfgErr.Code == NoPrinterConfigured:
		return "No printer configured"
	case errors.As(err, &cfgErr):
		return "Invalid request: " + cfgErr.Error()
	case errors.As(err, &connErr):
		return fmt.Sprintf("Cannot connect via %s (%s)", connErr.Transport, connErr.Kind)
	case errors.As(err, &ioErr):
		return fmt.Sprintf("Write to printer failed via %s: %v", ioErr.Transport, ioErr.Err)
	case errors.As(err, &protoErr):
		return "Cannot encode print data: " + protoErr.Reason
	case errors.Is(err, ErrBusy):
		return "Printer busy"
	case errors.Is(err, ErrCanceled):
		return "Print canceled"
	default:
		return err.Error()
	}
}
