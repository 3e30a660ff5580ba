package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// DefaultRFCOMMChannel is the serial port profile channel most printers
// listen on.
const DefaultRFCOMMChannel = 1

// Common errors
var (
	ErrRFCOMMUnsupported = errors.New("direct RFCOMM sockets are not supported on this platform, use the paired serial port")
)

// BluetoothTransport reaches printers over the serial port profile. A MAC
// address ("AA:BB:CC:DD:EE:FF", optionally "@channel") opens an RFCOMM
// socket; anything else is taken as a serial device bound to the printer
// (/dev/rfcomm0, COM5).
type BluetoothTransport struct {
	logger       *zap.Logger
	baudRate     int
	writeTimeout time.Duration
}

// NewBluetoothTransport creates a Bluetooth transport.
func NewBluetoothTransport(logger *zap.Logger, baudRate int, writeTimeout time.Duration) *BluetoothTransport {
	return &BluetoothTransport{
		logger:       logger.Named("bluetooth"),
		baudRate:     baudRate,
		writeTimeout: writeTimeout,
	}
}

// Kind returns Bluetooth.
func (t *BluetoothTransport) Kind() Kind { return Bluetooth }

// Open connects to the device and gives up after timeout.
func (t *BluetoothTransport) Open(address string, timeout time.Duration) (Conn, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, invalidAddress(Bluetooth, address, "empty address")
	}

	if mac, channel, ok, err := ParseRFCOMMAddress(address); ok {
		if err != nil {
			return nil, err
		}
		t.logger.Debug("connecting RFCOMM", zap.Stringer("mac", mac), zap.Uint8("channel", channel))
		return openWithTimeout(Bluetooth, address, timeout, func() (Conn, error) {
			c, err := dialRFCOMM(mac, channel, t.writeTimeout)
			if err != nil {
				return nil, classify(Bluetooth, address, err)
			}
			return c, nil
		})
	}

	t.logger.Debug("opening serial port", zap.String("port", address), zap.Int("baud", t.baudRate))
	return openWithTimeout(Bluetooth, address, timeout, func() (Conn, error) {
		return t.openSerial(address)
	})
}

// ParseRFCOMMAddress recognises "MAC[@channel]". ok is false when address is
// not a MAC at all; err is set when it is a MAC with a bad channel.
func ParseRFCOMMAddress(address string) (mac net.HardwareAddr, channel uint8, ok bool, err error) {
	host, ch, hasChannel := strings.Cut(address, "@")
	mac, perr := net.ParseMAC(host)
	if perr != nil || len(mac) != 6 {
		return nil, 0, false, nil
	}

	channel = DefaultRFCOMMChannel
	if hasChannel {
		n, cerr := strconv.Atoi(ch)
		if cerr != nil || n < 1 || n > 30 {
			return nil, 0, true, invalidAddress(Bluetooth, address, fmt.Sprintf("RFCOMM channel %q out of range 1-30", ch))
		}
		channel = uint8(n)
	}
	return mac, channel, true, nil
}

func (t *BluetoothTransport) openSerial(port string) (Conn, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, classifySerial(port, err)
	}
	return &streamConn{kind: Bluetooth, w: p, writeTimeout: t.writeTimeout}, nil
}

func classifySerial(port string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		k := printerr.Unreachable
		switch portErr.Code() {
		case serial.PortNotFound:
			k = printerr.NotFound
		case serial.PermissionDenied:
			k = printerr.PermissionDenied
		case serial.InvalidSerialPort:
			k = printerr.InvalidAddress
		}
		return &printerr.ConnectionError{Kind: k, Transport: string(Bluetooth), Address: port, Err: err}
	}
	return classify(Bluetooth, port, err)
}
