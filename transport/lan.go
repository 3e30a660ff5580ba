package transport

import (
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// DefaultPort is the raw printing port used when an address has none.
const DefaultPort = "9100"

// LANTransport connects to printers over TCP.
type LANTransport struct {
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewLANTransport creates a LAN transport.
func NewLANTransport(logger *zap.Logger, writeTimeout time.Duration) *LANTransport {
	return &LANTransport{
		logger:       logger.Named("lan"),
		writeTimeout: writeTimeout,
	}
}

// Kind returns LAN.
func (t *LANTransport) Kind() Kind { return LAN }

// NormalizeLANAddress splits "host:port" and fills in port 9100 when the
// address only names a host.
func NormalizeLANAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", invalidAddress(LAN, address, "empty address")
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// bare host or bare IPv6 literal
		host = strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
		if strings.Contains(host, ":") && net.ParseIP(host) == nil {
			return "", invalidAddress(LAN, address, "cannot parse host:port")
		}
		port = DefaultPort
	}
	if host == "" {
		return "", invalidAddress(LAN, address, "missing host")
	}
	if port == "" {
		port = DefaultPort
	}

	return net.JoinHostPort(host, port), nil
}

// Open dials the printer and fails with a Timeout ConnectionError when the
// dial does not complete within timeout.
func (t *LANTransport) Open(address string, timeout time.Duration) (Conn, error) {
	addr, err := NormalizeLANAddress(address)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("dialing printer", zap.String("address", addr), zap.Duration("timeout", timeout))

	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, classify(LAN, addr, err)
	}

	return &lanConn{conn: c, writeTimeout: t.writeTimeout}, nil
}

type lanConn struct {
	conn         net.Conn
	writeTimeout time.Duration
}

func (c *lanConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, &printerr.IOError{Transport: string(LAN), Err: err}
		}
	}
	n, err := c.conn.Write(p)
	if err != nil {
		return n, &printerr.IOError{Transport: string(LAN), Err: err}
	}
	return n, nil
}

func (c *lanConn) Close() error {
	return c.conn.Close()
}
