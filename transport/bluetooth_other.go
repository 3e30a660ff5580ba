//go:build !linux

package transport

import (
	"net"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

func dialRFCOMM(mac net.HardwareAddr, _ uint8, _ time.Duration) (Conn, error) {
	return nil, &printerr.ConnectionError{
		Kind:      printerr.Unsupported,
		Transport: string(Bluetooth),
		Address:   mac.String(),
		Err:       ErrRFCOMMUnsupported,
	}
}
