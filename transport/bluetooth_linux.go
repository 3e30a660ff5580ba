//go:build linux

package transport

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// dialRFCOMM connects an RFCOMM stream socket to mac on channel.
func dialRFCOMM(mac net.HardwareAddr, channel uint8, writeTimeout time.Duration) (Conn, error) {
	// SockaddrRFCOMM wants the address little-endian.
	var addr [6]byte
	for i := 0; i < 6; i++ {
		addr[i] = mac[5-i]
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	if err := unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if writeTimeout > 0 {
		tv := unix.NsecToTimeval(writeTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set send timeout: %w", err)
		}
	}

	return &streamConn{kind: Bluetooth, w: os.NewFile(uintptr(fd), "rfcomm:"+mac.String())}, nil
}
