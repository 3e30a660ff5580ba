package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

// openWithTimeout runs dial in the background and stops waiting after
// timeout. A connection that completes after the deadline is closed.
func openWithTimeout(kind Kind, address string, timeout time.Duration, dial func() (Conn, error)) (Conn, error) {
	if timeout <= 0 {
		return dial()
	}

	type result struct {
		conn Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := dial()
		done <- result{conn: c, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-timer.C:
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, &printerr.ConnectionError{
			Kind:      printerr.Timeout,
			Transport: string(kind),
			Address:   address,
			Err:       fmt.Errorf("no connection after %v", timeout),
		}
	}
}

// classify wraps err in a ConnectionError unless it already is one.
func classify(kind Kind, address string, err error) error {
	if err == nil {
		return nil
	}
	var connErr *printerr.ConnectionError
	if errors.As(err, &connErr) {
		return err
	}

	k := printerr.Unreachable
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		k = printerr.Timeout
	case errors.Is(err, fs.ErrPermission):
		k = printerr.PermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		k = printerr.NotFound
	}

	return &printerr.ConnectionError{Kind: k, Transport: string(kind), Address: address, Err: err}
}

func invalidAddress(kind Kind, address, reason string) error {
	return &printerr.ConnectionError{
		Kind:      printerr.InvalidAddress,
		Transport: string(kind),
		Address:   address,
		Err:       errors.New(reason),
	}
}

// streamConn adapts an io.WriteCloser and reports write failures as
// IOError. With a writeTimeout, a write that does not return in time closes
// the writer to unblock it and fails with os.ErrDeadlineExceeded; later
// writes on the conn fail.
type streamConn struct {
	kind         Kind
	w            io.WriteCloser
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *streamConn) Write(p []byte) (int, error) {
	if c.writeTimeout <= 0 {
		return c.wrap(c.w.Write(p))
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := c.w.Write(p)
		done <- result{n: n, err: err}
	}()

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return c.wrap(r.n, r.err)
	case <-timer.C:
		_ = c.Close()
		return 0, &printerr.IOError{
			Transport: string(c.kind),
			Err:       fmt.Errorf("write stalled for %v: %w", c.writeTimeout, os.ErrDeadlineExceeded),
		}
	}
}

func (c *streamConn) wrap(n int, err error) (int, error) {
	if err != nil {
		return n, &printerr.IOError{Transport: string(c.kind), Err: err}
	}
	return n, nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.w.Close()
	})
	return c.closeErr
}
