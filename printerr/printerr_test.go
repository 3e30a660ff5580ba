package printerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected string
	}{
		{
			name:     "no printer",
			input:    &ConfigError{Code: NoPrinterConfigured},
			expected: "No printer configured",
		},
		{
			name:     "payload too large",
			input:    &ConfigError{Code: PayloadTooLarge, Detail: "120000 characters"},
			expected: "Invalid request: payload too large: 120000 characters",
		},
		{
			name:     "connection timeout",
			input:    &ConnectionError{Kind: Timeout, Transport: "bluetooth", Address: "AA:BB"},
			expected: "Cannot connect via bluetooth (timeout)",
		},
		{
			name:     "wrapped io error",
			input:    fmt.Errorf("attempt 3: %w", &IOError{Transport: "lan", Err: errors.New("broken pipe")}),
			expected: "Write to printer failed via lan: broken pipe",
		},
		{
			name:     "protocol",
			input:    &ProtocolError{Reason: "barcode data exceeds 1108 bytes"},
			expected: "Cannot encode print data: barcode data exceeds 1108 bytes",
		},
		{
			name:     "busy",
			input:    ErrBusy,
			expected: "Printer busy",
		},
		{
			name:     "fallback",
			input:    errors.New("something odd"),
			expected: "something odd",
		},
		{
			name:     "nil",
			input:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Message(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&IOError{Transport: "usb", Err: errors.New("stall")}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &IOError{Transport: "usb"})))
	assert.False(t, IsRetryable(&ConnectionError{Kind: Timeout}))
	assert.False(t, IsRetryable(&ConfigError{Code: PayloadTooLarge}))
	assert.False(t, IsRetryable(&ProtocolError{Reason: "x"}))
	assert.False(t, IsRetryable(nil))
}

func TestConnectionErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &ConnectionError{Kind: Unreachable, Transport: "lan", Address: "10.0.0.9:9100", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "lan 10.0.0.9:9100: unreachable: connection refused", err.Error())
}

func TestIsConfig(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &ConfigError{Code: NoPrinterConfigured})
	assert.True(t, IsConfig(err, NoPrinterConfigured))
	assert.False(t, IsConfig(err, PayloadTooLarge))
}
