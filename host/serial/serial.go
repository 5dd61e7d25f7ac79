// Package serial abstracts the serial port the master talks through.
package serial

import (
	"io"
)

// Port represents a serial port. The abstraction allows different
// implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory loopback (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate. The bus runs at 115200 8N1.
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the standard bus configuration for a device path.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50, // short timeout so the receive loop can poll
	}
}
