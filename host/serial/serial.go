// Package serial opens the USB serial link to the controller.
package serial

import (
	"errors"
	"io"
	"strings"
)

// ErrNoPort is returned when discovery finds no matching USB device.
var ErrNoPort = errors.New("serial: no controller found")

// Port is an open serial connection.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Backend names accepted in Config.Backend.
const (
	BackendTarm  = "tarm"
	BackendBugst = "bugst"
)

// AutoDevice makes Open search for the controller.
const AutoDevice = "auto"

// Config holds serial port configuration
type Config struct {
	// Device path ("/dev/ttyACM0", "COM3") or "auto"
	Device string

	// Baud rate; USB CDC ignores it
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int

	// Backend selects the serial library, "tarm" (default) or "bugst"
	Backend string

	// VendorID filters auto discovery, hex as reported by the OS
	VendorID string
}

// DefaultConfig returns the settings for the controller's USB CDC port.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
		Backend:     BackendTarm,
		VendorID:    "2E8A", // Raspberry Pi
	}
}

// PortInfo describes a candidate port found by discovery.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// pick returns the first USB port whose vendor matches vid, or the first
// USB port when vid is empty.
func pick(ports []PortInfo, vid string) (PortInfo, error) {
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if vid == "" || strings.EqualFold(p.VID, vid) {
			return p, nil
		}
	}
	return PortInfo{}, ErrNoPort
}
