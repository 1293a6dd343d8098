//go:build rp2040

package main

import (
	"errors"
	"machine"
)

var errUSBStalled = errors.New("usb: host not reading")

func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// usbWriter carries telemetry frames over the USB CDC port. A write that
// makes no progress abandons the rest of the frame instead of blocking the
// reporter; the host resynchronises on the next frame header.
type usbWriter struct{}

func (usbWriter) Write(frame []byte) (int, error) {
	written := 0
	for written < len(frame) {
		n, err := machine.Serial.Write(frame[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, errUSBStalled
		}
		written += n
	}
	return written, nil
}
