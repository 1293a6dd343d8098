//go:build rp2040

package main

import (
	"machine"

	"gofoc/core"
)

// RPGPIODriver implements core.GPIODriver. GPIO numbers map directly to
// machine pins.
type RPGPIODriver struct {
	configured map[core.GPIOPin]machine.Pin
}

func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{configured: make(map[core.GPIOPin]machine.Pin)}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: mode})
	d.configured[pin] = p
}

func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	d.configure(pin, machine.PinOutput)
	return nil
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	d.configure(pin, machine.PinInputPullup)
	return nil
}

// SetPin drives pin, configuring it as an output on first use.
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, ok := d.configured[pin]
	if !ok {
		d.configure(pin, machine.PinOutput)
		p = d.configured[pin]
	}
	p.Set(value)
	return nil
}

func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.configured[pin]
	if !ok {
		return false, nil
	}
	return p.Get(), nil
}
