//go:build rp2040

package main

import (
	"errors"
	"machine"
	"runtime/volatile"
	"unsafe"

	"gofoc/core"
)

// PWM slice registers. TinyGo's PWM API has no phase-correct mode and no
// way to restart several slices together, so those two bits are written
// directly.
const (
	pwmBase        = 0x40050000
	pwmSliceStride = 0x14
	pwmCSR         = 0x00
	pwmCTR         = 0x08
	pwmEN          = 0xa0

	pwmCSRPhaseCorrect = 1 << 1
)

var errPWMNotConfigured = errors.New("pwm: pin not configured")

func pwmReg(offset uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(pwmBase) + offset))
}

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type.
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// RP2040PWMDriver implements core.PWMDriver with centre-aligned PWM. The
// three inverter phases live on separate slices that share one period.
type RP2040PWMDriver struct {
	channels    map[core.PWMPin]uint8
	peripherals map[uint8]pwmPeripheral
	top         uint32
}

func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{
		channels:    make(map[core.PWMPin]uint8),
		peripherals: make(map[uint8]pwmPeripheral),
	}
}

// sliceOf maps GPIO N to slice (N >> 1) & 7.
func sliceOf(pin core.PWMPin) uint8 {
	return uint8((uint32(pin) >> 1) & 0x7)
}

// GetMaxValue returns the compare value for a 100% duty.
func (d *RP2040PWMDriver) GetMaxValue() uint32 {
	return d.top
}

// PeriodCycles returns the system clock cycles in one PWM period. A
// phase-correct slice counts up to top and back down again.
func (d *RP2040PWMDriver) PeriodCycles() uint32 {
	return 2 * (d.top + 1)
}

// ConfigureHardwarePWM sets up pin for centre-aligned PWM with the given
// period. The counter runs up and down, so the slice is configured for half
// the period.
func (d *RP2040PWMDriver) ConfigureHardwarePWM(pin core.PWMPin, periodNs uint64) error {
	slice := sliceOf(pin)
	pwm, ok := d.peripherals[slice]
	if !ok {
		pwm = getPWMPeripheral(slice)
		d.peripherals[slice] = pwm
	}
	if err := pwm.Configure(machine.PWMConfig{Period: periodNs / 2}); err != nil {
		return err
	}
	channel, err := pwm.Channel(machine.Pin(pin))
	if err != nil {
		return err
	}
	pwm.Set(channel, 0)
	csr := pwmReg(uintptr(slice)*pwmSliceStride + pwmCSR)
	csr.SetBits(pwmCSRPhaseCorrect)

	d.channels[pin] = channel
	d.top = pwm.Top()
	return nil
}

// SetDutyCycle sets the compare value, 0 to GetMaxValue.
func (d *RP2040PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	channel, ok := d.channels[pin]
	if !ok {
		return errPWMNotConfigured
	}
	v := uint32(value)
	if v > d.top {
		v = d.top
	}
	d.peripherals[sliceOf(pin)].Set(channel, v)
	return nil
}

// DisablePWM holds the pin low. The slice keeps running.
func (d *RP2040PWMDriver) DisablePWM(pin core.PWMPin) error {
	channel, ok := d.channels[pin]
	if !ok {
		return nil
	}
	d.peripherals[sliceOf(pin)].Set(channel, 0)
	return nil
}

// Align stops every configured slice, zeroes the counters and starts them
// again in the same register write so the phases share one carrier.
func (d *RP2040PWMDriver) Align() {
	var mask uint32
	for slice := range d.peripherals {
		mask |= 1 << slice
	}
	en := pwmReg(pwmEN)
	en.ClearBits(mask)
	for slice := range d.peripherals {
		pwmReg(uintptr(slice)*pwmSliceStride + pwmCTR).Set(0)
	}
	en.SetBits(mask)
}

func getPWMPeripheral(slice uint8) pwmPeripheral {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
