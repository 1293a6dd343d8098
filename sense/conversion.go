// Package sense adapts board sensors to the motor control interfaces: shunt
// amplifiers sampled by an ADC for phase current, and an AS5600 magnetic
// encoder for shaft angle.
package sense

import (
	"errors"
	"fmt"
	"sync"

	"gofoc/calibration"
	"gofoc/fixed"
	"gofoc/transform"
)

var (
	ErrInvalidGain = errors.New("sense: invalid gain")
	ErrOutOfRange  = errors.New("sense: reading out of range")
)

// Gain compensation must lie strictly between these.
var (
	minTrim = fixed.Half
	maxTrim = 2 * fixed.One
)

// ConversionConstants turn 16-bit ADC codes into phase currents in
// milliamps.
type ConversionConstants struct {
	VrefMillivolts uint32
	ShuntMilliohms uint32
	// AmplifierGain is the shunt amplifier voltage gain.
	AmplifierGain fixed.I16F16
	// Trim corrects per-phase gain mismatch.
	Trim [3]fixed.I16F16

	mu    sync.Mutex
	scale [3]int64
	zero  [3]uint16
	mid   uint16
}

// NewConversion validates the analog front end description and returns
// constants with every zero at the ADC midpoint.
func NewConversion(vrefMillivolts, shuntMilliohms uint32, gain fixed.I16F16, trim [3]fixed.I16F16) (*ConversionConstants, error) {
	if vrefMillivolts == 0 || shuntMilliohms == 0 {
		return nil, fmt.Errorf("vref %dmV, shunt %dmOhm: %w", vrefMillivolts, shuntMilliohms, ErrInvalidGain)
	}
	if gain <= 0 {
		return nil, fmt.Errorf("amplifier gain %v: %w", gain.Float(), ErrInvalidGain)
	}
	for i, t := range trim {
		if t <= minTrim || t >= maxTrim {
			return nil, fmt.Errorf("phase %s trim %v not in (0.5, 2): %w", transform.Phase(i), t.Float(), ErrInvalidGain)
		}
	}

	c := &ConversionConstants{
		VrefMillivolts: vrefMillivolts,
		ShuntMilliohms: shuntMilliohms,
		AmplifierGain:  gain,
		Trim:           trim,
	}
	// mA per code, 16.16: vref * 1000 / (65536 * gain * shunt) * trim.
	for i := range c.scale {
		den := int64(gain) * int64(shuntMilliohms)
		c.scale[i] = int64(vrefMillivolts) * 1000 * int64(trim[i]) / den
	}
	c.SetZeros(calibration.DefaultZero, calibration.DefaultZero, calibration.DefaultZero)
	return c, nil
}

// SetZeros replaces the zero-current codes and recalculates the midpoint.
func (c *ConversionConstants) SetZeros(a, b, cc uint16) {
	c.mu.Lock()
	c.zero = [3]uint16{a, b, cc}
	c.mid = uint16((uint32(a) + uint32(b) + uint32(cc)) / 3)
	c.mu.Unlock()
}

// Zeros returns the zero-current codes.
func (c *ConversionConstants) Zeros() [3]uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zero
}

// MidValue is the mean zero code, the level a phase sits at with no current.
func (c *ConversionConstants) MidValue() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mid
}

// Milliamps converts one phase reading.
func (c *ConversionConstants) Milliamps(p transform.Phase, code uint16) transform.Milliamps {
	c.mu.Lock()
	delta := int64(code) - int64(c.zero[p])
	scale := c.scale[p]
	c.mu.Unlock()

	v := (delta*scale + int64(fixed.Half)) >> fixed.FracBits16
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return transform.Milliamps(v)
}

// FullScale returns the magnitude of the largest measurable current.
func (c *ConversionConstants) FullScale() transform.Milliamps {
	return c.Milliamps(transform.PhaseA, 0xFFFF)
}
