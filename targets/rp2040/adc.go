//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"

	"gofoc/core"
)

const adcBits = 12

var errADCChannel = errors.New("adc: unsupported channel")

// RpAdcDriver implements core.ADCDriver. Channels are converted one at a
// time straight through the ADC registers; the shunt samples are taken
// back to back right after the PWM trigger.
type RpAdcDriver struct {
	referenceMillivolts uint32
	configured          [4]bool
}

func NewRPAdcDriver() *RpAdcDriver {
	return &RpAdcDriver{referenceMillivolts: 3300}
}

func (d *RpAdcDriver) Init(cfg core.ADCConfig) error {
	if cfg.ReferenceMillivolts != 0 {
		d.referenceMillivolts = cfg.ReferenceMillivolts
	}
	machine.InitADC()
	return nil
}

// ConfigureChannel switches the channel's GPIO to analog input.
func (d *RpAdcDriver) ConfigureChannel(ch core.ADCChannelID) error {
	var adc machine.ADC
	switch ch {
	case 0:
		adc = machine.ADC{Pin: machine.ADC0}
	case 1:
		adc = machine.ADC{Pin: machine.ADC1}
	case 2:
		adc = machine.ADC{Pin: machine.ADC2}
	case 3:
		adc = machine.ADC{Pin: machine.ADC3}
	default:
		return errADCChannel
	}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.configured[ch] = true
	return nil
}

// ReadRaw runs one conversion and returns it scaled to 16 bits.
func (d *RpAdcDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if int(ch) >= len(d.configured) || !d.configured[ch] {
		return 0, errADCChannel
	}
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}
	rp.ADC.CS.ReplaceBits(uint32(ch)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return core.ScaleTo16(rp.ADC.RESULT.Get()&0xFFF, adcBits), nil
}
