package sense

import (
	"context"
	"fmt"

	"gofoc/core"
	"gofoc/motor"
	"gofoc/transform"
)

// CurrentConfig describes how the shunt amplifiers are wired to the ADC.
type CurrentConfig struct {
	Channels [3]core.ADCChannelID
	// TwoPhase derives C from A and B instead of sampling it.
	TwoPhase bool
	// Oversample averages this many conversions per reading.
	Oversample uint8
	// MinValue and MaxValue bound a plausible reading. Codes outside them
	// mean a saturated amplifier or a disconnected input.
	MinValue uint16
	MaxValue uint16
}

// ADCCurrentReader implements motor.CurrentReader over a core.ADCDriver.
type ADCCurrentReader struct {
	adc  core.ADCDriver
	cfg  CurrentConfig
	conv *ConversionConstants
}

// NewADCCurrentReader configures the channels and returns the reader.
func NewADCCurrentReader(adc core.ADCDriver, cfg CurrentConfig, conv *ConversionConstants) (*ADCCurrentReader, error) {
	if cfg.Oversample == 0 {
		cfg.Oversample = 1
	}
	if cfg.MaxValue == 0 {
		cfg.MaxValue = 0xFFFF
	}
	n := 3
	if cfg.TwoPhase {
		n = 2
	}
	for _, ch := range cfg.Channels[:n] {
		if err := adc.ConfigureChannel(ch); err != nil {
			return nil, fmt.Errorf("adc channel %d: %w", ch, err)
		}
	}
	return &ADCCurrentReader{adc: adc, cfg: cfg, conv: conv}, nil
}

func (r *ADCCurrentReader) sample(p transform.Phase) (uint16, error) {
	ch := r.cfg.Channels[p]
	var sum uint32
	for i := uint8(0); i < r.cfg.Oversample; i++ {
		v, err := r.adc.ReadRaw(ch)
		if err != nil {
			return 0, fmt.Errorf("phase %s: %w", p, err)
		}
		sum += uint32(v)
	}
	v := uint16(sum / uint32(r.cfg.Oversample))
	if v < r.cfg.MinValue || v > r.cfg.MaxValue {
		return v, fmt.Errorf("phase %s code %d: %w", p, v, ErrOutOfRange)
	}
	return v, nil
}

// ReadRaw samples every phase without conversion. In two-phase mode C is
// reported at the midpoint.
func (r *ADCCurrentReader) ReadRaw(ctx context.Context) (motor.RawCurrent, error) {
	if err := ctx.Err(); err != nil {
		return motor.RawCurrent{}, err
	}
	var raw motor.RawCurrent
	var err error
	if raw.A, err = r.sample(transform.PhaseA); err != nil {
		return raw, err
	}
	if raw.B, err = r.sample(transform.PhaseB); err != nil {
		return raw, err
	}
	if r.cfg.TwoPhase {
		raw.C = r.conv.MidValue()
		return raw, nil
	}
	raw.C, err = r.sample(transform.PhaseC)
	return raw, err
}

// Read returns the phase currents.
func (r *ADCCurrentReader) Read(ctx context.Context) (transform.PhaseCurrent, error) {
	raw, err := r.ReadRaw(ctx)
	if err != nil {
		return transform.PhaseCurrent{}, err
	}
	a := r.conv.Milliamps(transform.PhaseA, raw.A)
	b := r.conv.Milliamps(transform.PhaseB, raw.B)
	if r.cfg.TwoPhase {
		return transform.FromTwoPhase(a, b), nil
	}
	return transform.PhaseCurrent{A: a, B: b, C: r.conv.Milliamps(transform.PhaseC, raw.C)}, nil
}

// CalibrateCurrent stores the zero-current codes found during start-up.
func (r *ADCCurrentReader) CalibrateCurrent(zeroA, zeroB, zeroC uint16) {
	if r.cfg.TwoPhase {
		zeroC = r.conv.MidValue()
	}
	r.conv.SetZeros(zeroA, zeroB, zeroC)
}

// Conversion returns the constants in use.
func (r *ADCCurrentReader) Conversion() *ConversionConstants { return r.conv }
