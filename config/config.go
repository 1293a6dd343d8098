// Package config loads the JSON board description: current sensing, PWM
// wiring, encoder, control gains, calibration sweep and task timing.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gofoc/angle"
	"gofoc/core"
	"gofoc/fixed"
	"gofoc/inverter"
	"gofoc/motor"
	"gofoc/pi"
	"gofoc/sense"
	"gofoc/transform"
)

var (
	ErrInvalidPin   = errors.New("config: invalid pin name")
	ErrInvalidValue = errors.New("config: invalid value")
)

// CurrentSenseConfig describes the shunt amplifiers.
type CurrentSenseConfig struct {
	Channels       [3]string  // ADC inputs, "ADC0".."ADC3"
	TwoPhase       bool       // C is derived from A and B
	VrefMillivolts uint32     // ADC reference
	ShuntMilliohms uint32     // Shunt resistance
	AmplifierGain  float64    // Shunt amplifier gain
	GainTrim       [3]float64 // Per-phase gain compensation, in (0.5, 2)
	Oversample     uint8      // Conversions averaged per reading
	MinValue       uint16     // Lowest plausible 16-bit code
	MaxValue       uint16     // Highest plausible 16-bit code
}

// PWMConfig describes the inverter outputs.
type PWMConfig struct {
	Pins        [3]string // Phase A, B, C high-side PWM pins
	EnablePin   string    // Gate driver enable (optional)
	FrequencyHz uint32    // Switching frequency
	MaxDuty     float64   // Largest duty (0.0-1.0)
	DeadTimeNs  uint32    // Gate driver dead time
}

// EncoderConfig describes the AS5600 connection.
type EncoderConfig struct {
	SDAPin      string
	SCLPin      string
	FrequencyHz uint32 // I2C clock
	Invert      bool   // Sensor faces the other way
}

// ControlConfig holds loop gains and limits.
type ControlConfig struct {
	BusMillivolts      int32
	CurrentPI          [2]float64 // [Kp, Ki] in mV per mA
	VoltageLimit       int16      // Current loop output limit (mV)
	VelocityPI         [2]float64 // [Kp, Ki] in mA per raw/s
	CurrentLimit       int16      // Velocity loop output limit (mA)
	VelocityIntegrator int16      // Velocity loop integrator limit (mA)
	PositionKp         float64    // raw/s per raw unit of position error
	MaxVelocity        float64    // Mechanical turns per second
}

// CalibrationConfig describes the shaft calibration sweep.
type CalibrationConfig struct {
	Amplitude    float64 // Field magnitude, fraction of a unit vector
	SlowSpeed    int32   // Raw electrical units per millisecond
	FastSpeed    int32   // Raw electrical units per millisecond
	WarmUpTurns  uint32  // Electrical turns before measuring
	MeasureTurns uint32  // Electrical turns per measuring stage
	TimeoutMs    uint32  // Abort the sweep after this long
	MinCoherence float64 // Reject runs below this coherence, 0 to 1
}

// TimingConfig sets the task periods and fail-safe windows.
type TimingConfig struct {
	UninitializedDelayMs uint32
	PhaseZeroTimeMs      uint32
	StateTickUs          uint32
	FOCTickUs            uint32
	AnglePeriodUs        uint32
	RetryBackoffMs       uint32
	MaxTriggerLateTicks  uint32
	StaleAfterUs         uint32
}

// TelemetryConfig controls the outbound snapshot stream.
type TelemetryConfig struct {
	Enabled  bool
	PeriodMs uint32
}

// Board is the complete configuration of one controller board.
type Board struct {
	Name         string
	CurrentSense CurrentSenseConfig
	PWM          PWMConfig
	Encoder      EncoderConfig
	Control      ControlConfig
	Calibration  CalibrationConfig
	Timing       TimingConfig
	Telemetry    TelemetryConfig
}

// LoadConfig parses a JSON board description, fills in defaults and
// validates the result.
func LoadConfig(jsonData []byte) (*Board, error) {
	var board Board

	err := json.Unmarshal(jsonData, &board)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&board)

	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &board, nil
}

// applyDefaults fills in missing configuration values with the reference
// board's values.
func applyDefaults(b *Board) {
	d := Default()

	if b.Name == "" {
		b.Name = d.Name
	}

	cs := &b.CurrentSense
	if cs.Channels == [3]string{} {
		cs.Channels = d.CurrentSense.Channels
	}
	if cs.VrefMillivolts == 0 {
		cs.VrefMillivolts = d.CurrentSense.VrefMillivolts
	}
	if cs.ShuntMilliohms == 0 {
		cs.ShuntMilliohms = d.CurrentSense.ShuntMilliohms
	}
	if cs.AmplifierGain == 0 {
		cs.AmplifierGain = d.CurrentSense.AmplifierGain
	}
	for i := range cs.GainTrim {
		if cs.GainTrim[i] == 0 {
			cs.GainTrim[i] = 1.0
		}
	}
	if cs.Oversample == 0 {
		cs.Oversample = 1
	}
	if cs.MaxValue == 0 {
		cs.MaxValue = 0xFFFF
	}

	p := &b.PWM
	if p.Pins == [3]string{} {
		p.Pins = d.PWM.Pins
	}
	if p.FrequencyHz == 0 {
		p.FrequencyHz = d.PWM.FrequencyHz
	}
	if p.MaxDuty == 0 {
		p.MaxDuty = d.PWM.MaxDuty
	}

	e := &b.Encoder
	if e.SDAPin == "" {
		e.SDAPin = d.Encoder.SDAPin
	}
	if e.SCLPin == "" {
		e.SCLPin = d.Encoder.SCLPin
	}
	if e.FrequencyHz == 0 {
		e.FrequencyHz = d.Encoder.FrequencyHz
	}

	c := &b.Control
	if c.BusMillivolts == 0 {
		c.BusMillivolts = d.Control.BusMillivolts
	}
	if c.CurrentPI == [2]float64{} {
		c.CurrentPI = d.Control.CurrentPI
	}
	if c.VoltageLimit == 0 {
		c.VoltageLimit = d.Control.VoltageLimit
	}
	if c.VelocityPI == [2]float64{} {
		c.VelocityPI = d.Control.VelocityPI
	}
	if c.CurrentLimit == 0 {
		c.CurrentLimit = d.Control.CurrentLimit
	}
	if c.VelocityIntegrator == 0 {
		c.VelocityIntegrator = d.Control.VelocityIntegrator
	}
	if c.PositionKp == 0 {
		c.PositionKp = d.Control.PositionKp
	}
	if c.MaxVelocity == 0 {
		c.MaxVelocity = d.Control.MaxVelocity
	}

	cal := &b.Calibration
	if cal.Amplitude == 0 {
		cal.Amplitude = d.Calibration.Amplitude
	}
	if cal.SlowSpeed == 0 {
		cal.SlowSpeed = d.Calibration.SlowSpeed
	}
	if cal.FastSpeed == 0 {
		cal.FastSpeed = d.Calibration.FastSpeed
	}
	if cal.WarmUpTurns == 0 {
		cal.WarmUpTurns = d.Calibration.WarmUpTurns
	}
	if cal.MeasureTurns == 0 {
		cal.MeasureTurns = d.Calibration.MeasureTurns
	}
	if cal.TimeoutMs == 0 {
		cal.TimeoutMs = d.Calibration.TimeoutMs
	}
	if cal.MinCoherence == 0 {
		cal.MinCoherence = d.Calibration.MinCoherence
	}

	t := &b.Timing
	dt := d.Timing
	for _, f := range []struct {
		v   *uint32
		def uint32
	}{
		{&t.UninitializedDelayMs, dt.UninitializedDelayMs},
		{&t.PhaseZeroTimeMs, dt.PhaseZeroTimeMs},
		{&t.StateTickUs, dt.StateTickUs},
		{&t.FOCTickUs, dt.FOCTickUs},
		{&t.AnglePeriodUs, dt.AnglePeriodUs},
		{&t.RetryBackoffMs, dt.RetryBackoffMs},
		{&t.MaxTriggerLateTicks, dt.MaxTriggerLateTicks},
		{&t.StaleAfterUs, dt.StaleAfterUs},
	} {
		if *f.v == 0 {
			*f.v = f.def
		}
	}

	if b.Telemetry.PeriodMs == 0 {
		b.Telemetry.PeriodMs = d.Telemetry.PeriodMs
	}
}

// Default returns the reference board: an RP2040 with three inline shunts,
// a DRV8313-class gate driver and an AS5600 on I2C0.
func Default() *Board {
	return &Board{
		Name: "rp2040-foc",
		CurrentSense: CurrentSenseConfig{
			Channels:       [3]string{"ADC0", "ADC1", "ADC2"},
			VrefMillivolts: 3300,
			ShuntMilliohms: 10,
			AmplifierGain:  20.0,
			GainTrim:       [3]float64{1.0, 1.0, 1.0},
			Oversample:     1,
			MinValue:       0,
			MaxValue:       0xFFFF,
		},
		PWM: PWMConfig{
			Pins:        [3]string{"gpio2", "gpio4", "gpio6"},
			EnablePin:   "gpio8",
			FrequencyHz: 25000,
			MaxDuty:     0.95,
			DeadTimeNs:  500,
		},
		Encoder: EncoderConfig{
			SDAPin:      "gpio12",
			SCLPin:      "gpio13",
			FrequencyHz: 1000000,
		},
		Control: ControlConfig{
			BusMillivolts:      12000,
			CurrentPI:          [2]float64{2.0, 0.2},
			VoltageLimit:       6000,
			VelocityPI:         [2]float64{0.01, 0.0005},
			CurrentLimit:       1500,
			VelocityIntegrator: 1000,
			PositionKp:         20.0,
			MaxVelocity:        6.0,
		},
		Calibration: CalibrationConfig{
			Amplitude:    0.15,
			SlowSpeed:    131,
			FastSpeed:    524,
			WarmUpTurns:  1,
			MeasureTurns: 7,
			TimeoutMs:    20000,
			MinCoherence: 0.25,
		},
		Timing: TimingConfig{
			UninitializedDelayMs: 500,
			PhaseZeroTimeMs:      100,
			StateTickUs:          1000,
			FOCTickUs:            100,
			AnglePeriodUs:        100,
			RetryBackoffMs:       10,
			MaxTriggerLateTicks:  1,
			StaleAfterUs:         2000,
		},
		Telemetry: TelemetryConfig{
			Enabled:  true,
			PeriodMs: 50,
		},
	}
}

// Validate checks every setting that would make initialization fail.
func (b *Board) Validate() error {
	if _, err := b.Conversion(); err != nil {
		return err
	}
	if _, err := b.CurrentConfig(); err != nil {
		return err
	}
	if _, err := b.InverterConfig(); err != nil {
		return err
	}
	p := b.PWM
	if p.MaxDuty <= 0 || p.MaxDuty > 1 {
		return fmt.Errorf("pwm max duty %v: %w", p.MaxDuty, ErrInvalidValue)
	}
	if float64(p.DeadTimeNs) >= p.MaxDuty*float64(b.PeriodNs()) {
		return fmt.Errorf("dead time %dns, max on-time %.0fns: %w", p.DeadTimeNs, p.MaxDuty*float64(b.PeriodNs()), inverter.ErrMaxDutyBelowOffset)
	}
	if _, err := ParsePin(b.Encoder.SDAPin); err != nil {
		return err
	}
	if _, err := ParsePin(b.Encoder.SCLPin); err != nil {
		return err
	}
	if b.Control.BusMillivolts <= 0 {
		return fmt.Errorf("bus voltage %dmV: %w", b.Control.BusMillivolts, ErrInvalidValue)
	}
	return b.MotorConfig().Validate()
}

// PeriodNs returns the PWM period.
func (b *Board) PeriodNs() uint64 {
	if b.PWM.FrequencyHz == 0 {
		return 0
	}
	return uint64(time.Second/time.Nanosecond) / uint64(b.PWM.FrequencyHz)
}

// Conversion builds the ADC to milliamp constants.
func (b *Board) Conversion() (*sense.ConversionConstants, error) {
	cs := b.CurrentSense
	var trim [3]fixed.I16F16
	for i, t := range cs.GainTrim {
		trim[i] = fixed.FromFloat(t)
	}
	return sense.NewConversion(cs.VrefMillivolts, cs.ShuntMilliohms, fixed.FromFloat(cs.AmplifierGain), trim)
}

// CurrentConfig returns the ADC channel assignment.
func (b *Board) CurrentConfig() (sense.CurrentConfig, error) {
	cs := b.CurrentSense
	out := sense.CurrentConfig{
		TwoPhase:   cs.TwoPhase,
		Oversample: cs.Oversample,
		MinValue:   cs.MinValue,
		MaxValue:   cs.MaxValue,
	}
	n := 3
	if cs.TwoPhase {
		n = 2
	}
	for i := 0; i < n; i++ {
		ch, err := ParseADC(cs.Channels[i])
		if err != nil {
			return out, fmt.Errorf("phase %s: %w", transform.Phase(i), err)
		}
		out.Channels[i] = ch
	}
	if cs.MinValue >= cs.MaxValue {
		return out, fmt.Errorf("adc range [%d, %d]: %w", cs.MinValue, cs.MaxValue, ErrInvalidValue)
	}
	return out, nil
}

// InverterConfig returns the PWM wiring.
func (b *Board) InverterConfig() (inverter.Config, error) {
	p := b.PWM
	out := inverter.Config{
		PeriodNs:   b.PeriodNs(),
		MaxDuty:    fixed.FromFloat(p.MaxDuty),
		DeadTimeNs: p.DeadTimeNs,
	}
	if out.PeriodNs == 0 {
		return out, fmt.Errorf("pwm frequency %d: %w", p.FrequencyHz, ErrInvalidValue)
	}
	for i, name := range p.Pins {
		pin, err := ParsePin(name)
		if err != nil {
			return out, fmt.Errorf("phase %s: %w", transform.Phase(i), err)
		}
		out.Pins[i] = core.PWMPin(pin)
	}
	if p.EnablePin != "" {
		pin, err := ParsePin(p.EnablePin)
		if err != nil {
			return out, fmt.Errorf("enable: %w", err)
		}
		out.EnablePin = core.GPIOPin(pin)
		out.HasEnable = true
	}
	return out, nil
}

// MotorConfig converts the board settings into control settings.
func (b *Board) MotorConfig() motor.Config {
	c := b.Control
	t := b.Timing
	cal := b.Calibration
	ms := func(v uint32) time.Duration { return time.Duration(v) * time.Millisecond }
	us := func(v uint32) time.Duration { return time.Duration(v) * time.Microsecond }

	return motor.Config{
		Timing: motor.TimingConfig{
			UninitializedDelay:  ms(t.UninitializedDelayMs),
			PhaseZeroTime:       ms(t.PhaseZeroTimeMs),
			CalibrationTimeout:  ms(cal.TimeoutMs),
			StateTickPeriod:     us(t.StateTickUs),
			FOCTickPeriod:       us(t.FOCTickUs),
			AnglePeriod:         us(t.AnglePeriodUs),
			RetryBackoff:        ms(t.RetryBackoffMs),
			MaxTriggerLateTicks: t.MaxTriggerLateTicks,
			StaleAfter:          us(t.StaleAfterUs),
		},
		Calibration: motor.ShaftCalibrationConfig{
			Amplitude:    fixed.FromFloat(cal.Amplitude),
			SlowSpeed:    cal.SlowSpeed,
			FastSpeed:    cal.FastSpeed,
			WarmUpTurns:  cal.WarmUpTurns,
			MeasureTurns: cal.MeasureTurns,
			MinCoherence: fixed.Q15FromFloat(cal.MinCoherence),
		},
		Control: motor.ControlConfig{
			BusMillivolts: c.BusMillivolts,
			Current: pi.Config[transform.Millivolts]{
				Kp:            fixed.FromFloat(c.CurrentPI[0]),
				Ki:            fixed.FromFloat(c.CurrentPI[1]),
				IntegratorMin: -transform.Millivolts(c.VoltageLimit),
				IntegratorMax: transform.Millivolts(c.VoltageLimit),
				OutputMin:     -transform.Millivolts(c.VoltageLimit),
				OutputMax:     transform.Millivolts(c.VoltageLimit),
			},
			Velocity: pi.Config[transform.Milliamps]{
				Kp:            fixed.FromFloat(c.VelocityPI[0]),
				Ki:            fixed.FromFloat(c.VelocityPI[1]),
				IntegratorMin: -transform.Milliamps(c.VelocityIntegrator),
				IntegratorMax: transform.Milliamps(c.VelocityIntegrator),
				OutputMin:     -transform.Milliamps(c.CurrentLimit),
				OutputMax:     transform.Milliamps(c.CurrentLimit),
			},
			PositionKp:  fixed.FromFloat(c.PositionKp),
			MaxVelocity: angle.MechanicalVelocity(math.Round(c.MaxVelocity * angle.FullTurn)),
		},
	}
}

// TelemetryPeriod returns the snapshot interval.
func (b *Board) TelemetryPeriod() time.Duration {
	return time.Duration(b.Telemetry.PeriodMs) * time.Millisecond
}

// ParsePin accepts "gpio12", "GP12" or "12".
func ParsePin(name string) (uint32, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "gpio")
	s = strings.TrimPrefix(s, "gp")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n > 47 {
		return 0, fmt.Errorf("%q: %w", name, ErrInvalidPin)
	}
	return uint32(n), nil
}

// ParseADC accepts "ADC0".."ADC7".
func ParseADC(name string) (core.ADCChannelID, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(s, "adc") {
		return 0, fmt.Errorf("%q: %w", name, ErrInvalidPin)
	}
	n, err := strconv.ParseUint(s[3:], 10, 8)
	if err != nil || n > 7 {
		return 0, fmt.Errorf("%q: %w", name, ErrInvalidPin)
	}
	return core.ADCChannelID(n), nil
}
