// Package sim runs the motor control firmware against a simulated motor on
// the host. The plant stands in for the hardware below the HAL: it is the
// PWM, GPIO and ADC driver the inverter and current sense packages talk to,
// and the source of the encoder's angle codes.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gofoc/angle"
	"gofoc/config"
	"gofoc/core"
	"gofoc/inverter"
	"gofoc/sense"
)

var (
	ErrInvalidParams = errors.New("sim: invalid plant parameters")
	ErrUnknownPin    = errors.New("sim: pin not wired to the plant")
	ErrNotConfigured = errors.New("sim: pwm output not configured")
)

const (
	sqrt3 = 1.7320508075688772
	twoPi = 2 * math.Pi

	// sysClockMHz sets the PWM counter top the way the RP2040 derives it.
	sysClockMHz = 125
	// encoderBits is the AS5600 angle resolution.
	encoderBits = 12
	historyLen  = 512
)

// Params describes the simulated motor, its sensors and analog front end.
type Params struct {
	ResistanceOhms float64 // Phase resistance
	InductanceH    float64 // Phase inductance
	FluxLinkage    float64 // Magnet flux linkage, V*s per electrical radian
	PolePairs      int
	Inertia        float64 // kg*m^2
	Friction       float64 // Viscous friction, N*m*s
	LoadTorque     float64 // Constant load, N*m
	BusVolts       float64

	// SensorOffset is the encoder reading with the rotor's d axis on
	// phase A.
	SensorOffset angle.Mechanical
	// SensorDelay is the age of the angle an encoder read returns.
	SensorDelay time.Duration

	VrefMillivolts float64
	ShuntMilliohms float64
	AmplifierGain  float64
	// BiasMillivolts is each amplifier's output at zero current.
	BiasMillivolts [3]float64
	ADCBits        uint32

	// InitialAngle is the rotor position at time zero, in radians.
	InitialAngle float64
	// Substep is the integration step.
	Substep time.Duration
}

// DefaultParams returns a small gimbal motor on the reference board.
func DefaultParams() Params {
	return Params{
		ResistanceOhms: 2.0,
		InductanceH:    1e-3,
		FluxLinkage:    0.003,
		PolePairs:      7,
		Inertia:        2e-5,
		Friction:       2e-6,
		BusVolts:       12.0,
		SensorOffset:   angle.MechanicalFromRaw(6554),
		SensorDelay:    150 * time.Microsecond,
		VrefMillivolts: 3300,
		ShuntMilliohms: 10,
		AmplifierGain:  20,
		BiasMillivolts: [3]float64{1650, 1662, 1641},
		ADCBits:        12,
		InitialAngle:   0.3,
		Substep:        10 * time.Microsecond,
	}
}

// FromBoard returns the default motor with the board's bus voltage and
// current sense front end.
func FromBoard(b *config.Board) Params {
	p := DefaultParams()
	p.BusVolts = float64(b.Control.BusMillivolts) / 1000
	p.VrefMillivolts = float64(b.CurrentSense.VrefMillivolts)
	p.ShuntMilliohms = float64(b.CurrentSense.ShuntMilliohms)
	p.AmplifierGain = b.CurrentSense.AmplifierGain
	mid := p.VrefMillivolts / 2
	p.BiasMillivolts = [3]float64{mid, mid + 12, mid - 9}
	return p
}

// Validate rejects parameters the integrator cannot work with.
func (p Params) Validate() error {
	switch {
	case p.ResistanceOhms <= 0 || p.InductanceH <= 0 || p.Inertia <= 0:
		return fmt.Errorf("resistance, inductance and inertia must be positive: %w", ErrInvalidParams)
	case p.PolePairs <= 0 || p.PolePairs > 16:
		return fmt.Errorf("pole pairs %d: %w", p.PolePairs, ErrInvalidParams)
	case p.Substep < time.Microsecond:
		return fmt.Errorf("substep %v below 1us: %w", p.Substep, ErrInvalidParams)
	case p.SensorDelay < 0 || p.SensorDelay >= time.Duration(historyLen-1)*p.Substep:
		return fmt.Errorf("sensor delay %v: %w", p.SensorDelay, ErrInvalidParams)
	case p.VrefMillivolts <= 0 || p.ADCBits == 0 || p.ADCBits > 16:
		return fmt.Errorf("adc reference %vmV, %d bits: %w", p.VrefMillivolts, p.ADCBits, ErrInvalidParams)
	}
	return nil
}

// State is the true condition of the simulated motor.
type State struct {
	Angle    float64 // Mechanical, radians in [0, 2pi)
	Velocity float64 // Mechanical, radians per second
	// Currents in amps, in the stator frame and in the rotor frame.
	Alpha, Beta float64
	D, Q        float64
	Torque      float64
	Connected   bool
}

type sample struct {
	at    core.Instant
	theta float64
}

// Plant is a permanent magnet motor behind a three-phase inverter. Every
// call first integrates the model up to the clock's current time.
type Plant struct {
	mu    sync.Mutex
	p     Params
	clock core.Clock
	at    core.Instant

	pins      [3]core.PWMPin
	enablePin core.GPIOPin
	hasEnable bool
	channels  [3]core.ADCChannelID
	adcBits   uint32

	top        uint32
	configured [3]bool
	compare    [3]uint32
	levels     map[core.GPIOPin]bool

	theta, omega float64
	ia, ib       float64
	torque       float64

	history [historyLen]sample
	head    int
	filled  int
}

// NewPlant wires a plant to the pins and ADC channels the inverter and
// current reader are configured with.
func NewPlant(p Params, clock core.Clock, inv inverter.Config, cur sense.CurrentConfig) (*Plant, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pl := &Plant{
		p:         p,
		clock:     clock,
		at:        clock.Now(),
		pins:      inv.Pins,
		enablePin: inv.EnablePin,
		hasEnable: inv.HasEnable,
		channels:  cur.Channels,
		adcBits:   p.ADCBits,
		levels:    make(map[core.GPIOPin]bool),
		theta:     wrap(p.InitialAngle),
	}
	pl.record()
	return pl, nil
}

func wrap(theta float64) float64 {
	theta = math.Mod(theta, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	return theta
}

// Advance integrates the model up to now. Time never runs backwards.
func (pl *Plant) Advance(now core.Instant) {
	pl.mu.Lock()
	pl.advance(now)
	pl.mu.Unlock()
}

func (pl *Plant) sync() {
	pl.advance(pl.clock.Now())
}

func (pl *Plant) advance(now core.Instant) {
	step := core.Instant(pl.p.Substep / time.Microsecond)
	for pl.at < now {
		h := step
		if now-pl.at < h {
			h = now - pl.at
		}
		pl.integrate(float64(h) * 1e-6)
		pl.at += h
		pl.record()
	}
}

func (pl *Plant) connected() bool {
	if pl.hasEnable && !pl.levels[pl.enablePin] {
		return false
	}
	return pl.configured[0] && pl.configured[1] && pl.configured[2] && pl.top > 0
}

// integrate advances the model by h seconds with one Euler step.
func (pl *Plant) integrate(h float64) {
	p := &pl.p
	pp := float64(p.PolePairs)
	the := pp * pl.theta
	sin, cos := math.Sincos(the)

	if pl.connected() {
		var v [3]float64
		for k := range v {
			v[k] = p.BusVolts * float64(pl.compare[k]) / float64(pl.top)
		}
		va := (2*v[0] - v[1] - v[2]) / 3
		vb := (v[1] - v[2]) / sqrt3
		we := pp * pl.omega
		ea := -p.FluxLinkage * we * sin
		eb := p.FluxLinkage * we * cos
		pl.ia += (va - p.ResistanceOhms*pl.ia - ea) / p.InductanceH * h
		pl.ib += (vb - p.ResistanceOhms*pl.ib - eb) / p.InductanceH * h
	} else {
		// With any bridge open there is no return path once the
		// freewheeling current has decayed, which takes far less than a
		// step.
		pl.ia, pl.ib = 0, 0
	}

	pl.torque = 1.5 * pp * p.FluxLinkage * (pl.ib*cos - pl.ia*sin)
	pl.omega += (pl.torque - p.Friction*pl.omega - p.LoadTorque) / p.Inertia * h
	pl.theta = wrap(pl.theta + pl.omega*h)
}

func (pl *Plant) record() {
	pl.head = (pl.head + 1) % historyLen
	pl.history[pl.head] = sample{at: pl.at, theta: pl.theta}
	if pl.filled < historyLen {
		pl.filled++
	}
}

// delayed returns the rotor angle SensorDelay ago.
func (pl *Plant) delayed() float64 {
	delay := core.Instant(pl.p.SensorDelay / time.Microsecond)
	oldest := pl.history[(pl.head-pl.filled+1+historyLen)%historyLen]
	if pl.at < delay {
		return oldest.theta
	}
	target := pl.at - delay
	for i := 0; i < pl.filled; i++ {
		s := pl.history[(pl.head-i+historyLen)%historyLen]
		if s.at <= target {
			return s.theta
		}
	}
	return oldest.theta
}

// State returns the model's current state.
func (pl *Plant) State() State {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.sync()
	sin, cos := math.Sincos(float64(pl.p.PolePairs) * pl.theta)
	return State{
		Angle:     pl.theta,
		Velocity:  pl.omega,
		Alpha:     pl.ia,
		Beta:      pl.ib,
		D:         pl.ia*cos + pl.ib*sin,
		Q:         -pl.ia*sin + pl.ib*cos,
		Torque:    pl.torque,
		Connected: pl.connected(),
	}
}

// ExpectedOffset is the electrical offset a correct shaft calibration
// finds for this plant.
func (pl *Plant) ExpectedOffset() angle.Electrical {
	return angle.ElectricalFromRaw(0).OverflowingSub(angle.FromMechanical(pl.p.SensorOffset, 0, int16(pl.p.PolePairs)))
}

// Params returns the plant parameters.
func (pl *Plant) Params() Params { return pl.p }

// EncoderCode returns the AS5600 angle register: the delayed rotor angle
// plus the mounting offset, truncated to 12 bits.
func (pl *Plant) EncoderCode() (uint16, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.sync()
	raw := uint16(int64(pl.delayed()/twoPi*65536)) + pl.p.SensorOffset.Raw()
	return raw >> (16 - encoderBits), nil
}

func (pl *Plant) phaseOf(pin core.PWMPin) (int, error) {
	for k, p := range pl.pins {
		if p == pin {
			return k, nil
		}
	}
	return 0, fmt.Errorf("pwm pin %d: %w", pin, ErrUnknownPin)
}

// ConfigureHardwarePWM implements core.PWMDriver.
func (pl *Plant) ConfigureHardwarePWM(pin core.PWMPin, periodNs uint64) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	k, err := pl.phaseOf(pin)
	if err != nil {
		return err
	}
	pl.sync()
	// Center-aligned counting halves the top for a given period.
	pl.top = uint32(periodNs * sysClockMHz / 1000 / 2)
	if pl.top == 0 {
		return fmt.Errorf("pwm period %dns: %w", periodNs, ErrInvalidParams)
	}
	pl.configured[k] = true
	return nil
}

// SetDutyCycle implements core.PWMDriver.
func (pl *Plant) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	k, err := pl.phaseOf(pin)
	if err != nil {
		return err
	}
	if !pl.configured[k] {
		return fmt.Errorf("pwm pin %d: %w", pin, ErrNotConfigured)
	}
	pl.sync()
	if uint32(value) > pl.top {
		value = core.PWMValue(pl.top)
	}
	pl.compare[k] = uint32(value)
	return nil
}

// GetMaxValue implements core.PWMDriver.
func (pl *Plant) GetMaxValue() uint32 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.top
}

// DisablePWM implements core.PWMDriver.
func (pl *Plant) DisablePWM(pin core.PWMPin) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	k, err := pl.phaseOf(pin)
	if err != nil {
		return err
	}
	pl.sync()
	pl.configured[k] = false
	pl.compare[k] = 0
	return nil
}

// ConfigureOutput implements core.GPIODriver.
func (pl *Plant) ConfigureOutput(pin core.GPIOPin) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.levels[pin] = false
	return nil
}

// ConfigureInputPullUp implements core.GPIODriver.
func (pl *Plant) ConfigureInputPullUp(pin core.GPIOPin) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.levels[pin] = true
	return nil
}

// SetPin implements core.GPIODriver.
func (pl *Plant) SetPin(pin core.GPIOPin, value bool) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.sync()
	pl.levels[pin] = value
	return nil
}

// GetPin implements core.GPIODriver.
func (pl *Plant) GetPin(pin core.GPIOPin) (bool, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.levels[pin], nil
}

// Init implements core.ADCDriver.
func (pl *Plant) Init(cfg core.ADCConfig) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if cfg.Resolution != 0 {
		if cfg.Resolution > 16 {
			return fmt.Errorf("adc resolution %d: %w", cfg.Resolution, ErrInvalidParams)
		}
		pl.adcBits = cfg.Resolution
	}
	return nil
}

func (pl *Plant) channelPhase(ch core.ADCChannelID) (int, error) {
	for k, c := range pl.channels {
		if c == ch {
			return k, nil
		}
	}
	return 0, fmt.Errorf("adc channel %d: %w", ch, ErrUnknownPin)
}

// ConfigureChannel implements core.ADCDriver.
func (pl *Plant) ConfigureChannel(ch core.ADCChannelID) error {
	_, err := pl.channelPhase(ch)
	return err
}

// ReadRaw implements core.ADCDriver: the phase current through the shunt
// amplifier, quantized and left-aligned to 16 bits.
func (pl *Plant) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	k, err := pl.channelPhase(ch)
	if err != nil {
		return 0, err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.sync()

	var amps float64
	switch k {
	case 0:
		amps = pl.ia
	case 1:
		amps = -pl.ia/2 + sqrt3/2*pl.ib
	default:
		amps = -pl.ia/2 - sqrt3/2*pl.ib
	}
	mv := pl.p.BiasMillivolts[k] + amps*pl.p.ShuntMilliohms*pl.p.AmplifierGain
	full := float64(uint32(1) << pl.adcBits)
	code := math.Floor(mv / pl.p.VrefMillivolts * full)
	if code < 0 {
		code = 0
	} else if code > full-1 {
		code = full - 1
	}
	return core.ScaleTo16(uint32(code), pl.adcBits), nil
}

// Wait implements motor.Trigger. The lock-step runner calls the current
// task exactly once per PWM period, so a boundary is always due.
func (pl *Plant) Wait(ctx context.Context) (uint32, error) {
	return 0, ctx.Err()
}

// ZeroCode is the ADC code phase k reads with no current flowing.
func (pl *Plant) ZeroCode(k int) uint16 {
	full := float64(uint32(1) << pl.adcBits)
	code := math.Floor(pl.p.BiasMillivolts[k] / pl.p.VrefMillivolts * full)
	return uint16(core.ScaleTo16(uint32(code), pl.adcBits))
}
