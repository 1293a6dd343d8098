// Package inverter drives a three-phase half-bridge inverter through the
// PWM and GPIO hardware abstraction layers.
package inverter

import (
	"errors"
	"fmt"
	"sync"

	"gofoc/core"
	"gofoc/fixed"
	"gofoc/transform"
)

var (
	ErrMaxDutyBelowOffset = errors.New("inverter: max duty does not exceed the dead-time offset")
	ErrPhaseDisabled      = errors.New("inverter: phase is not enabled")
)

// Config describes the inverter wiring and PWM timing.
type Config struct {
	Pins [3]core.PWMPin
	// EnablePin gates the gate driver when HasEnable is set.
	EnablePin core.GPIOPin
	HasEnable bool

	PeriodNs uint64
	// MaxDuty is the largest on-time as a fraction of the period, leaving
	// room for the bootstrap capacitors to recharge.
	MaxDuty fixed.I16F16
	// DeadTimeNs is the gate driver dead time. It becomes a fixed compare
	// offset added to every duty.
	DeadTimeNs uint32
}

// Inverter implements motor.Driver.
type Inverter struct {
	mu   sync.Mutex
	pwm  core.PWMDriver
	gpio core.GPIODriver
	cfg  Config

	top      uint32
	maxCount uint32
	offset   uint32

	configured [3]bool
	active     [3]bool
	compare    [3]uint32
}

// New configures the three PWM outputs and leaves them disabled.
func New(pwm core.PWMDriver, gpio core.GPIODriver, cfg Config) (*Inverter, error) {
	inv := &Inverter{pwm: pwm, gpio: gpio, cfg: cfg}
	for p := range cfg.Pins {
		if err := inv.configure(transform.Phase(p)); err != nil {
			return nil, err
		}
	}
	inv.top = pwm.GetMaxValue()
	inv.maxCount = uint32((uint64(cfg.MaxDuty.Clamp(0, fixed.One))*uint64(inv.top) + uint64(fixed.Half)) >> fixed.FracBits16)
	if cfg.PeriodNs > 0 {
		inv.offset = uint32(uint64(cfg.DeadTimeNs) * uint64(inv.top) / cfg.PeriodNs)
	}
	if inv.maxCount <= inv.offset {
		return nil, fmt.Errorf("max duty %d counts, offset %d: %w", inv.maxCount, inv.offset, ErrMaxDutyBelowOffset)
	}
	if cfg.HasEnable {
		if gpio == nil {
			return nil, errors.New("inverter: enable pin set without a GPIO driver")
		}
		if err := gpio.ConfigureOutput(cfg.EnablePin); err != nil {
			return nil, fmt.Errorf("enable pin: %w", err)
		}
	}
	if err := inv.Disable(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv *Inverter) configure(p transform.Phase) error {
	if inv.configured[p] {
		return nil
	}
	if err := inv.pwm.ConfigureHardwarePWM(inv.cfg.Pins[p], inv.cfg.PeriodNs); err != nil {
		return fmt.Errorf("phase %s pwm: %w", p, err)
	}
	inv.configured[p] = true
	return nil
}

// Compare maps a duty in [0, 1] onto [offset, MaxDuty*top].
func (inv *Inverter) Compare(duty fixed.I16F16) uint32 {
	span := uint64(inv.maxCount - inv.offset)
	d := uint64(duty.Clamp(0, fixed.One))
	return inv.offset + uint32((d*span+uint64(fixed.Half))>>fixed.FracBits16)
}

func (inv *Inverter) setEnablePin(on bool) error {
	if !inv.cfg.HasEnable {
		return nil
	}
	return inv.gpio.SetPin(inv.cfg.EnablePin, on)
}

func (inv *Inverter) write(p transform.Phase, c uint32) error {
	inv.compare[p] = c
	return inv.pwm.SetDutyCycle(inv.cfg.Pins[p], core.PWMValue(c))
}

func (inv *Inverter) disablePhase(p transform.Phase) error {
	inv.active[p] = false
	inv.configured[p] = false
	return inv.pwm.DisablePWM(inv.cfg.Pins[p])
}

// Enable switches all three half bridges on at the zero vector.
func (inv *Inverter) Enable() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	mid := inv.Compare(fixed.Half)
	for i := range inv.active {
		p := transform.Phase(i)
		if err := inv.configure(p); err != nil {
			return err
		}
		if !inv.active[p] {
			if err := inv.write(p, mid); err != nil {
				return err
			}
			inv.active[p] = true
		}
	}
	return inv.setEnablePin(true)
}

// Disable lets every phase float.
func (inv *Inverter) Disable() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var first error
	if err := inv.setEnablePin(false); err != nil {
		first = err
	}
	for i := range inv.active {
		if err := inv.disablePhase(transform.Phase(i)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EnablePhase switches on one half bridge at zero duty and floats the
// other two.
func (inv *Inverter) EnablePhase(p transform.Phase) error {
	if p > transform.PhaseC {
		return fmt.Errorf("inverter: phase %d", p)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for i := range inv.active {
		if q := transform.Phase(i); q != p && (inv.active[q] || inv.configured[q]) {
			if err := inv.disablePhase(q); err != nil {
				return err
			}
		}
	}
	if err := inv.configure(p); err != nil {
		return err
	}
	if err := inv.write(p, inv.Compare(0)); err != nil {
		return err
	}
	inv.active[p] = true
	return inv.setEnablePin(true)
}

// SetPhaseDuty sets one enabled phase.
func (inv *Inverter) SetPhaseDuty(p transform.Phase, duty fixed.I16F16) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if p > transform.PhaseC || !inv.active[p] {
		return fmt.Errorf("phase %s: %w", p, ErrPhaseDisabled)
	}
	return inv.write(p, inv.Compare(duty))
}

// SetDuties updates every enabled phase. Disabled phases stay floating.
func (inv *Inverter) SetDuties(d transform.Duties) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	duties := [3]fixed.I16F16{d.A, d.B, d.C}
	for i, duty := range duties {
		p := transform.Phase(i)
		if !inv.active[p] {
			continue
		}
		if err := inv.write(p, inv.Compare(duty)); err != nil {
			return err
		}
	}
	return nil
}

// Compares returns the last compare values written, for telemetry.
func (inv *Inverter) Compares() [3]uint32 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.compare
}

// Top returns the PWM counter top.
func (inv *Inverter) Top() uint32 { return inv.top }
