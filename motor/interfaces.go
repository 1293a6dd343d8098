package motor

import (
	"context"

	"gofoc/angle"
	"gofoc/fixed"
	"gofoc/transform"
)

// AngleReader reads the rotor position sensor.
type AngleReader interface {
	ReadAngle(ctx context.Context) (angle.Any, error)
}

// RawCurrent holds unconverted 16-bit ADC readings per phase.
type RawCurrent struct {
	A, B, C uint16
}

// Phase returns the reading for one phase.
func (r RawCurrent) Phase(p transform.Phase) uint16 {
	switch p {
	case transform.PhaseA:
		return r.A
	case transform.PhaseB:
		return r.B
	default:
		return r.C
	}
}

// CurrentReader samples the phase current sensors.
type CurrentReader interface {
	// Read returns calibrated phase currents.
	Read(ctx context.Context) (transform.PhaseCurrent, error)
	// ReadRaw returns the unconverted readings used for zero calibration.
	ReadRaw(ctx context.Context) (RawCurrent, error)
	// CalibrateCurrent sets the zero-current reading of each phase.
	CalibrateCurrent(zeroA, zeroB, zeroC uint16)
}

// Driver controls the three-phase inverter.
type Driver interface {
	// Enable turns on all three half bridges.
	Enable() error
	// Disable turns off every switch so the phases float.
	Disable() error
	// EnablePhase turns on a single half bridge, leaving the others off.
	EnablePhase(p transform.Phase) error
	// SetPhaseDuty sets the duty cycle of one phase.
	SetPhaseDuty(p transform.Phase, duty fixed.I16F16) error
	// SetDuties sets all three duty cycles at once.
	SetDuties(d transform.Duties) error
}

// Trigger blocks until the next PWM cycle boundary, the point at which
// phase currents are sampled. lateTicks reports how many boundaries passed
// since the one that woke the caller.
type Trigger interface {
	Wait(ctx context.Context) (lateTicks uint32, err error)
}

// Logger is the levelled printf logger the control tasks write to. Both
// *zap.SugaredLogger and *core.DebugLogger satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
