package motor

import (
	"errors"
	"fmt"
	"time"

	"gofoc/angle"
	"gofoc/fixed"
	"gofoc/pi"
	"gofoc/transform"
)

var (
	ErrInvalidTiming      = errors.New("motor: invalid task timing")
	ErrInvalidCalibration = errors.New("motor: invalid shaft calibration settings")
)

// TimingConfig sets the state machine delays and task pacing.
type TimingConfig struct {
	// UninitializedDelay is the settle time after power-up.
	UninitializedDelay time.Duration
	// PhaseZeroTime is how long each phase is held for current zeroing.
	PhaseZeroTime time.Duration
	// CalibrationTimeout aborts a shaft calibration that stalls.
	CalibrationTimeout time.Duration

	StateTickPeriod time.Duration
	FOCTickPeriod   time.Duration
	AnglePeriod     time.Duration

	// RetryBackoff is the pause after a failed sensor read.
	RetryBackoff time.Duration
	// MaxTriggerLateTicks drops current samples taken too long after the
	// PWM boundary they belong to.
	MaxTriggerLateTicks uint32
	// StaleAfter is the freshness window for sensor data in the FOC tick.
	StaleAfter time.Duration
}

// ShaftCalibrationConfig describes the open-loop sweep.
type ShaftCalibrationConfig struct {
	// Amplitude is the field magnitude in the unit-vector frame.
	Amplitude fixed.I16F16
	// Speeds are in raw electrical units per millisecond.
	SlowSpeed int32
	FastSpeed int32

	WarmUpTurns  uint32
	MeasureTurns uint32

	// MinCoherence rejects runs where the rotor did not follow the field.
	MinCoherence fixed.Q15
}

// ControlConfig holds the closed-loop gains.
type ControlConfig struct {
	BusMillivolts int32

	Current  pi.Config[transform.Millivolts]
	Velocity pi.Config[transform.Milliamps]

	// PositionKp maps raw mechanical position error to velocity in raw
	// mechanical units per second.
	PositionKp  fixed.I16F16
	MaxVelocity angle.MechanicalVelocity
}

// Config is the complete motor control configuration.
type Config struct {
	Timing      TimingConfig
	Calibration ShaftCalibrationConfig
	Control     ControlConfig
}

// DefaultConfig returns settings for a small gimbal motor on a 12V bus.
func DefaultConfig() Config {
	return Config{
		Timing: TimingConfig{
			UninitializedDelay:  500 * time.Millisecond,
			PhaseZeroTime:       100 * time.Millisecond,
			CalibrationTimeout:  20 * time.Second,
			StateTickPeriod:     time.Millisecond,
			FOCTickPeriod:       100 * time.Microsecond,
			AnglePeriod:         100 * time.Microsecond,
			RetryBackoff:        10 * time.Millisecond,
			MaxTriggerLateTicks: 1,
			StaleAfter:          2 * time.Millisecond,
		},
		Calibration: ShaftCalibrationConfig{
			Amplitude:    fixed.FromFloat(0.15),
			SlowSpeed:    131,
			FastSpeed:    524,
			WarmUpTurns:  1,
			MeasureTurns: 7,
			MinCoherence: fixed.Q15FromFloat(0.25),
		},
		Control: ControlConfig{
			BusMillivolts: 12000,
			Current: pi.Config[transform.Millivolts]{
				Kp:            fixed.FromFloat(2),
				Ki:            fixed.FromFloat(0.2),
				IntegratorMin: -6000,
				IntegratorMax: 6000,
				OutputMin:     -6000,
				OutputMax:     6000,
			},
			Velocity: pi.Config[transform.Milliamps]{
				Kp:            fixed.FromFloat(0.01),
				Ki:            fixed.FromFloat(0.0005),
				IntegratorMin: -1000,
				IntegratorMax: 1000,
				OutputMin:     -1500,
				OutputMax:     1500,
			},
			PositionKp:  fixed.FromFloat(20),
			MaxVelocity: 6 * angle.FullTurn,
		},
	}
}

// Validate checks the settings that would otherwise fail at runtime.
func (c Config) Validate() error {
	t := c.Timing
	if t.StateTickPeriod <= 0 || t.FOCTickPeriod <= 0 || t.RetryBackoff <= 0 || t.StaleAfter <= 0 {
		return fmt.Errorf("tick periods, backoff and stale window must be positive: %w", ErrInvalidTiming)
	}
	cal := c.Calibration
	if cal.SlowSpeed <= 0 || cal.FastSpeed <= cal.SlowSpeed {
		return fmt.Errorf("speeds %d, %d: fast must exceed slow: %w", cal.SlowSpeed, cal.FastSpeed, ErrInvalidCalibration)
	}
	if cal.MeasureTurns == 0 {
		return fmt.Errorf("measure turns must be positive: %w", ErrInvalidCalibration)
	}
	if cal.MinCoherence < 0 {
		return fmt.Errorf("coherence floor %v is negative: %w", cal.MinCoherence.Float(), ErrInvalidCalibration)
	}
	if cal.Amplitude <= 0 || cal.Amplitude > transform.MaxModulation {
		return fmt.Errorf("amplitude %v outside linear range: %w", cal.Amplitude.Float(), ErrInvalidCalibration)
	}
	if _, err := pi.New[transform.Milliamps, transform.Millivolts](c.Control.Current); err != nil {
		return fmt.Errorf("current loop: %w", err)
	}
	if _, err := pi.New[angle.MechanicalVelocity, transform.Milliamps](c.Control.Velocity); err != nil {
		return fmt.Errorf("velocity loop: %w", err)
	}
	return nil
}
