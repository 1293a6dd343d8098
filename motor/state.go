package motor

import (
	"fmt"

	"gofoc/angle"
	"gofoc/core"
	"gofoc/transform"
)

// Kind is the top-level lifecycle state.
type Kind uint8

const (
	KindUninitialized Kind = iota
	KindInitializing
	KindIdle
	KindPowered
)

func (k Kind) String() string {
	switch k {
	case KindUninitialized:
		return "uninitialized"
	case KindInitializing:
		return "initializing"
	case KindIdle:
		return "idle"
	case KindPowered:
		return "powered"
	default:
		return "unknown"
	}
}

// PoweredMode selects what the inverter is doing while powered.
type PoweredMode uint8

const (
	ModeShaftCalibration PoweredMode = iota
	ModeRunning
)

// CalibrationStage is a step of the shaft calibration procedure.
type CalibrationStage uint8

const (
	StageWarmUp CalibrationStage = iota
	StageMeasuringSlow
	StageMeasuringFast
	StageReturn
)

func (s CalibrationStage) String() string {
	switch s {
	case StageWarmUp:
		return "warm-up"
	case StageMeasuringSlow:
		return "measuring-slow"
	case StageMeasuringFast:
		return "measuring-fast"
	case StageReturn:
		return "return"
	default:
		return "unknown"
	}
}

// ShaftCalibrationState tracks the open-loop sweep.
type ShaftCalibrationState struct {
	Stage CalibrationStage
	// Commanded is the electrical angle the field is currently driven to.
	Commanded angle.Electrical
	// Counter is the electrical distance travelled in this stage, raw units.
	Counter uint32

	StageStart  core.Instant
	StageOrigin angle.Electrical
}

// TargetKind selects the closed-loop controlled quantity.
type TargetKind uint8

const (
	TargetZero TargetKind = iota
	TargetVoltage
	TargetTorque
	TargetVelocity
	TargetPosition
)

func (k TargetKind) String() string {
	switch k {
	case TargetZero:
		return "zero"
	case TargetVoltage:
		return "voltage"
	case TargetTorque:
		return "torque"
	case TargetVelocity:
		return "velocity"
	case TargetPosition:
		return "position"
	default:
		return "unknown"
	}
}

// Target is a closed-loop setpoint. Only the field named by Kind is used.
type Target struct {
	Kind     TargetKind
	Voltage  transform.DQ
	Torque   transform.Milliamps
	Velocity angle.MechanicalVelocity
	Position angle.Mechanical
}

// MotorState is the full state machine state.
type MotorState struct {
	Kind Kind
	// Phase is the phase being zeroed while Initializing.
	Phase       transform.Phase
	Mode        PoweredMode
	Calibration ShaftCalibrationState
	Target      Target
}

// Uninitialized is the state at reset.
func Uninitialized() MotorState { return MotorState{Kind: KindUninitialized} }

// Initializing zeroes the current sensor on phase p.
func Initializing(p transform.Phase) MotorState {
	return MotorState{Kind: KindInitializing, Phase: p}
}

// Idle waits for a command with the inverter off.
func Idle() MotorState { return MotorState{Kind: KindIdle} }

// PoweredCalibration starts a shaft calibration sweep at now.
func PoweredCalibration(now core.Instant) MotorState {
	return MotorState{
		Kind: KindPowered,
		Mode: ModeShaftCalibration,
		Calibration: ShaftCalibrationState{
			Stage:      StageWarmUp,
			StageStart: now,
		},
	}
}

// PoweredRunning closes the loops around t.
func PoweredRunning(t Target) MotorState {
	return MotorState{Kind: KindPowered, Mode: ModeRunning, Target: t}
}

// IsCalibratingShaft reports whether the shaft sweep is in progress.
func (s MotorState) IsCalibratingShaft() bool {
	return s.Kind == KindPowered && s.Mode == ModeShaftCalibration
}

// IsRunning reports whether closed-loop control is active.
func (s MotorState) IsRunning() bool {
	return s.Kind == KindPowered && s.Mode == ModeRunning
}

// AcceptsCommands reports whether the mailbox is consumed in this state.
func (s MotorState) AcceptsCommands() bool {
	return s.Kind == KindIdle || s.IsRunning()
}

func (s MotorState) String() string {
	switch s.Kind {
	case KindInitializing:
		return fmt.Sprintf("initializing(phase %s)", s.Phase)
	case KindPowered:
		if s.Mode == ModeShaftCalibration {
			return fmt.Sprintf("powered(shaft calibration %s)", s.Calibration.Stage)
		}
		return fmt.Sprintf("powered(running %s)", s.Target.Kind)
	default:
		return s.Kind.String()
	}
}

// StateSnapshot is the state together with the time it was entered.
type StateSnapshot struct {
	State MotorState
	SetAt core.Instant
}
