package motor

import (
	"time"

	"gofoc/calibration"
	"gofoc/core"
	"gofoc/transform"
)

// StateMachine advances the motor through its lifecycle. OnTick is the only
// place the state kind changes; the angle task only moves the calibration
// sweep forward within a state.
type StateMachine struct {
	m       *Motor
	driver  Driver
	current CurrentReader
	cfg     Config
	log     Logger
}

// NewStateMachine returns a state machine for m. current may be nil when the
// board has no current sensing, in which case zero calibration results are
// only logged.
func NewStateMachine(m *Motor, driver Driver, current CurrentReader, cfg Config, log Logger) *StateMachine {
	return &StateMachine{
		m:       m,
		driver:  driver,
		current: current,
		cfg:     cfg,
		log:     orNop(log),
	}
}

// nextState returns the time-driven successor of s, entered elapsed ago.
func nextState(s MotorState, elapsed time.Duration, t TimingConfig) (MotorState, bool) {
	switch s.Kind {
	case KindUninitialized:
		if elapsed >= t.UninitializedDelay {
			return Initializing(transform.PhaseA), true
		}
	case KindInitializing:
		if elapsed < t.PhaseZeroTime {
			return s, false
		}
		switch s.Phase {
		case transform.PhaseA:
			return Initializing(transform.PhaseB), true
		case transform.PhaseB:
			return Initializing(transform.PhaseC), true
		default:
			return Idle(), true
		}
	case KindIdle:
		// Idle only leaves on a command.
	case KindPowered:
		if s.Mode != ModeShaftCalibration {
			break
		}
		if s.Calibration.Stage == StageReturn {
			return Idle(), true
		}
		if t.CalibrationTimeout > 0 && elapsed >= t.CalibrationTimeout {
			return Idle(), true
		}
	}
	return s, false
}

// commandState returns the state a command leads to.
func commandState(cmd ControlCommand, now core.Instant) MotorState {
	if cmd.Kind == CmdCalibrateShaft {
		return PoweredCalibration(now)
	}
	return PoweredRunning(cmd.Target)
}

// transition holds the state lock only for the compare and swap.
func (sm *StateMachine) transition(now core.Instant) (prev, next MotorState, changed bool) {
	m := sm.m
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	prev = m.state
	next, changed = nextState(prev, now.Sub(m.stateAt), sm.cfg.Timing)
	if !changed && prev.AcceptsCommands() {
		if cmd, ok := m.command.take(); ok {
			next, changed = commandState(cmd, now), true
		}
	}
	if changed {
		m.state = next
		m.stateAt = now
	}
	return prev, next, changed
}

// OnTick runs one state machine step at now. It returns the state after the
// step and whether a transition happened. Entry side effects run once per
// transition, after the state lock is released.
func (sm *StateMachine) OnTick(now core.Instant) (MotorState, bool) {
	prev, next, changed := sm.transition(now)
	if !changed {
		return prev, false
	}

	sm.log.Debugf("state %s -> %s", prev, next)
	core.RecordTiming(core.EvtStateChange, uint32(now), uint32(next.Kind))

	sm.exit(prev, next)
	sm.enter(prev, next)
	return next, true
}

func (sm *StateMachine) exit(prev, next MotorState) {
	if !prev.IsCalibratingShaft() || next.IsCalibratingShaft() {
		return
	}
	if prev.Calibration.Stage == StageReturn {
		sm.m.finishShaftCalibration(sm.cfg.Calibration, sm.log)
		return
	}
	sm.m.abortShaftCalibration(calibration.OutcomeInsufficientData, prev.Calibration.Stage, sm.log)
}

func (sm *StateMachine) enter(prev, next MotorState) {
	switch next.Kind {
	case KindInitializing:
		if prev.Kind != KindInitializing {
			sm.m.resetZeroSamples()
		}
		sm.check("disable", sm.driver.Disable())
		sm.check("enable phase", sm.driver.EnablePhase(next.Phase))
		sm.check("zero phase duty", sm.driver.SetPhaseDuty(next.Phase, 0))

	case KindIdle:
		sm.check("disable", sm.driver.Disable())
		sm.m.setOutputsDisabled(true)
		if prev.Kind == KindInitializing {
			sm.applyCurrentZeros()
		}

	case KindPowered:
		if next.IsCalibratingShaft() {
			sm.m.startShaftCalibration()
		}
		// The sweep bypasses the FOC fail-safe, so it must not start on an
		// inverter the fail-safe switched off.
		if prev.Kind != KindPowered || (next.IsCalibratingShaft() && sm.m.Output().Disabled) {
			sm.check("enable", sm.driver.Enable())
			sm.m.setOutputsDisabled(false)
		}
	}
}

func (sm *StateMachine) applyCurrentZeros() {
	z := sm.m.finalizeZeroSamples()
	sm.log.Infof("current sensor zero: a=%d b=%d c=%d", z[0], z[1], z[2])
	if sm.current != nil {
		sm.current.CalibrateCurrent(z[0], z[1], z[2])
	}
}

func (sm *StateMachine) check(what string, err error) {
	if err != nil {
		sm.log.Errorf("driver %s: %v", what, err)
	}
}
