// Package motor holds the shared state of one BLDC motor and the tasks that
// drive it: the angle and current sampling tasks, the state machine tick and
// the field-oriented control tick.
package motor

import (
	"sync"
	"time"

	"gofoc/angle"
	"gofoc/calibration"
	"gofoc/core"
	"gofoc/transform"
)

// ShaftCalibrationConstants map a shaft sensor reading to the rotor's
// electrical angle.
type ShaftCalibrationConstants struct {
	Offset    angle.Electrical
	PolePairs int16
	// MeasurementDelay is the sensor latency compensated by extrapolating
	// along the measured velocity.
	MeasurementDelay time.Duration
}

// DefaultShaftCalibration is used until a calibration run commits.
func DefaultShaftCalibration() ShaftCalibrationConstants {
	return ShaftCalibrationConstants{PolePairs: 1}
}

// Electrical converts a shaft angle, predicting forward by velocity over the
// measurement delay.
func (c ShaftCalibrationConstants) Electrical(mech angle.Mechanical, v angle.ElectricalVelocity) angle.Electrical {
	e := angle.FromMechanical(mech, 0, c.PolePairs).OverflowingAdd(c.Offset)
	return e.Advance(v.Displacement(c.MeasurementDelay))
}

// ShaftData is the latest processed rotor position.
type ShaftData struct {
	Angle       angle.Any
	Electrical  angle.Electrical
	MeasureTime core.Instant
	Calibration ShaftCalibrationConstants

	FilteredVelocity   angle.ElectricalVelocity
	MechanicalVelocity angle.MechanicalVelocity
	Valid              bool
}

// CurrentData is the latest phase current sample.
type CurrentData struct {
	Current     transform.PhaseCurrent
	MeasureTime core.Instant
	Valid       bool
}

// OutputData is the last command written to the inverter.
type OutputData struct {
	Voltage  transform.DQ
	Duties   transform.Duties
	Disabled bool
}

// shaftCalibrationRun collects the measurements of a sweep.
type shaftCalibrationRun struct {
	acc     *calibration.ShaftAccumulator
	slow    calibration.ShaftEstimate
	fast    calibration.ShaftEstimate
	outcome calibration.Outcome
	result  calibration.LatencyResult
}

// Motor is the state shared between the control tasks. Each field has its
// own lock so that a slow reader of one field never delays a writer of
// another. No lock is held while calling out to hardware.
type Motor struct {
	clock core.Clock

	currentMu sync.Mutex
	current   CurrentData

	shaftMu     sync.Mutex
	shaft       ShaftData
	lastMech    angle.Mechanical
	lastElec    angle.Electrical
	velocityLPF angle.LowPass

	stateMu sync.Mutex
	state   MotorState
	stateAt core.Instant

	command *mailbox

	zeroMu   sync.Mutex
	zeroAcc  calibration.CurrentAccumulator
	zeroLast [3]uint16

	calMu sync.Mutex
	cal   shaftCalibrationRun

	outputMu sync.Mutex
	output   OutputData
}

// New returns a motor in the Uninitialized state, entered at the current
// clock time.
func New(clock core.Clock) *Motor {
	m := &Motor{
		clock:   clock,
		state:   Uninitialized(),
		stateAt: clock.Now(),
		command: newMailbox(),
	}
	m.shaft.Calibration = DefaultShaftCalibration()
	m.cal.acc = calibration.NewShaftAccumulator()
	m.zeroLast = [3]uint16{calibration.DefaultZero, calibration.DefaultZero, calibration.DefaultZero}
	return m
}

// Clock returns the motor's time source.
func (m *Motor) Clock() core.Clock { return m.clock }

// Current returns the latest current sample.
func (m *Motor) Current() CurrentData {
	m.currentMu.Lock()
	defer m.currentMu.Unlock()
	return m.current
}

// SetCurrent stores a current sample.
func (m *Motor) SetCurrent(i transform.PhaseCurrent, at core.Instant) {
	m.currentMu.Lock()
	m.current = CurrentData{Current: i, MeasureTime: at, Valid: true}
	m.currentMu.Unlock()
}

// Shaft returns the latest rotor position.
func (m *Motor) Shaft() ShaftData {
	m.shaftMu.Lock()
	defer m.shaftMu.Unlock()
	return m.shaft
}

// ShaftCalibration returns the active calibration constants.
func (m *Motor) ShaftCalibration() ShaftCalibrationConstants {
	m.shaftMu.Lock()
	defer m.shaftMu.Unlock()
	return m.shaft.Calibration
}

// SetShaftCalibration replaces the calibration constants.
func (m *Motor) SetShaftCalibration(c ShaftCalibrationConstants) {
	m.shaftMu.Lock()
	m.shaft.Calibration = c
	m.shaftMu.Unlock()
}

// UpdateShaft processes a sensor reading taken at the given time and
// returns the updated rotor position.
func (m *Motor) UpdateShaft(reading angle.Any, at core.Instant) ShaftData {
	m.shaftMu.Lock()
	defer m.shaftMu.Unlock()

	s := &m.shaft
	elapsed := int64(at) - int64(s.MeasureTime)
	c := s.Calibration

	if mech, ok := reading.AsMechanical(); ok {
		if s.Valid {
			mv := angle.VelocityFromDelta(int32(mech.Diff(m.lastMech)), elapsed)
			s.MechanicalVelocity = angle.MechanicalVelocity(m.velocityLPF.Update(mv))
			s.FilteredVelocity = s.MechanicalVelocity.ToElectrical(c.PolePairs)
		}
		m.lastMech = mech
		s.Electrical = c.Electrical(mech, s.FilteredVelocity)
	} else {
		e, _ := reading.AsElectrical()
		if s.Valid {
			ev := angle.VelocityFromDelta(int32(e.Diff(m.lastElec)), elapsed)
			s.FilteredVelocity = angle.ElectricalVelocity(m.velocityLPF.Update(ev))
			s.MechanicalVelocity = s.FilteredVelocity.ToMechanical(c.PolePairs)
		}
		m.lastElec = e
		s.Electrical = e.OverflowingAdd(c.Offset).Advance(s.FilteredVelocity.Displacement(c.MeasurementDelay))
	}

	s.Angle = reading
	s.MeasureTime = at
	s.Valid = true
	return *s
}

// State returns the current state and when it was entered.
func (m *Motor) State() StateSnapshot {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return StateSnapshot{State: m.state, SetAt: m.stateAt}
}

// updateState runs fn on the state under the state lock. fn returns true
// when it changed the state in place without a transition.
func (m *Motor) updateState(fn func(s *MotorState) bool) (MotorState, bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	changed := fn(&m.state)
	return m.state, changed
}

// PostCommand places cmd in the mailbox, replacing any unconsumed command.
// It reports whether a pending command was replaced.
func (m *Motor) PostCommand(cmd ControlCommand) bool {
	return m.command.post(cmd)
}

// TakeCommand removes and returns the pending command.
func (m *Motor) TakeCommand() (ControlCommand, bool) {
	return m.command.take()
}

// PeekCommand returns the pending command without consuming it.
func (m *Motor) PeekCommand() (ControlCommand, bool) {
	return m.command.peek()
}

// CommandPosted is signalled after each PostCommand.
func (m *Motor) CommandPosted() <-chan struct{} {
	return m.command.notify
}

func (m *Motor) addZeroSample(p transform.Phase, raw uint16) {
	m.zeroMu.Lock()
	m.zeroAcc.Add(p, raw)
	m.zeroMu.Unlock()
}

func (m *Motor) resetZeroSamples() {
	m.zeroMu.Lock()
	m.zeroAcc.Reset()
	m.zeroMu.Unlock()
}

func (m *Motor) finalizeZeroSamples() [3]uint16 {
	m.zeroMu.Lock()
	defer m.zeroMu.Unlock()
	m.zeroLast = m.zeroAcc.Finalize()
	return m.zeroLast
}

// CurrentZeros returns the zero readings found by the last current sensor
// calibration.
func (m *Motor) CurrentZeros() [3]uint16 {
	m.zeroMu.Lock()
	defer m.zeroMu.Unlock()
	return m.zeroLast
}

// ShaftCalibrationOutcome reports how the last shaft calibration ended.
func (m *Motor) ShaftCalibrationOutcome() calibration.Outcome {
	m.calMu.Lock()
	defer m.calMu.Unlock()
	return m.cal.outcome
}

func (m *Motor) setOutput(o OutputData) {
	m.outputMu.Lock()
	m.output = o
	m.outputMu.Unlock()
}

func (m *Motor) setOutputsDisabled(disabled bool) {
	m.outputMu.Lock()
	m.output.Disabled = disabled
	m.outputMu.Unlock()
}

// Output returns the last inverter command.
func (m *Motor) Output() OutputData {
	m.outputMu.Lock()
	defer m.outputMu.Unlock()
	return m.output
}

// MotorSnapshot is a copy of every field, each read under its own lock.
// Fields are individually consistent but may come from different instants.
type MotorSnapshot struct {
	Time               core.Instant
	State              StateSnapshot
	Current            CurrentData
	Shaft              ShaftData
	Output             OutputData
	CalibrationOutcome calibration.Outcome
	CurrentZeros       [3]uint16
	PendingCommand     bool
}

// Snapshot copies the motor state for reporting.
func (m *Motor) Snapshot() MotorSnapshot {
	_, pending := m.command.peek()
	return MotorSnapshot{
		Time:               m.clock.Now(),
		State:              m.State(),
		Current:            m.Current(),
		Shaft:              m.Shaft(),
		Output:             m.Output(),
		CalibrationOutcome: m.ShaftCalibrationOutcome(),
		CurrentZeros:       m.CurrentZeros(),
		PendingCommand:     pending,
	}
}
