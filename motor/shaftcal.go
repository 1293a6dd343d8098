package motor

import (
	"time"

	"gofoc/angle"
	"gofoc/calibration"
	"gofoc/core"
	"gofoc/fixed"
	"gofoc/transform"
)

const rawPerTurn = 1 << 16

// sweepStep is the outcome of advancing the sweep for one shaft reading.
type sweepStep struct {
	commanded angle.Electrical
	stage     CalibrationStage
	// sample is set when the reading belongs to a measuring stage.
	sample bool
	// finished is the stage that just completed, valid when done is set.
	finished CalibrationStage
	done     bool
}

func (c ShaftCalibrationConfig) speed(s CalibrationStage) int32 {
	switch s {
	case StageWarmUp, StageMeasuringSlow:
		return c.SlowSpeed
	case StageMeasuringFast:
		return c.FastSpeed
	default:
		return 0
	}
}

func (c ShaftCalibrationConfig) length(s CalibrationStage) uint32 {
	if s == StageWarmUp {
		return c.WarmUpTurns * rawPerTurn
	}
	return c.MeasureTurns * rawPerTurn
}

// advanceSweep moves the commanded angle along the current stage. It is a
// no-op outside a shaft calibration.
func (m *Motor) advanceSweep(now core.Instant, cfg ShaftCalibrationConfig) (sweepStep, bool) {
	var step sweepStep
	_, ok := m.updateState(func(s *MotorState) bool {
		if !s.IsCalibratingShaft() {
			return false
		}
		cs := &s.Calibration
		if cs.Stage == StageReturn {
			step.commanded = cs.Commanded
			step.stage = cs.Stage
			return true
		}

		elapsed := int64(now) - int64(cs.StageStart)
		if elapsed < 0 {
			elapsed = 0
		}
		traveled := int64(cfg.speed(cs.Stage)) * elapsed / 1000
		if traveled > int64(cfg.length(cs.Stage)) {
			traveled = int64(cfg.length(cs.Stage))
		}
		cs.Commanded = cs.StageOrigin.Advance(int32(traveled))
		cs.Counter = uint32(traveled)

		step.commanded = cs.Commanded
		step.stage = cs.Stage
		step.sample = cs.Stage == StageMeasuringSlow || cs.Stage == StageMeasuringFast

		if cs.Counter >= cfg.length(cs.Stage) {
			step.finished = cs.Stage
			step.done = true
			cs.Stage++
			cs.StageStart = now
			cs.StageOrigin = cs.Commanded
			cs.Counter = 0
		}
		return true
	})
	return step, ok
}

// recordSweep feeds one measurement to the accumulator and closes the
// measuring stages.
func (m *Motor) recordSweep(step sweepStep, reading angle.Any) {
	m.calMu.Lock()
	defer m.calMu.Unlock()

	if step.sample {
		if mech, ok := reading.AsMechanical(); ok {
			m.cal.acc.Add(step.commanded, mech)
		}
	}
	if !step.done {
		return
	}
	switch step.finished {
	case StageMeasuringSlow:
		m.cal.slow = m.cal.acc.Finalize()
		m.cal.acc.Reset()
	case StageMeasuringFast:
		m.cal.fast = m.cal.acc.Finalize()
		m.cal.acc.Reset()
	}
}

func (m *Motor) startShaftCalibration() {
	m.calMu.Lock()
	m.cal.acc.Reset()
	m.cal.slow = calibration.ShaftEstimate{}
	m.cal.fast = calibration.ShaftEstimate{}
	m.cal.outcome = calibration.OutcomeNone
	m.cal.result = calibration.LatencyResult{}
	m.calMu.Unlock()
}

// finishShaftCalibration combines the slow and fast runs. Constants are
// only replaced when the run commits.
func (m *Motor) finishShaftCalibration(cfg ShaftCalibrationConfig, log Logger) calibration.Outcome {
	m.calMu.Lock()
	slow, fast := m.cal.slow, m.cal.fast
	var res calibration.LatencyResult
	outcome := calibration.OutcomeInsufficientData
	if slow.Coherent(cfg.MinCoherence) && fast.Coherent(cfg.MinCoherence) {
		res, outcome = calibration.EstimateLatency(slow, fast, cfg.SlowSpeed, cfg.FastSpeed)
	}
	m.cal.outcome = outcome
	m.cal.result = res
	m.calMu.Unlock()

	if outcome.Aborted() {
		log.Errorf("shaft calibration %s: slow pp=%d offset=%d coherence=%.3f, fast pp=%d offset=%d coherence=%.3f; keeping previous constants",
			outcome, slow.PolePairs, slow.Offset, slow.Coherence.Float(), fast.PolePairs, fast.Offset, fast.Coherence.Float())
		return outcome
	}

	m.SetShaftCalibration(ShaftCalibrationConstants{
		Offset:           res.Offset,
		PolePairs:        res.PolePairs,
		MeasurementDelay: time.Duration(res.LatencyMicros) * time.Microsecond,
	})
	log.Infof("shaft calibration committed: pp=%d offset=%d latency=%dus coherence=%.3f/%.3f",
		res.PolePairs, res.Offset, res.LatencyMicros, slow.Coherence.Float(), fast.Coherence.Float())
	return outcome
}

func (m *Motor) abortShaftCalibration(outcome calibration.Outcome, stage CalibrationStage, log Logger) {
	m.calMu.Lock()
	m.cal.outcome = outcome
	m.calMu.Unlock()
	log.Errorf("shaft calibration %s during %s; keeping previous constants", outcome, stage)
}

// ShaftCalibrationResult returns the latency estimate of the last run.
func (m *Motor) ShaftCalibrationResult() calibration.LatencyResult {
	m.calMu.Lock()
	defer m.calMu.Unlock()
	return m.cal.result
}

// fieldVector returns the unit-frame vector of length amp at theta.
func fieldVector(theta angle.Electrical, amp fixed.I16F16) (alpha, beta fixed.I16F16) {
	alpha = fixed.I16F16(int64(amp) * int64(theta.Cos()) >> 15)
	beta = fixed.I16F16(int64(amp) * int64(theta.Sin()) >> 15)
	return alpha, beta
}

// sweepDuties returns the duties that hold the field at theta.
func sweepDuties(theta angle.Electrical, amp fixed.I16F16) transform.Duties {
	return transform.SpaceVector(fieldVector(theta, amp))
}
