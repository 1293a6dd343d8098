package motor

import (
	"time"

	"gofoc/angle"
	"gofoc/core"
	"gofoc/pi"
	"gofoc/transform"
)

// FOC is the closed-loop control tick. It only acts while the motor is
// Powered(Running) and owns the PI controller state.
type FOC struct {
	m      *Motor
	driver Driver
	ctl    ControlConfig
	stale  time.Duration
	log    Logger

	id, iq *pi.Controller[transform.Milliamps, transform.Millivolts]
	vel    *pi.Controller[angle.MechanicalVelocity, transform.Milliamps]

	active   bool
	setAt    core.Instant
	disabled bool
}

// NewFOC builds the control loops from cfg.
func NewFOC(m *Motor, driver Driver, cfg Config, log Logger) (*FOC, error) {
	id, err := pi.New[transform.Milliamps, transform.Millivolts](cfg.Control.Current)
	if err != nil {
		return nil, err
	}
	iq, err := pi.New[transform.Milliamps, transform.Millivolts](cfg.Control.Current)
	if err != nil {
		return nil, err
	}
	vel, err := pi.New[angle.MechanicalVelocity, transform.Milliamps](cfg.Control.Velocity)
	if err != nil {
		return nil, err
	}
	return &FOC{
		m:      m,
		driver: driver,
		ctl:    cfg.Control,
		stale:  cfg.Timing.StaleAfter,
		log:    orNop(log),
		id:     id,
		iq:     iq,
		vel:    vel,
	}, nil
}

func (f *FOC) reset() {
	f.id.Reset()
	f.iq.Reset()
	f.vel.Reset()
}

func (f *FOC) fresh(valid bool, at, now core.Instant) bool {
	return valid && now.Sub(at) <= f.stale
}

// needsCurrent reports whether the target closes a current loop.
func needsCurrent(k TargetKind) bool {
	return k != TargetVoltage
}

// Tick runs one control period at now.
func (f *FOC) Tick(now core.Instant) {
	snap := f.m.State()
	if !snap.State.IsRunning() {
		f.active = false
		f.disabled = false
		return
	}
	if !f.active || snap.SetAt != f.setAt {
		f.reset()
		f.active = true
		f.setAt = snap.SetAt
	}
	target := snap.State.Target

	shaft := f.m.Shaft()
	cur := f.m.Current()
	ok := f.fresh(shaft.Valid, shaft.MeasureTime, now)
	if needsCurrent(target.Kind) {
		ok = ok && f.fresh(cur.Valid, cur.MeasureTime, now)
	}
	if !ok {
		f.failSafe(now)
		return
	}
	if f.disabled {
		f.resume(now)
	}

	var v transform.DQ
	if target.Kind == TargetVoltage {
		v = target.Voltage
	} else {
		v = f.currentLoop(f.currentTarget(target, shaft), cur.Current, shaft.Electrical)
	}
	f.output(v, shaft.Electrical)
}

// currentTarget returns the q-axis current demanded by the outer loops.
func (f *FOC) currentTarget(t Target, shaft ShaftData) transform.Milliamps {
	switch t.Kind {
	case TargetTorque:
		return t.Torque
	case TargetVelocity:
		return f.vel.Step(t.Velocity - shaft.MechanicalVelocity)
	case TargetPosition:
		mech, ok := shaft.Angle.AsMechanical()
		if !ok {
			return f.vel.Step(-shaft.MechanicalVelocity)
		}
		return f.vel.Step(f.positionVelocity(t.Position, mech) - shaft.MechanicalVelocity)
	default:
		return 0
	}
}

// positionVelocity is the proportional position loop, limited to the
// configured maximum speed. The error takes the shorter way around.
func (f *FOC) positionVelocity(target, mech angle.Mechanical) angle.MechanicalVelocity {
	v := f.ctl.PositionKp.MulInt(int64(target.Diff(mech)))
	limit := int64(f.ctl.MaxVelocity)
	if v > limit {
		v = limit
	} else if v < -limit {
		v = -limit
	}
	return angle.MechanicalVelocity(v)
}

func (f *FOC) currentLoop(iq transform.Milliamps, i transform.PhaseCurrent, theta angle.Electrical) transform.DQ {
	meas := transform.Park(transform.Clarke(i), theta)
	vd := f.id.Step(currentError(0, meas.D))
	vq := f.iq.Step(currentError(int32(iq), meas.Q))
	return transform.DQ{D: int16(vd), Q: int16(vq)}
}

func currentError(target int32, measured int16) transform.Milliamps {
	e := target - int32(measured)
	if e > 32767 {
		e = 32767
	} else if e < -32768 {
		e = -32768
	}
	return transform.Milliamps(e)
}

func (f *FOC) output(v transform.DQ, theta angle.Electrical) {
	alpha, beta := transform.Normalize(transform.InversePark(v, theta), f.ctl.BusMillivolts)
	d := transform.SpaceVector(alpha, beta)
	if err := f.driver.SetDuties(d); err != nil {
		f.log.Errorf("set duties: %v", err)
		return
	}
	f.m.setOutput(OutputData{Voltage: v, Duties: d})
}

// failSafe disables the inverter once when sensor data goes stale.
func (f *FOC) failSafe(now core.Instant) {
	if f.disabled {
		return
	}
	f.disabled = true
	if err := f.driver.Disable(); err != nil {
		f.log.Errorf("disable on stale data: %v", err)
	}
	f.m.setOutputsDisabled(true)
	core.RecordTiming(core.EvtStaleData, uint32(now), 0)
	f.log.Warnf("sensor data stale, outputs disabled")
}

func (f *FOC) resume(now core.Instant) {
	f.disabled = false
	f.reset()
	if err := f.driver.Enable(); err != nil {
		f.log.Errorf("enable after stale data: %v", err)
	}
	f.m.setOutputsDisabled(false)
	core.RecordTiming(core.EvtOutputsResume, uint32(now), 0)
	f.log.Infof("sensor data fresh, outputs resumed")
}
