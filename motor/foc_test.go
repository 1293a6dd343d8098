package motor

import (
	"errors"
	"math"
	"testing"

	"gofoc/angle"
	"gofoc/core"
	"gofoc/pi"
	"gofoc/transform"
)

// runningRig returns a rig whose motor is Powered(Running) with target.
func runningRig(t *testing.T, target ControlCommand) (*rig, *FOC) {
	t.Helper()
	r := newRig(t, nil)
	idleAt := r.toIdle(t)
	r.m.PostCommand(target)
	if st, _ := r.tickAt(idleAt + ms); !st.IsRunning() {
		t.Fatalf("state %s", st)
	}
	r.driver.take()

	foc, err := NewFOC(r.m, r.driver, r.cfg, nil)
	if err != nil {
		t.Fatalf("NewFOC: %v", err)
	}
	return r, foc
}

func (r *rig) feed(at core.Instant, e angle.Electrical, i transform.PhaseCurrent) {
	r.m.UpdateShaft(angle.ElectricalReading(e), at)
	r.m.SetCurrent(i, at)
}

func TestFOCVoltageTarget(t *testing.T) {
	r, foc := runningRig(t, SetTargetVoltage(transform.DQ{Q: 4000}))
	now := r.clock.Now()
	r.feed(now, 0, transform.PhaseCurrent{})
	foc.Tick(now)

	out := r.m.Output()
	if out.Voltage != (transform.DQ{Q: 4000}) {
		t.Fatalf("output voltage %+v", out.Voltage)
	}
	// 4V on a 12V bus is half of a unit vector, along beta at angle zero.
	da, db, dc := out.Duties.A.Float(), out.Duties.B.Float(), out.Duties.C.Float()
	alpha := da - (db+dc)/2
	beta := math.Sqrt(3) / 2 * (db - dc)
	if math.Abs(alpha) > 2e-3 || math.Abs(beta-0.5) > 2e-3 {
		t.Errorf("duties %+v give (%v, %v)", out.Duties, alpha, beta)
	}
}

func TestFOCTorqueLoop(t *testing.T) {
	r, foc := runningRig(t, SetTargetTorque(1000))
	now := r.clock.Now()
	r.feed(now, 0, transform.PhaseCurrent{})
	foc.Tick(now)

	// Kp 2 and one Ki step of 0.2 on a 1A error.
	v := r.m.Output().Voltage
	if v.D != 0 || v.Q < 2199 || v.Q > 2201 {
		t.Errorf("voltage %+v, expected q=2200", v)
	}
}

func TestFOCFailSafe(t *testing.T) {
	r, foc := runningRig(t, SetTargetTorque(500))
	now := r.clock.Now()
	r.feed(now, 0, transform.PhaseCurrent{})
	foc.Tick(now)
	if got := r.driver.take(); len(got) != 0 {
		t.Fatalf("fresh tick calls %q", got)
	}

	core.ClearTimingRing()
	stale := now.Add(r.cfg.Timing.StaleAfter) + 1
	for i := core.Instant(0); i < 5; i++ {
		foc.Tick(stale + i*100)
	}
	if got := r.driver.take(); !equalCalls(got, []string{"disable"}) {
		t.Errorf("stale ticks calls %q", got)
	}
	if !r.m.Output().Disabled {
		t.Errorf("output not marked disabled")
	}
	duties := r.driver.dutyCount()

	// Stale current alone is enough in a current-controlled mode.
	later := stale + 1000
	r.m.UpdateShaft(angle.ElectricalReading(0), later)
	foc.Tick(later)
	if r.driver.dutyCount() != duties {
		t.Errorf("duties written while current data is stale")
	}

	r.feed(later, 0, transform.PhaseCurrent{})
	foc.Tick(later)
	if got := r.driver.take(); !equalCalls(got, []string{"enable"}) {
		t.Errorf("resume calls %q", got)
	}
	if r.m.Output().Disabled || r.driver.dutyCount() != duties+1 {
		t.Errorf("output not resumed")
	}

	var stales, resumes int
	for _, e := range core.TimingEvents() {
		switch e.EventType {
		case core.EvtStaleData:
			stales++
		case core.EvtOutputsResume:
			resumes++
		}
	}
	if stales != 1 || resumes != 1 {
		t.Errorf("timing events: %d stale, %d resume", stales, resumes)
	}
}

func TestFOCInactiveOutsideRunning(t *testing.T) {
	r := newRig(t, nil)
	r.toIdle(t)
	foc, err := NewFOC(r.m, r.driver, r.cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	foc.Tick(r.clock.Now())
	if len(r.driver.take()) != 0 || r.driver.dutyCount() != 0 {
		t.Errorf("FOC acted while idle")
	}
}

func TestPositionVelocityLimited(t *testing.T) {
	_, foc := runningRig(t, SetTargetPosition(0))
	limit := foc.ctl.MaxVelocity

	cases := []struct {
		target, mech angle.Mechanical
		want         angle.MechanicalVelocity
	}{
		{0, 0, 0},
		{100, 0, 2000},
		{0, 100, -2000},
		{angle.HalfTurn - 1, 0, limit},
		{0, angle.HalfTurn - 1, -limit},
	}
	for _, c := range cases {
		if got := foc.positionVelocity(c.target, c.mech); got != c.want {
			t.Errorf("positionVelocity(%d, %d) = %d, expected %d", c.target, c.mech, got, c.want)
		}
	}
}

func TestNewFOCRejectsBadGains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Control.Current.OutputMin = 7000
	if _, err := NewFOC(New(core.NewManualClock(0)), &fakeDriver{}, cfg, nil); !errors.Is(err, pi.ErrInvalidLimits) {
		t.Errorf("NewFOC() = %v, expected %v", err, pi.ErrInvalidLimits)
	}
}
