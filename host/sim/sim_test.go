package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gofoc/angle"
	"gofoc/calibration"
	"gofoc/config"
	"gofoc/core"
	"gofoc/motor"
	"gofoc/sense"
)

func newPlant(t *testing.T, p Params) (*Plant, *core.ManualClock, *config.Board) {
	t.Helper()
	board := config.Default()
	inv, err := board.InverterConfig()
	if err != nil {
		t.Fatal(err)
	}
	cur, err := board.CurrentConfig()
	if err != nil {
		t.Fatal(err)
	}
	clock := core.NewManualClock(0)
	pl, err := NewPlant(p, clock, inv, cur)
	if err != nil {
		t.Fatal(err)
	}
	return pl, clock, board
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Params)
	}{
		{"zero resistance", func(p *Params) { p.ResistanceOhms = 0 }},
		{"no pole pairs", func(p *Params) { p.PolePairs = 0 }},
		{"sub-microsecond step", func(p *Params) { p.Substep = 500 * time.Nanosecond }},
		{"delay beyond history", func(p *Params) { p.SensorDelay = time.Second }},
		{"wide adc", func(p *Params) { p.ADCBits = 24 }},
	}
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	for _, tt := range tests {
		p := DefaultParams()
		tt.edit(&p)
		if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
}

func TestPlantPWM(t *testing.T) {
	pl, _, _ := newPlant(t, DefaultParams())

	if err := pl.ConfigureHardwarePWM(2, 40000); err != nil {
		t.Fatal(err)
	}
	if top := pl.GetMaxValue(); top != 2500 {
		t.Errorf("top %d, expected 2500 at 25kHz", top)
	}
	if err := pl.ConfigureHardwarePWM(3, 40000); !errors.Is(err, ErrUnknownPin) {
		t.Errorf("unwired pin gave %v", err)
	}
	if err := pl.SetDutyCycle(4, 100); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured phase gave %v", err)
	}
	if _, err := pl.ReadRaw(7); !errors.Is(err, ErrUnknownPin) {
		t.Errorf("unwired channel gave %v", err)
	}
}

func TestPlantSteadyCurrent(t *testing.T) {
	p := DefaultParams()
	p.Inertia = 1e3 // hold the rotor
	pl, clock, board := newPlant(t, p)

	for _, pin := range []core.PWMPin{2, 4, 6} {
		if err := pl.ConfigureHardwarePWM(pin, board.PeriodNs()); err != nil {
			t.Fatal(err)
		}
	}
	if err := pl.SetDutyCycle(2, core.PWMValue(pl.GetMaxValue())); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Millisecond)
	if st := pl.State(); st.Connected || st.Alpha != 0 {
		t.Errorf("current flowed with the gate driver disabled: %+v", st)
	}

	if err := pl.SetPin(8, true); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Millisecond)

	// Phase A at the bus, B and C at ground: 8V across the alpha axis.
	st := pl.State()
	if !st.Connected || math.Abs(st.Alpha-4) > 0.01 || math.Abs(st.Beta) > 0.01 {
		t.Errorf("state %+v, expected 4A on alpha", st)
	}

	conv, err := board.Conversion()
	if err != nil {
		t.Fatal(err)
	}
	curCfg, _ := board.CurrentConfig()
	reader, err := sense.NewADCCurrentReader(pl, curCfg, conv)
	if err != nil {
		t.Fatal(err)
	}
	reader.CalibrateCurrent(pl.ZeroCode(0), pl.ZeroCode(1), pl.ZeroCode(2))
	i, err := reader.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	near := func(got, want int) bool { return got-want <= 10 && want-got <= 10 }
	if !near(int(i.A), 4000) || !near(int(i.B), -2000) || !near(int(i.C), -2000) {
		t.Errorf("measured %+v, expected 4000/-2000/-2000 mA", i)
	}
}

func TestPlantEncoder(t *testing.T) {
	pl, clock, _ := newPlant(t, DefaultParams())

	code, err := pl.EncoderCode()
	if err != nil {
		t.Fatal(err)
	}
	// 0.3rad is raw 3129, plus the 6554 mounting offset, in 12 bits.
	if code != 605 {
		t.Errorf("code %d, expected 605", code)
	}
	clock.Advance(time.Millisecond)
	if again, _ := pl.EncoderCode(); again != code {
		t.Errorf("free rotor moved: %d", again)
	}
	if off := pl.ExpectedOffset(); off != 19658 {
		t.Errorf("expected offset %d", off)
	}
}

func newRunner(t *testing.T) *Runner {
	t.Helper()
	board := config.Default()
	r, err := NewRunner(board, FromBoard(board), nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func toIdle(t *testing.T, r *Runner) {
	t.Helper()
	idle := func() bool { return r.State().Kind == motor.KindIdle }
	if !r.RunUntil(idle, time.Second) {
		t.Fatalf("start-up stuck in %s", r.State())
	}
}

func calibrate(t *testing.T, r *Runner) {
	t.Helper()
	toIdle(t, r)
	r.Motor.PostCommand(motor.CalibrateShaft())
	if !r.RunUntil(func() bool { return r.State().IsCalibratingShaft() }, 10*time.Millisecond) {
		t.Fatalf("calibration did not start: %s", r.State())
	}
	if !r.RunUntil(func() bool { return r.State().Kind == motor.KindIdle }, 15*time.Second) {
		t.Fatalf("calibration did not finish: %s", r.State())
	}
}

func TestStartupFindsCurrentZeros(t *testing.T) {
	r := newRunner(t)
	toIdle(t, r)

	want := [3]uint16{r.Plant.ZeroCode(0), r.Plant.ZeroCode(1), r.Plant.ZeroCode(2)}
	if z := r.Motor.CurrentZeros(); z != want {
		t.Errorf("zeros %v, expected %v", z, want)
	}
	if z := r.Current.Conversion().Zeros(); z != want {
		t.Errorf("reader zeros %v, expected %v", z, want)
	}
	if st := r.Plant.State(); st.Connected {
		t.Errorf("inverter left on in idle")
	}
	if a, c := r.Errors(); a != 0 || c != 0 {
		t.Errorf("task errors: angle %d, current %d", a, c)
	}
}

func TestShaftCalibrationFindsPlant(t *testing.T) {
	r := newRunner(t)
	calibrate(t, r)

	if o := r.Motor.ShaftCalibrationOutcome(); o != calibration.OutcomeCommitted {
		t.Fatalf("outcome %s", o)
	}
	c := r.Motor.ShaftCalibration()
	if c.PolePairs != int16(r.Plant.Params().PolePairs) {
		t.Errorf("pole pairs %d", c.PolePairs)
	}
	if d := c.Offset.Diff(r.Plant.ExpectedOffset()); d > 400 || d < -400 {
		t.Errorf("offset %d, expected %d", c.Offset, r.Plant.ExpectedOffset())
	}
	if c.MeasurementDelay <= 0 {
		t.Errorf("measurement delay %v", c.MeasurementDelay)
	}
	t.Logf("calibration: %+v", r.Motor.ShaftCalibrationResult())
}

func TestClosedLoop(t *testing.T) {
	r := newRunner(t)
	calibrate(t, r)

	r.Motor.PostCommand(motor.SetTargetTorque(300))
	r.RunFor(20 * time.Millisecond)
	if !r.State().IsRunning() {
		t.Fatalf("state %s", r.State())
	}
	st := r.Plant.State()
	if st.Q < 0.24 || st.Q > 0.36 || math.Abs(st.D) > 0.1 {
		t.Errorf("torque target 300mA: d=%.3fA q=%.3fA", st.D, st.Q)
	}
	if st.Velocity <= 0 {
		t.Errorf("positive torque turned the rotor at %.2f rad/s", st.Velocity)
	}

	const target = angle.FullTurn
	r.Motor.PostCommand(motor.SetTargetVelocity(target))
	r.RunFor(2500 * time.Millisecond)
	var sum float64
	n := 0
	r.RunUntil(func() bool {
		sum += r.Plant.State().Velocity
		n++
		return false
	}, 500*time.Millisecond)
	mean := sum / float64(n) / (2 * math.Pi) * angle.FullTurn
	if mean < 0.9*target || mean > 1.1*target {
		t.Errorf("mean speed %.0f raw/s, expected %d", mean, target)
	}
	if out := r.Motor.Output(); out.Disabled {
		t.Errorf("outputs disabled while running")
	}
}

func TestRunnerReporter(t *testing.T) {
	r := newRunner(t)
	var calls int
	if err := r.AddReporter(motor.Reporter{Name: "count", Period: 10 * time.Millisecond, Report: func(core.Instant) { calls++ }}); err != nil {
		t.Fatal(err)
	}
	r.RunFor(100 * time.Millisecond)
	if calls < 10 || calls > 11 {
		t.Errorf("reporter ran %d times in 100ms", calls)
	}
	if err := r.AddReporter(motor.Reporter{Name: "broken"}); !errors.Is(err, motor.ErrInvalidTiming) {
		t.Errorf("reporter without a period gave %v", err)
	}
}
