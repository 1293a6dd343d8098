package sim

import (
	"context"
	"fmt"
	"time"

	"gofoc/config"
	"gofoc/core"
	"gofoc/inverter"
	"gofoc/motor"
	"gofoc/sense"
)

// Runner executes the firmware against a plant in lock step. Every control
// activity is a periodic timer on one scheduler driven by a manual clock,
// so a run is deterministic and much faster than real time.
type Runner struct {
	Clock    *core.ManualClock
	Plant    *Plant
	Motor    *motor.Motor
	Inverter *inverter.Inverter
	Current  *sense.ADCCurrentReader
	Encoder  *sense.AS5600Reader
	Config   motor.Config

	sched *core.Scheduler
	step  time.Duration
	log   motor.Logger

	angleErrors   uint32
	currentErrors uint32
}

// NewRunner builds the inverter, current sense and encoder of board on top
// of a plant with the given parameters, then schedules the angle and
// current tasks, the state machine and the FOC tick.
func NewRunner(board *config.Board, params Params, log motor.Logger) (*Runner, error) {
	invCfg, err := board.InverterConfig()
	if err != nil {
		return nil, err
	}
	curCfg, err := board.CurrentConfig()
	if err != nil {
		return nil, err
	}
	conv, err := board.Conversion()
	if err != nil {
		return nil, err
	}
	cfg := board.MotorConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := core.NewManualClock(0)
	plant, err := NewPlant(params, clock, invCfg, curCfg)
	if err != nil {
		return nil, err
	}
	if err := plant.Init(core.ADCConfig{ReferenceMillivolts: board.CurrentSense.VrefMillivolts, Resolution: params.ADCBits}); err != nil {
		return nil, err
	}
	inv, err := inverter.New(plant, plant, invCfg)
	if err != nil {
		return nil, fmt.Errorf("inverter: %w", err)
	}
	cur, err := sense.NewADCCurrentReader(plant, curCfg, conv)
	if err != nil {
		return nil, fmt.Errorf("current sense: %w", err)
	}
	enc := sense.NewAS5600ReaderFrom(plant.EncoderCode)
	enc.Invert = board.Encoder.Invert

	r := &Runner{
		Clock:    clock,
		Plant:    plant,
		Motor:    motor.New(clock),
		Inverter: inv,
		Current:  cur,
		Encoder:  enc,
		Config:   cfg,
		sched:    core.NewScheduler(clock),
		step:     cfg.Timing.FOCTickPeriod,
		log:      log,
	}
	if r.log == nil {
		r.log = nopLogger{}
	}

	sm := motor.NewStateMachine(r.Motor, inv, cur, cfg, log)
	foc, err := motor.NewFOC(r.Motor, inv, cfg, log)
	if err != nil {
		return nil, err
	}
	currentTask := motor.NewCurrentTask(r.Motor, cur, plant, cfg, log)
	angleTask := motor.NewAngleTask(r.Motor, enc, inv, cfg, log)

	// Equal wake times run in insertion order: sample, then read the
	// shaft, then control.
	t := cfg.Timing
	r.every("current", t.FOCTickPeriod, func(core.Instant) {
		if err := currentTask.Step(context.Background()); err != nil {
			r.currentErrors++
			r.log.Warnf("%v", err)
		}
	})
	r.every("angle", t.AnglePeriod, func(core.Instant) {
		if err := angleTask.Step(context.Background()); err != nil {
			r.angleErrors++
			r.log.Warnf("%v", err)
		}
	})
	r.every("foc", t.FOCTickPeriod, foc.Tick)
	r.every("state", t.StateTickPeriod, func(now core.Instant) { sm.OnTick(now) })
	return r, nil
}

// AddReporter schedules rep after the control timers.
func (r *Runner) AddReporter(rep motor.Reporter) error {
	if rep.Period <= 0 || rep.Report == nil {
		return fmt.Errorf("reporter %q: %w", rep.Name, motor.ErrInvalidTiming)
	}
	r.every(rep.Name, rep.Period, rep.Report)
	return nil
}

func (r *Runner) every(name string, period time.Duration, fn func(core.Instant)) {
	r.sched.ScheduleTimer(core.NewPeriodicTimer(name, r.Clock.Now(), period, fn))
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Step advances the plant by one control period and runs every timer due.
func (r *Runner) Step() core.Instant {
	now := r.Clock.Advance(r.step)
	r.Plant.Advance(now)
	r.sched.TimerDispatch(now)
	return now
}

// RunFor steps for d of simulated time.
func (r *Runner) RunFor(d time.Duration) {
	end := r.Clock.Now().Add(d)
	for r.Clock.Now() < end {
		r.Step()
	}
}

// RunUntil steps until done returns true or limit of simulated time has
// passed, and reports which happened.
func (r *Runner) RunUntil(done func() bool, limit time.Duration) bool {
	end := r.Clock.Now().Add(limit)
	for r.Clock.Now() < end {
		r.Step()
		if done() {
			return true
		}
	}
	return false
}

// Run steps until ctx is done. With pace set it sleeps to keep simulated
// time in line with the wall clock.
func (r *Runner) Run(ctx context.Context, pace bool) error {
	start := time.Now()
	origin := r.Clock.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		now := r.Step()
		if !pace || now%1000 != 0 {
			continue
		}
		ahead := now.Sub(origin) - time.Since(start)
		if ahead > 0 {
			time.Sleep(ahead)
		}
	}
}

// Errors returns the failed angle and current task steps.
func (r *Runner) Errors() (angle, current uint32) {
	return r.angleErrors, r.currentErrors
}

// State returns the motor's current state.
func (r *Runner) State() motor.MotorState {
	return r.Motor.State().State
}
