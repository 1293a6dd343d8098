package motor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gofoc/core"
)

// Reporter is an extra periodic activity run on the control scheduler,
// such as telemetry.
type Reporter struct {
	Name   string
	Period time.Duration
	Report func(now core.Instant)
}

// System wires one motor to its sensors and inverter and runs every control
// activity: the angle and current tasks as goroutines, the state machine
// and FOC ticks as periodic scheduler timers.
type System struct {
	Motor   *Motor
	Angle   AngleReader
	Current CurrentReader
	Driver  Driver
	Trigger Trigger
	Config  Config
	Log     Logger

	// Scheduler is created from the motor clock when nil.
	Scheduler *core.Scheduler

	Reporters []Reporter
}

// Run blocks until ctx is done or a task fails for good, returning nil in
// the first case. The inverter is disabled on the way in and on the way out.
func (s *System) Run(ctx context.Context) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	log := orNop(s.Log)
	m := s.Motor
	clock := m.Clock()

	sm := NewStateMachine(m, s.Driver, s.Current, s.Config, log)
	foc, err := NewFOC(m, s.Driver, s.Config, log)
	if err != nil {
		return fmt.Errorf("control loops: %w", err)
	}

	if err := s.Driver.Disable(); err != nil {
		return fmt.Errorf("initial disable: %w", err)
	}
	defer func() {
		if err := s.Driver.Disable(); err != nil {
			log.Errorf("final disable: %v", err)
		}
	}()

	sched := s.Scheduler
	if sched == nil {
		sched = core.NewScheduler(clock)
	}
	now := clock.Now()
	t := s.Config.Timing
	sched.ScheduleTimer(core.NewPeriodicTimer("state", now, t.StateTickPeriod, func(now core.Instant) {
		sm.OnTick(now)
	}))
	sched.ScheduleTimer(core.NewPeriodicTimer("foc", now, t.FOCTickPeriod, foc.Tick))
	for _, r := range s.Reporters {
		if r.Period <= 0 || r.Report == nil {
			return fmt.Errorf("reporter %q: %w", r.Name, ErrInvalidTiming)
		}
		sched.ScheduleTimer(core.NewPeriodicTimer(r.Name, now, r.Period, r.Report))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("%s task: %w", name, err)
				cancel()
			}
		}()
	}
	start("angle", NewAngleTask(m, s.Angle, s.Driver, s.Config, log).Run)
	if s.Current != nil && s.Trigger != nil {
		start("current", NewCurrentTask(m, s.Current, s.Trigger, s.Config, log).Run)
	}

	log.Infof("motor control started")
	err = sched.Run(ctx)
	cancel()
	wg.Wait()
	close(errs)

	if taskErr, ok := <-errs; ok {
		return taskErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
