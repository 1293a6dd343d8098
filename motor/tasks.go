package motor

import (
	"context"
	"fmt"
	"time"

	"gofoc/core"
)

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry logs a failed step and waits out the backoff. It only returns an
// error when ctx is done.
func retry(ctx context.Context, log Logger, clock core.Clock, backoff time.Duration, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warnf("%v; retrying in %v", err, backoff)
	core.RecordTiming(core.EvtSensorError, uint32(clock.Now()), uint32(backoff/time.Microsecond))
	return sleepCtx(ctx, backoff)
}

// AngleTask reads the shaft sensor and, while a shaft calibration runs,
// drives the field along the calibration sweep.
type AngleTask struct {
	m      *Motor
	reader AngleReader
	driver Driver
	cfg    Config
	log    Logger
}

// NewAngleTask returns a task that reads reader into m and drives the
// calibration sweep through driver.
func NewAngleTask(m *Motor, reader AngleReader, driver Driver, cfg Config, log Logger) *AngleTask {
	return &AngleTask{m: m, reader: reader, driver: driver, cfg: cfg, log: orNop(log)}
}

// Step performs one sensor read and processes it.
func (t *AngleTask) Step(ctx context.Context) error {
	reading, err := t.reader.ReadAngle(ctx)
	if err != nil {
		return fmt.Errorf("angle read: %w", err)
	}
	now := t.m.clock.Now()
	t.m.UpdateShaft(reading, now)

	step, calibrating := t.m.advanceSweep(now, t.cfg.Calibration)
	if !calibrating {
		return nil
	}
	t.m.recordSweep(step, reading)
	if step.done {
		t.log.Debugf("shaft calibration %s done at %d", step.finished, step.commanded)
	}

	d := sweepDuties(step.commanded, t.cfg.Calibration.Amplitude)
	if err := t.driver.SetDuties(d); err != nil {
		return fmt.Errorf("calibration duties: %w", err)
	}
	t.m.setOutput(OutputData{Duties: d})
	return nil
}

// Run steps until ctx is done. Sensor errors are logged and retried after
// the configured backoff.
func (t *AngleTask) Run(ctx context.Context) error {
	for {
		if err := t.Step(ctx); err != nil {
			if err := retry(ctx, t.log, t.m.clock, t.cfg.Timing.RetryBackoff, err); err != nil {
				return err
			}
			continue
		}
		if err := sleepCtx(ctx, t.cfg.Timing.AnglePeriod); err != nil {
			return err
		}
	}
}

// UpdateAngleTask runs the angle task until ctx is done.
func UpdateAngleTask(ctx context.Context, m *Motor, reader AngleReader, driver Driver, cfg Config, log Logger) error {
	return NewAngleTask(m, reader, driver, cfg, log).Run(ctx)
}

// CurrentTask samples the phase currents once per PWM cycle.
type CurrentTask struct {
	m       *Motor
	reader  CurrentReader
	trigger Trigger
	cfg     Config
	log     Logger
}

// NewCurrentTask returns a task that samples reader once per trigger.
func NewCurrentTask(m *Motor, reader CurrentReader, trigger Trigger, cfg Config, log Logger) *CurrentTask {
	return &CurrentTask{m: m, reader: reader, trigger: trigger, cfg: cfg, log: orNop(log)}
}

// Step waits for the next PWM boundary and takes one sample. Samples taken
// too long after their boundary are dropped.
func (t *CurrentTask) Step(ctx context.Context) error {
	late, err := t.trigger.Wait(ctx)
	if err != nil {
		return fmt.Errorf("pwm trigger: %w", err)
	}
	now := t.m.clock.Now()
	if late > t.cfg.Timing.MaxTriggerLateTicks {
		core.RecordTiming(core.EvtTriggerLate, uint32(now), late)
		return nil
	}

	st := t.m.State().State
	if st.Kind == KindInitializing {
		raw, err := t.reader.ReadRaw(ctx)
		if err != nil {
			return fmt.Errorf("raw current read: %w", err)
		}
		t.m.addZeroSample(st.Phase, raw.Phase(st.Phase))
		return nil
	}

	i, err := t.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("current read: %w", err)
	}
	t.m.SetCurrent(i, now)
	return nil
}

// Run steps until ctx is done, retrying after errors.
func (t *CurrentTask) Run(ctx context.Context) error {
	for {
		if err := t.Step(ctx); err != nil {
			if err := retry(ctx, t.log, t.m.clock, t.cfg.Timing.RetryBackoff, err); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// UpdateCurrentTask runs the current task until ctx is done.
func UpdateCurrentTask(ctx context.Context, m *Motor, reader CurrentReader, trigger Trigger, cfg Config, log Logger) error {
	return NewCurrentTask(m, reader, trigger, cfg, log).Run(ctx)
}
