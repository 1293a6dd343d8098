package motor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gofoc/angle"
	"gofoc/fixed"
	"gofoc/transform"
)

type fakeDriver struct {
	mu     sync.Mutex
	calls  []string
	duties transform.Duties
	nDuty  int
}

func (d *fakeDriver) record(s string) error {
	d.mu.Lock()
	d.calls = append(d.calls, s)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Enable() error  { return d.record("enable") }
func (d *fakeDriver) Disable() error { return d.record("disable") }

func (d *fakeDriver) EnablePhase(p transform.Phase) error {
	return d.record("enable " + p.String())
}

func (d *fakeDriver) SetPhaseDuty(p transform.Phase, duty fixed.I16F16) error {
	return d.record(fmt.Sprintf("duty %s %d", p, duty))
}

func (d *fakeDriver) SetDuties(v transform.Duties) error {
	d.mu.Lock()
	d.duties = v
	d.nDuty++
	d.mu.Unlock()
	return nil
}

// take returns and clears the recorded calls, excluding SetDuties.
func (d *fakeDriver) take() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.calls
	d.calls = nil
	return c
}

func (d *fakeDriver) dutyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nDuty
}

type fakeCurrent struct {
	mu       sync.Mutex
	raw      RawCurrent
	current  transform.PhaseCurrent
	failures int
	reads    int
	zeros    [3]uint16
	zeroSet  bool
}

func (c *fakeCurrent) Read(ctx context.Context) (transform.PhaseCurrent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.failures > 0 {
		c.failures--
		return transform.PhaseCurrent{}, fmt.Errorf("adc timeout")
	}
	return c.current, nil
}

func (c *fakeCurrent) ReadRaw(ctx context.Context) (RawCurrent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.raw, nil
}

func (c *fakeCurrent) CalibrateCurrent(a, b, cc uint16) {
	c.mu.Lock()
	c.zeros = [3]uint16{a, b, cc}
	c.zeroSet = true
	c.mu.Unlock()
}

func (c *fakeCurrent) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

type fakeAngle struct {
	mu       sync.Mutex
	next     func() angle.Any
	failures int
	calls    int
}

func (a *fakeAngle) ReadAngle(ctx context.Context) (angle.Any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failures > 0 {
		a.failures--
		return angle.Any{}, fmt.Errorf("i2c nack")
	}
	return a.next(), nil
}

type fakeTrigger struct {
	late uint32
	err  error
}

func (t *fakeTrigger) Wait(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.late, t.err
}

func observedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
