package core

import "time"

// Instant is a monotonic timestamp in microseconds since boot. The RP2040
// timer counts microseconds in 64 bits, so Instant never wraps in practice.
type Instant uint64

// Clock is the time source used by the control tasks.
type Clock interface {
	Now() Instant
}

// Add returns the instant d after i.
func (i Instant) Add(d time.Duration) Instant {
	return i + Instant(d.Microseconds())
}

// Sub returns the duration i - j, negative when j is later.
func (i Instant) Sub(j Instant) time.Duration {
	return time.Duration(int64(i)-int64(j)) * time.Microsecond
}

// After reports whether i is later than j.
func (i Instant) After(j Instant) bool {
	return i > j
}

// Micros returns the raw microsecond count.
func (i Instant) Micros() uint64 {
	return uint64(i)
}

// GetTime returns the current system time.
func GetTime() Instant {
	return Instant(getSystemMicros())
}

// SetTime sets the current system time. Targets call this from their
// hardware timer; host builds and tests may call it directly.
func SetTime(us uint64) {
	setSystemMicros(us)
}

// SystemClock reads the time maintained through SetTime.
type SystemClock struct{}

func (SystemClock) Now() Instant {
	return GetTime()
}

// WallClock measures time from its creation using the Go runtime clock.
// Host simulations use it in place of a hardware timer.
type WallClock struct {
	start time.Time
}

// NewWallClock starts a clock at zero.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

func (c *WallClock) Now() Instant {
	return Instant(time.Since(c.start).Microseconds())
}

// ManualClock only advances when told to.
type ManualClock struct {
	now uint64
}

// NewManualClock starts a clock at the given instant.
func NewManualClock(start Instant) *ManualClock {
	c := &ManualClock{}
	c.Set(start)
	return c
}

func (c *ManualClock) Now() Instant {
	return Instant(loadUint64(&c.now))
}

// Set moves the clock to an absolute instant.
func (c *ManualClock) Set(t Instant) {
	storeUint64(&c.now, uint64(t))
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) Instant {
	t := c.Now().Add(d)
	c.Set(t)
	return t
}
