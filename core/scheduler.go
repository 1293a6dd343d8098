package core

import (
	"context"
	"sync"
	"time"
)

// Timer represents a scheduled event
type Timer struct {
	Name     string
	WakeTime Instant
	Handler  func(*Timer) uint8
	Next     *Timer

	// Fired is the dispatch time of the current call, set before Handler runs.
	Fired Instant
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a cooperative executor over a list of timers sorted by wake
// time. The control ticks run as periodic timers; blocking sensor tasks run
// as goroutines beside it.
type Scheduler struct {
	mu        sync.Mutex
	timerList *Timer
	clock     Clock

	// MaxIdle bounds the sleep between dispatch passes in Run.
	MaxIdle time.Duration
}

// NewScheduler creates an empty scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:   clock,
		MaxIdle: time.Millisecond,
	}
}

// ScheduleTimer adds a timer to the schedule
func (s *Scheduler) ScheduleTimer(t *Timer) {
	s.mu.Lock()
	state := disableInterrupts()
	s.insertTimer(t)
	restoreInterrupts(state)
	s.mu.Unlock()
}

// RemoveTimer takes a timer off the schedule. It reports whether the timer
// was scheduled.
func (s *Scheduler) RemoveTimer(t *Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for p := &s.timerList; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// insertTimer inserts a timer in sorted order by WakeTime. Timers with equal
// wake times run in insertion order.
func (s *Scheduler) insertTimer(t *Timer) {
	if s.timerList == nil || t.WakeTime < s.timerList.WakeTime {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// popDue removes and returns the first timer due at now, or nil.
func (s *Scheduler) popDue(now Instant) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := disableInterrupts()
	defer restoreInterrupts(state)

	t := s.timerList
	if t == nil || t.WakeTime > now {
		return nil
	}
	s.timerList = t.Next
	t.Next = nil // Clear Next pointer to avoid circular references
	return t
}

// NextWake returns the wake time of the earliest timer.
func (s *Scheduler) NextWake() (Instant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerList == nil {
		return 0, false
	}
	return s.timerList.WakeTime, true
}

// TimerDispatch runs every timer due at now and returns how many ran.
// Handlers run without the scheduler lock held, so they may schedule timers.
func (s *Scheduler) TimerDispatch(now Instant) int {
	ran := 0
	for {
		t := s.popDue(now)
		if t == nil {
			return ran
		}
		t.Fired = now
		result := t.Handler(t)
		ran++

		// Reschedule if requested
		if result == SF_RESCHEDULE {
			s.ScheduleTimer(t)
		}
	}
}

// Run dispatches timers against the scheduler clock until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := s.clock.Now()
		s.TimerDispatch(now)

		sleep := s.MaxIdle
		if next, ok := s.NextWake(); ok {
			if d := next.Sub(s.clock.Now()); d < sleep {
				sleep = d
			}
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

// NewPeriodicTimer returns a timer that calls fn every period starting at
// start. When a call overruns past the next period the missed wakeups are
// dropped and recorded in the timing ring.
func NewPeriodicTimer(name string, start Instant, period time.Duration, fn func(now Instant)) *Timer {
	return &Timer{
		Name:     name,
		WakeTime: start,
		Handler: func(t *Timer) uint8 {
			fn(t.Fired)
			t.WakeTime = t.WakeTime.Add(period)
			if t.WakeTime <= t.Fired {
				RecordTiming(EvtTickOverrun, uint32(t.Fired), uint32(t.Fired.Sub(t.WakeTime)/time.Microsecond))
				t.WakeTime = t.Fired.Add(period)
			}
			return SF_RESCHEDULE
		},
	}
}
