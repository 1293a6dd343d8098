package core

import (
	"fmt"
	"sync"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timing-critical event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // Low word of the microsecond clock at the event
	Value     uint32 // Context-dependent value
}

// Event type codes
const (
	EvtTickOverrun   = 1 // Periodic timer overran its period; value = lateness us
	EvtTriggerLate   = 2 // Current sample dropped; value = trigger lateness ticks
	EvtStaleData     = 3 // FOC tick disabled outputs; value = data age us
	EvtOutputsResume = 4 // FOC tick re-enabled outputs
	EvtStateChange   = 5 // State machine transition; value = new state kind
	EvtSensorError   = 6 // Sensor read failed; value = task id
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

// Level orders log messages by severity.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelPrefix = [...]string{"[DEBUG] ", "[INFO] ", "[WARN] ", "[ERROR] "}

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug-level output is active
	debugEnabled bool = false

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingMu       sync.Mutex
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8       // Next write position
	timingCount    uint32      // Events recorded since boot
	timingEnabled  bool = true // Always capture timing events

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug-level output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Falls back to a direct write before InitAsyncDebug, and drops the
// message when the queue is full.
func DebugAsync(msg string) {
	if debugChan == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
		// Channel full, drop message (non-blocking)
	}
}

// DebugLogger is a levelled printf logger over the debug writer. The control
// tasks log through it on the MCU; host builds use zap instead.
type DebugLogger struct {
	Prefix string
	Min    Level
}

// NewDebugLogger returns a logger that drops messages below min.
func NewDebugLogger(prefix string, min Level) *DebugLogger {
	return &DebugLogger{Prefix: prefix, Min: min}
}

func (l *DebugLogger) logf(level Level, format string, args ...interface{}) {
	if level < l.Min || (level == LevelDebug && !debugEnabled) {
		return
	}
	DebugAsync(levelPrefix[level] + l.Prefix + fmt.Sprintf(format, args...))
}

func (l *DebugLogger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }
func (l *DebugLogger) Infof(format string, args ...interface{}) { l.logf(LevelInfo, format, args...) }
func (l *DebugLogger) Warnf(format string, args ...interface{}) { l.logf(LevelWarn, format, args...) }
func (l *DebugLogger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// RecordTiming captures a timing event in the ring buffer
// This is always non-blocking and very fast
func RecordTiming(eventType uint8, clock, value uint32) {
	if !timingEnabled {
		return
	}
	timingMu.Lock()
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Clock:     clock,
		Value:     value,
	}
	timingRingHead = (idx + 1) % TimingRingSize
	timingCount++
	timingMu.Unlock()
}

// TimingEvents returns the recorded events, oldest first.
func TimingEvents() []TimingEvent {
	timingMu.Lock()
	defer timingMu.Unlock()

	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// TimingEventsSince returns the events recorded after the first `from`
// events, oldest first, and the count to pass next time. Events that the
// ring has already overwritten are skipped.
func TimingEventsSince(from uint32) ([]TimingEvent, uint32) {
	timingMu.Lock()
	defer timingMu.Unlock()

	if from > timingCount {
		from = 0 // ring was cleared
	}
	if timingCount-from > TimingRingSize {
		from = timingCount - TimingRingSize
	}
	events := make([]TimingEvent, 0, timingCount-from)
	for i := from; i != timingCount; i++ {
		events = append(events, timingRing[i%TimingRingSize])
	}
	return events, timingCount
}

// TimingEventName returns the short name of an event type code.
func TimingEventName(t uint8) string {
	switch t {
	case EvtTickOverrun:
		return "TICK_OVERRUN"
	case EvtTriggerLate:
		return "TRIGGER_LATE"
	case EvtStaleData:
		return "STALE_DATA"
	case EvtOutputsResume:
		return "OUTPUTS_RESUME"
	case EvtStateChange:
		return "STATE_CHANGE"
	case EvtSensorError:
		return "SENSOR_ERROR"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + TimingEventName(evt.EventType) +
			" clock=" + utoa(evt.Clock) +
			" v=" + utoa(evt.Value))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	timingMu.Lock()
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
	timingCount = 0
	timingMu.Unlock()
}
