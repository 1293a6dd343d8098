package calibration

import (
	"gofoc/angle"
	"gofoc/fixed"
)

// Outcome reports how a shaft calibration run ended.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeCommitted
	// OutcomeOffsetOverflow means the fast-run offset was below the slow-run
	// offset, so the latency could not be derived without wrapping.
	OutcomeOffsetOverflow
	OutcomePolePairMismatch
	OutcomeInsufficientData
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCommitted:
		return "committed"
	case OutcomeOffsetOverflow:
		return "aborted: offset overflow"
	case OutcomePolePairMismatch:
		return "aborted: pole pair mismatch"
	case OutcomeInsufficientData:
		return "aborted: insufficient data"
	default:
		return "unknown"
	}
}

// Aborted reports whether the run left the previous constants untouched.
func (o Outcome) Aborted() bool {
	return o >= OutcomeOffsetOverflow
}

// LatencyResult is the combined result of the slow and fast runs.
type LatencyResult struct {
	PolePairs     int16
	Offset        angle.Electrical
	LatencyMicros int32
}

// Coherent reports whether the run has samples and its coherence reaches
// floor. A rotor that did not follow the field averages out to near zero.
func (e ShaftEstimate) Coherent(floor fixed.Q15) bool {
	return e.Samples > 0 && e.Coherence >= floor
}

// EstimateLatency compares the offsets found at two commanded speeds, in raw
// electrical units per millisecond. Sensor latency makes the apparent offset
// grow with speed: latency = delta / (fast - slow), and the true offset is
// the slow offset less the lag accumulated at the slow speed.
func EstimateLatency(slow, fast ShaftEstimate, slowSpeed, fastSpeed int32) (LatencyResult, Outcome) {
	if slow.Samples == 0 || fast.Samples == 0 || fastSpeed == slowSpeed {
		return LatencyResult{}, OutcomeInsufficientData
	}
	if slow.PolePairs != fast.PolePairs {
		return LatencyResult{}, OutcomePolePairMismatch
	}

	delta, ok := fast.Offset.CheckedSub(slow.Offset)
	if !ok {
		return LatencyResult{}, OutcomeOffsetOverflow
	}

	latency := int32(int64(delta) * 1000 / int64(fastSpeed-slowSpeed))
	lag := int64(latency) * int64(slowSpeed) / 1000
	return LatencyResult{
		PolePairs:     slow.PolePairs,
		Offset:        slow.Offset.Advance(int32(-lag)),
		LatencyMicros: latency,
	}, OutcomeCommitted
}
