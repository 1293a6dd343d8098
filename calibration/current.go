package calibration

import "gofoc/transform"

// DefaultZero is the assumed zero-current reading for a phase that was
// never sampled: the midpoint of the 16-bit ADC range.
const DefaultZero = 0xFFFF / 2

// CurrentAccumulator averages raw ADC readings per phase while the inverter
// holds each phase at zero output.
type CurrentAccumulator struct {
	sum   [3]uint64
	count [3]uint32
}

// Add records one raw reading for a phase.
func (a *CurrentAccumulator) Add(phase transform.Phase, raw uint16) {
	if phase > transform.PhaseC {
		return
	}
	a.sum[phase] += uint64(raw)
	a.count[phase]++
}

// Count returns the number of readings recorded for a phase.
func (a *CurrentAccumulator) Count(phase transform.Phase) uint32 {
	if phase > transform.PhaseC {
		return 0
	}
	return a.count[phase]
}

// Finalize returns the mean reading for each phase.
func (a *CurrentAccumulator) Finalize() [3]uint16 {
	var zeros [3]uint16
	for i := range zeros {
		if a.count[i] == 0 {
			zeros[i] = DefaultZero
			continue
		}
		zeros[i] = uint16(a.sum[i] / uint64(a.count[i]))
	}
	return zeros
}

// Reset discards all readings.
func (a *CurrentAccumulator) Reset() {
	*a = CurrentAccumulator{}
}
