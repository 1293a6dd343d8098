// Package calibration accumulates the measurements taken while the motor is
// driven open loop, and reduces them to sensor calibration constants.
package calibration

import (
	"gofoc/angle"
	"gofoc/fixed"
)

// MaxPolePairs bounds the pole pair hypotheses tested in each direction.
const MaxPolePairs = 16

const hypotheses = 2 * MaxPolePairs

// ShaftEstimate is the result of one accumulation run.
type ShaftEstimate struct {
	PolePairs int16
	// Offset is the electrical angle to add to FromMechanical(mech, 0, PolePairs).
	Offset angle.Electrical
	// Coherence is the length of the averaged error vector. A noise-free run
	// gives one.
	Coherence fixed.Q15
	Samples   uint32
}

type hypothesis struct {
	polePairs int16
	sin, cos  int64
}

// ShaftAccumulator tests every pole pair count in ±1..±MaxPolePairs against
// pairs of (commanded electrical angle, measured shaft angle). For the right
// count the difference between the two is constant, so its unit vectors add
// coherently.
type ShaftAccumulator struct {
	h     [hypotheses]hypothesis
	count uint32
}

// NewShaftAccumulator returns an empty accumulator.
func NewShaftAccumulator() *ShaftAccumulator {
	a := &ShaftAccumulator{}
	a.Reset()
	return a
}

// Reset discards all samples.
func (a *ShaftAccumulator) Reset() {
	for i := 0; i < MaxPolePairs; i++ {
		a.h[i] = hypothesis{polePairs: int16(i + 1)}
		a.h[MaxPolePairs+i] = hypothesis{polePairs: -int16(i + 1)}
	}
	a.count = 0
}

// Add records one sample.
func (a *ShaftAccumulator) Add(commanded angle.Electrical, mech angle.Mechanical) {
	for i := range a.h {
		h := &a.h[i]
		e := commanded.OverflowingSub(angle.FromMechanical(mech, 0, h.polePairs))
		h.sin += int64(e.Sin())
		h.cos += int64(e.Cos())
	}
	a.count++
}

// Count returns the number of samples recorded.
func (a *ShaftAccumulator) Count() uint32 {
	return a.count
}

// Finalize picks the hypothesis with the most coherent error vector. With no
// samples it returns one pole pair, zero offset and zero coherence.
func (a *ShaftAccumulator) Finalize() ShaftEstimate {
	if a.count == 0 {
		return ShaftEstimate{PolePairs: 1}
	}

	n := int64(a.count)
	best := 0
	var bestMag uint64
	for i := range a.h {
		s := a.h[i].sin / n
		c := a.h[i].cos / n
		mag := uint64(s*s + c*c)
		if mag > bestMag {
			best = i
			bestMag = mag
		}
	}

	h := a.h[best]
	coherence := fixed.Isqrt(bestMag)
	if coherence > uint64(fixed.Q15One) {
		coherence = uint64(fixed.Q15One)
	}
	return ShaftEstimate{
		PolePairs: h.polePairs,
		Offset:    angle.Atan2Wide(h.sin, h.cos),
		Coherence: fixed.Q15(coherence),
		Samples:   a.count,
	}
}
