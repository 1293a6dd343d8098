package angle

import "time"

// VelocityFilterShift sets the low-pass coefficient to 1/8.
const VelocityFilterShift = 3

// ElectricalVelocity is in raw electrical units per second.
type ElectricalVelocity int32

// MechanicalVelocity is in raw mechanical units per second.
type MechanicalVelocity int32

// RawPerMillisecond returns the velocity in raw units per millisecond.
func (v ElectricalVelocity) RawPerMillisecond() int32 { return int32(v) / 1000 }

// Displacement returns the raw distance covered in d.
func (v ElectricalVelocity) Displacement(d time.Duration) int32 {
	return int32(int64(v) * d.Microseconds() / 1e6)
}

// RawPerMillisecond returns the velocity in raw units per millisecond.
func (v MechanicalVelocity) RawPerMillisecond() int32 { return int32(v) / 1000 }

// ToElectrical scales a shaft velocity by the pole pair count.
func (v MechanicalVelocity) ToElectrical(polePairs int16) ElectricalVelocity {
	return ElectricalVelocity(int32(v) * int32(polePairs))
}

// ToMechanical divides an electrical velocity by the pole pair count.
func (v ElectricalVelocity) ToMechanical(polePairs int16) MechanicalVelocity {
	if polePairs == 0 {
		return 0
	}
	return MechanicalVelocity(int32(v) / int32(polePairs))
}

// VelocityFromDelta converts a signed raw displacement observed over
// elapsed microseconds into raw units per second.
func VelocityFromDelta(delta int32, elapsedUS int64) int32 {
	if elapsedUS <= 0 {
		return 0
	}
	return int32(int64(delta) * 1e6 / elapsedUS)
}

// LowPass is a single-pole filter: v += (x - v) >> VelocityFilterShift.
type LowPass struct {
	value  int32
	primed bool
}

// Update feeds a sample and returns the filtered value. The first sample
// initializes the filter.
func (f *LowPass) Update(x int32) int32 {
	if !f.primed {
		f.value = x
		f.primed = true
		return x
	}
	f.value += (x - f.value) >> VelocityFilterShift
	return f.value
}

// Value returns the current filtered value.
func (f *LowPass) Value() int32 { return f.value }

// Reset clears the filter.
func (f *LowPass) Reset() {
	f.value = 0
	f.primed = false
}
