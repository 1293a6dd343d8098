// Package fixed provides the fixed-point number types used on every control
// path. Floating point conversion helpers exist for configuration and tests.
package fixed

import "math"

// Q15 is a signed 1.15 fixed-point value in [-1, 1).
type Q15 int16

// I16F16 is a signed 16.16 fixed-point value.
type I16F16 int32

const (
	// Q15One is the largest representable Q15 value, used as unit amplitude.
	Q15One Q15 = 32767

	// FracBits16 is the number of fractional bits in an I16F16.
	FracBits16 = 16

	// One is 1.0 in I16F16.
	One I16F16 = 1 << FracBits16

	// Half is 0.5 in I16F16.
	Half I16F16 = 1 << (FracBits16 - 1)

	MaxI16F16 I16F16 = math.MaxInt32
	MinI16F16 I16F16 = math.MinInt32
)

// Q15FromFloat converts a float in [-1, 1) to Q15, saturating at the ends.
func Q15FromFloat(f float64) Q15 {
	v := math.Round(f * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return Q15(v)
}

// Float returns the value as a float64.
func (q Q15) Float() float64 {
	return float64(q) / 32768
}

// Mul multiplies two Q15 values, rounding to nearest.
func (q Q15) Mul(o Q15) Q15 {
	p := (int32(q)*int32(o) + (1 << 14)) >> 15
	if p > math.MaxInt16 {
		p = math.MaxInt16
	}
	return Q15(p)
}

// Scale multiplies an integer by the Q15 factor, truncating toward negative
// infinity.
func (q Q15) Scale(v int32) int32 {
	return int32((int64(v) * int64(q)) >> 15)
}

// FromInt converts an integer to I16F16.
func FromInt(v int32) I16F16 {
	return I16F16(v << FracBits16)
}

// FromFloat converts a float to I16F16, saturating at the ends.
func FromFloat(f float64) I16F16 {
	v := math.Round(f * float64(One))
	if v > math.MaxInt32 {
		return MaxI16F16
	}
	if v < math.MinInt32 {
		return MinI16F16
	}
	return I16F16(v)
}

// FromRatio returns num/den in I16F16. den must be non-zero.
func FromRatio(num, den int64) I16F16 {
	return saturate((num << FracBits16) / den)
}

// Float returns the value as a float64.
func (f I16F16) Float() float64 {
	return float64(f) / float64(One)
}

// Int returns the integer part, truncated toward negative infinity.
func (f I16F16) Int() int32 {
	return int32(f >> FracBits16)
}

// Round returns the nearest integer.
func (f I16F16) Round() int32 {
	return int32((int64(f) + int64(Half)) >> FracBits16)
}

// Mul multiplies two I16F16 values, rounding to nearest and saturating.
func (f I16F16) Mul(o I16F16) I16F16 {
	p := int64(f) * int64(o)
	return saturate((p + (1 << (FracBits16 - 1))) >> FracBits16)
}

// MulInt multiplies an integer by the I16F16 value and returns the rounded
// integer result.
func (f I16F16) MulInt(v int64) int64 {
	return (int64(f)*v + (1 << (FracBits16 - 1))) >> FracBits16
}

// Div divides f by o. Division by zero saturates toward the sign of f.
func (f I16F16) Div(o I16F16) I16F16 {
	if o == 0 {
		if f < 0 {
			return MinI16F16
		}
		return MaxI16F16
	}
	return saturate((int64(f) << FracBits16) / int64(o))
}

// Clamp limits f to [lo, hi].
func (f I16F16) Clamp(lo, hi I16F16) I16F16 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func saturate(v int64) I16F16 {
	if v > math.MaxInt32 {
		return MaxI16F16
	}
	if v < math.MinInt32 {
		return MinI16F16
	}
	return I16F16(v)
}

// Isqrt returns floor(sqrt(v)).
func Isqrt(v uint64) uint64 {
	var r uint64
	bit := uint64(1) << 62
	for bit > v {
		bit >>= 2
	}
	for bit != 0 {
		if v >= r+bit {
			v -= r + bit
			r = r>>1 + bit
		} else {
			r >>= 1
		}
		bit >>= 2
	}
	return r
}
