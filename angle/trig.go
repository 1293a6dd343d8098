package angle

import "gofoc/fixed"

const (
	cosTableLen   = 257
	cosTableShift = 6 // raw units per entry = 1 << cosTableShift
	cosTableMask  = 1<<cosTableShift - 1

	cordicIterations = 16
)

// cosQuarter evaluates cosine on [0, QuarterTurn] by linear interpolation.
func cosQuarter(r uint16) int32 {
	idx := r >> cosTableShift
	if idx >= cosTableLen-1 {
		return int32(cosTable[cosTableLen-1])
	}
	lo := int32(cosTable[idx])
	hi := int32(cosTable[idx+1])
	frac := int32(r & cosTableMask)
	return lo + ((hi-lo)*frac)>>cosTableShift
}

func cosRaw(x uint16) fixed.Q15 {
	r := x & (QuarterTurn - 1)
	switch x >> 14 {
	case 0:
		return fixed.Q15(cosQuarter(r))
	case 1:
		return fixed.Q15(-cosQuarter(QuarterTurn - r))
	case 2:
		return fixed.Q15(-cosQuarter(r))
	default:
		return fixed.Q15(cosQuarter(QuarterTurn - r))
	}
}

func sinRaw(x uint16) fixed.Q15 {
	return cosRaw(QuarterTurn - x)
}

// atan2Raw returns the angle of (x, y) in raw units using CORDIC vectoring.
func atan2Raw(y, x int64) uint16 {
	switch {
	case x == 0 && y == 0:
		return 0
	case y == 0:
		if x > 0 {
			return 0
		}
		return HalfTurn
	case x == 0:
		if y > 0 {
			return QuarterTurn
		}
		return HalfTurn + QuarterTurn
	}

	var z uint32
	if x < 0 {
		x, y = -x, -y
		z = 1 << 31
	}

	// Normalize so the shifts keep precision for small vectors.
	for abs64(x) < 1<<30 && abs64(y) < 1<<30 {
		x <<= 1
		y <<= 1
	}

	for i := 0; i < cordicIterations; i++ {
		if y > 0 {
			x, y = x+(y>>i), y-(x>>i)
			z += atanTable[i]
		} else {
			x, y = x-(y>>i), y+(x>>i)
			z -= atanTable[i]
		}
	}
	return uint16((z + 1<<15) >> 16)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Atan2 returns the electrical angle of the vector (x, y).
func Atan2(y, x int32) Electrical {
	return Electrical(atan2Raw(int64(y), int64(x)))
}

// MechanicalAtan2 returns the shaft angle of the vector (x, y).
func MechanicalAtan2(y, x int32) Mechanical {
	return Mechanical(atan2Raw(int64(y), int64(x)))
}

// Atan2Wide is Atan2 over 64-bit accumulators. Inputs are pre-scaled down
// until both fit in 32 bits.
func Atan2Wide(y, x int64) Electrical {
	for x >= 1<<31 || x < -(1<<31) || y >= 1<<31 || y < -(1<<31) {
		x >>= 1
		y >>= 1
	}
	return Electrical(atan2Raw(y, x))
}
