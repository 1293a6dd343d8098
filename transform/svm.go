package transform

import "gofoc/fixed"

// Sector is one of the six 60 degree regions of the alpha/beta plane.
// Sector k covers (60(k-1), 60k] degrees; First also includes 0.
type Sector uint8

const (
	First Sector = iota + 1
	Second
	Third
	Fourth
	Fifth
	Sixth
)

// I16F16 constants.
const (
	sqrt3        fixed.I16F16 = 113512 // sqrt(3)
	twoOverSqrt3 fixed.I16F16 = 75674  // 2/sqrt(3)
	oneOverSqrt3 fixed.I16F16 = 37837  // 1/sqrt(3)
)

// MaxModulation is the largest vector magnitude SpaceVector keeps linear,
// sqrt(3)/2 in the unit-vector frame.
const MaxModulation fixed.I16F16 = 56755

// Duties are per-phase PWM duty cycles in [0, 1].
type Duties struct {
	A, B, C fixed.I16F16
}

// ToCompare scales the duties to timer compare values for a counter that
// wraps at top.
func (d Duties) ToCompare(top uint32) (a, b, c uint32) {
	return compare(d.A, top), compare(d.B, top), compare(d.C, top)
}

func compare(duty fixed.I16F16, top uint32) uint32 {
	duty = duty.Clamp(0, fixed.One)
	return uint32((uint64(duty)*uint64(top) + uint64(fixed.Half)) >> fixed.FracBits16)
}

// SectorOf classifies a vector by comparing beta against sqrt(3)*alpha.
// Boundary vectors belong to the lower-numbered sector.
func SectorOf(alpha, beta fixed.I16F16) Sector {
	s3a := alpha.Mul(sqrt3)
	if beta >= 0 {
		switch {
		case beta <= s3a:
			return First
		case beta >= -s3a:
			return Second
		default:
			return Third
		}
	}
	switch {
	case beta >= s3a:
		return Fourth
	case beta <= -s3a:
		return Fifth
	default:
		return Sixth
	}
}

// VectorTimes returns the normalized on-times of the two active vectors
// bounding the sector.
func VectorTimes(s Sector, alpha, beta fixed.I16F16) (tx, ty fixed.I16F16) {
	x := beta.Mul(twoOverSqrt3)
	b3 := beta.Mul(oneOverSqrt3)
	y := alpha + b3
	z := -alpha + b3

	switch s {
	case First:
		return -z, x
	case Second:
		return y, z
	case Third:
		return x, -y
	case Fourth:
		return z, -x
	case Fifth:
		return -y, -z
	default:
		return -x, y
	}
}

// SpaceVector computes centered duty cycles for a vector in the unit-vector
// frame. The leading phase of the sector takes (1 + tx + ty) / 2 and the
// other two follow by subtracting the vector times.
func SpaceVector(alpha, beta fixed.I16F16) Duties {
	s := SectorOf(alpha, beta)
	tx, ty := VectorTimes(s, alpha, beta)
	lead := (fixed.One + tx + ty) / 2

	var d Duties
	switch s {
	case First:
		d.A = lead
		d.B = d.A - tx
		d.C = d.B - ty
	case Second:
		d.B = lead
		d.A = d.B - ty
		d.C = d.A - tx
	case Third:
		d.B = lead
		d.C = d.B - tx
		d.A = d.C - ty
	case Fourth:
		d.C = lead
		d.B = d.C - ty
		d.A = d.B - tx
	case Fifth:
		d.C = lead
		d.A = d.C - tx
		d.B = d.A - ty
	default:
		d.A = lead
		d.C = d.A - ty
		d.B = d.C - tx
	}

	d.A = d.A.Clamp(0, fixed.One)
	d.B = d.B.Clamp(0, fixed.One)
	d.C = d.C.Clamp(0, fixed.One)
	return d
}

// Normalize scales an alpha/beta voltage by the bus voltage into the
// unit-vector frame, limiting the magnitude to the linear region.
func Normalize(v AlphaBeta, busMillivolts int32) (alpha, beta fixed.I16F16) {
	// Phase-to-neutral peak of a unit active vector is 2/3 of the bus.
	den := int64(busMillivolts) * 2 / 3
	if den <= 0 {
		return 0, 0
	}
	alpha = fixed.FromRatio(int64(v.Alpha), den)
	beta = fixed.FromRatio(int64(v.Beta), den)

	mag := int64(fixed.Isqrt(uint64(int64(alpha)*int64(alpha)) + uint64(int64(beta)*int64(beta))))
	if mag > int64(MaxModulation) {
		alpha = fixed.I16F16(int64(alpha) * int64(MaxModulation) / mag)
		beta = fixed.I16F16(int64(beta) * int64(MaxModulation) / mag)
	}
	return alpha, beta
}
