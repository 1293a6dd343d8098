// Package transform implements the Clarke and Park coordinate transforms and
// space-vector modulation for a three-phase inverter.
package transform

import "gofoc/angle"

// Milliamps is a phase or axis current.
type Milliamps int16

// Millivolts is a phase or axis voltage.
type Millivolts int16

// Phase names one inverter leg.
type Phase uint8

const (
	PhaseA Phase = iota
	PhaseB
	PhaseC
)

func (p Phase) String() string {
	switch p {
	case PhaseA:
		return "A"
	case PhaseB:
		return "B"
	case PhaseC:
		return "C"
	default:
		return "?"
	}
}

// PhaseCurrent holds the three phase currents of a star-connected motor.
type PhaseCurrent struct {
	A, B, C Milliamps
}

// FromTwoPhase derives C from Kirchhoff's current law.
func FromTwoPhase(a, b Milliamps) PhaseCurrent {
	return PhaseCurrent{A: a, B: b, C: Milliamps(-int32(a) - int32(b))}
}

// AlphaBeta is a vector in the stationary two-axis frame.
type AlphaBeta struct {
	Alpha, Beta int16
}

// DQ is a vector in the rotor-aligned frame.
type DQ struct {
	D, Q int16
}

// Q15 constants.
const (
	invSqrt3Q15   = 18919 // 1/sqrt(3)
	sqrt3Over2Q15 = 28378 // sqrt(3)/2
)

// Clarke projects phase currents onto the alpha/beta frame. C is implied by
// A + B + C = 0 and is ignored.
func Clarke(i PhaseCurrent) AlphaBeta {
	a := int32(i.A)
	b := int32(i.B)
	return AlphaBeta{
		Alpha: int16(a),
		Beta:  sat16(((a + 2*b) * invSqrt3Q15) >> 15),
	}
}

// InverseClarke maps an alpha/beta vector back to phase values. The outputs
// sum to zero within rounding.
func InverseClarke(v AlphaBeta) (a, b, c int16) {
	alpha := int32(v.Alpha)
	k := (int32(v.Beta) * sqrt3Over2Q15) >> 15
	half := alpha >> 1
	return sat16(alpha), sat16(-half + k), sat16(-half - k)
}

// Park rotates an alpha/beta vector into the rotor frame.
func Park(v AlphaBeta, theta angle.Electrical) DQ {
	c := int32(theta.Cos())
	s := int32(theta.Sin())
	alpha := int32(v.Alpha)
	beta := int32(v.Beta)
	return DQ{
		D: sat16((alpha*c + beta*s) >> 15),
		Q: sat16((-alpha*s + beta*c) >> 15),
	}
}

// InversePark rotates a rotor-frame vector back to alpha/beta.
func InversePark(v DQ, theta angle.Electrical) AlphaBeta {
	c := int32(theta.Cos())
	s := int32(theta.Sin())
	d := int32(v.D)
	q := int32(v.Q)
	return AlphaBeta{
		Alpha: sat16((d*c - q*s) >> 15),
		Beta:  sat16((d*s + q*c) >> 15),
	}
}

func sat16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
