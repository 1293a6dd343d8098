// Package angle implements fixed-point rotor angles. A full turn is 65536 raw
// units, so uint16 arithmetic wraps exactly once per revolution. Electrical
// and mechanical angles are distinct types and never convert implicitly.
package angle

import (
	"math"

	"gofoc/fixed"
)

const (
	// FullTurn is one revolution in raw units.
	FullTurn = 1 << 16

	QuarterTurn = 1 << 14
	HalfTurn    = 1 << 15
)

// Electrical is an electrical angle. One electrical turn spans
// 1/|polePairs| of a mechanical turn.
type Electrical uint16

// Mechanical is a rotor shaft angle.
type Mechanical uint16

func rawFromDegrees(deg float64) uint16 {
	turns := deg / 360
	turns -= math.Floor(turns)
	return uint16(int64(math.Round(turns*FullTurn)) & 0xFFFF)
}

func rawFromRadians(rad float64) uint16 {
	return rawFromDegrees(rad * 180 / math.Pi)
}

func rawDegrees(r uint16) float64 {
	return float64(r) * 360 / FullTurn
}

func rawRadians(r uint16) float64 {
	return float64(r) * 2 * math.Pi / FullTurn
}

func checkedAdd(a, b uint16) (uint16, bool) {
	s := uint32(a) + uint32(b)
	return uint16(s), s <= math.MaxUint16
}

func checkedSub(a, b uint16) (uint16, bool) {
	return a - b, a >= b
}

// ElectricalFromRaw wraps a raw value.
func ElectricalFromRaw(raw uint16) Electrical { return Electrical(raw) }

// ElectricalFromDegrees converts degrees, wrapping to one turn.
func ElectricalFromDegrees(deg float64) Electrical { return Electrical(rawFromDegrees(deg)) }

// ElectricalFromRadians converts radians, wrapping to one turn.
func ElectricalFromRadians(rad float64) Electrical { return Electrical(rawFromRadians(rad)) }

// Raw returns the angle in 1/65536 turns.
func (a Electrical) Raw() uint16 { return uint16(a) }

// Degrees returns the angle in [0, 360).
func (a Electrical) Degrees() float64 { return rawDegrees(uint16(a)) }

// Radians returns the angle in [0, 2π).
func (a Electrical) Radians() float64 { return rawRadians(uint16(a)) }

// Cos and Sin use the quarter-wave table.
func (a Electrical) Cos() fixed.Q15 { return cosRaw(uint16(a)) }
func (a Electrical) Sin() fixed.Q15 { return sinRaw(uint16(a)) }

// Inverted mirrors the angle, mapping raw r to 65535-r.
func (a Electrical) Inverted() Electrical { return Electrical(math.MaxUint16 - uint16(a)) }

// CheckedAdd returns ok=false when the sum leaves [0, 65535].
func (a Electrical) CheckedAdd(b Electrical) (Electrical, bool) {
	r, ok := checkedAdd(uint16(a), uint16(b))
	return Electrical(r), ok
}

// CheckedSub returns ok=false when b > a.
func (a Electrical) CheckedSub(b Electrical) (Electrical, bool) {
	r, ok := checkedSub(uint16(a), uint16(b))
	return Electrical(r), ok
}

// OverflowingAdd wraps around the turn.
func (a Electrical) OverflowingAdd(b Electrical) Electrical { return a + b }

// OverflowingSub wraps around the turn.
func (a Electrical) OverflowingSub(b Electrical) Electrical { return a - b }

// Diff returns the signed shortest distance from b to a.
func (a Electrical) Diff(b Electrical) int16 { return int16(a - b) }

// Advance moves the angle by a signed raw displacement, wrapping.
func (a Electrical) Advance(delta int32) Electrical { return a + Electrical(uint16(delta)) }

// MechanicalFromRaw wraps a raw value.
func MechanicalFromRaw(raw uint16) Mechanical { return Mechanical(raw) }

// MechanicalFromDegrees converts degrees, wrapping to one turn.
func MechanicalFromDegrees(deg float64) Mechanical { return Mechanical(rawFromDegrees(deg)) }

// MechanicalFromRadians converts radians, wrapping to one turn.
func MechanicalFromRadians(rad float64) Mechanical { return Mechanical(rawFromRadians(rad)) }

// Raw returns the angle in 1/65536 turns.
func (a Mechanical) Raw() uint16 { return uint16(a) }

// Degrees returns the angle in [0, 360).
func (a Mechanical) Degrees() float64 { return rawDegrees(uint16(a)) }

// Radians returns the angle in [0, 2π).
func (a Mechanical) Radians() float64 { return rawRadians(uint16(a)) }

// Cos and Sin use the quarter-wave table.
func (a Mechanical) Cos() fixed.Q15 { return cosRaw(uint16(a)) }
func (a Mechanical) Sin() fixed.Q15 { return sinRaw(uint16(a)) }

// Inverted mirrors the angle, mapping raw r to 65535-r.
func (a Mechanical) Inverted() Mechanical { return Mechanical(math.MaxUint16 - uint16(a)) }

// CheckedAdd returns ok=false when the sum leaves [0, 65535].
func (a Mechanical) CheckedAdd(b Mechanical) (Mechanical, bool) {
	r, ok := checkedAdd(uint16(a), uint16(b))
	return Mechanical(r), ok
}

// CheckedSub returns ok=false when b > a.
func (a Mechanical) CheckedSub(b Mechanical) (Mechanical, bool) {
	r, ok := checkedSub(uint16(a), uint16(b))
	return Mechanical(r), ok
}

// OverflowingAdd and OverflowingSub wrap around the turn.
func (a Mechanical) OverflowingAdd(b Mechanical) Mechanical { return a + b }
func (a Mechanical) OverflowingSub(b Mechanical) Mechanical { return a - b }

// Diff returns the signed shortest distance from b to a.
func (a Mechanical) Diff(b Mechanical) int16 { return int16(a - b) }

// Advance moves the angle by a signed raw displacement, wrapping.
func (a Mechanical) Advance(delta int32) Mechanical { return a + Mechanical(uint16(delta)) }

// FromMechanical converts a shaft angle to an electrical angle:
// (mech - offset) * |polePairs|, wrapping, then inverted when polePairs is
// negative. Zero pole pairs yields zero.
func FromMechanical(mech, offset Mechanical, polePairs int16) Electrical {
	pp := int32(polePairs)
	neg := pp < 0
	if neg {
		pp = -pp
	}
	e := Electrical(uint32(mech-offset) * uint32(pp))
	if neg {
		return e.Inverted()
	}
	return e
}

// Kind tags which frame a sensor reading is expressed in.
type Kind uint8

const (
	KindMechanical Kind = iota
	KindElectrical
)

func (k Kind) String() string {
	switch k {
	case KindMechanical:
		return "mechanical"
	case KindElectrical:
		return "electrical"
	default:
		return "unknown"
	}
}

// Any is a sensor reading in either frame. Callers pick the frame explicitly
// through AsMechanical or AsElectrical.
type Any struct {
	kind Kind
	raw  uint16
}

// MechanicalReading tags a shaft angle.
func MechanicalReading(a Mechanical) Any { return Any{kind: KindMechanical, raw: uint16(a)} }

// ElectricalReading tags an electrical angle.
func ElectricalReading(a Electrical) Any { return Any{kind: KindElectrical, raw: uint16(a)} }

// Kind reports which frame the reading is in.
func (a Any) Kind() Kind { return a.kind }

// Raw returns the reading without its frame.
func (a Any) Raw() uint16 { return a.raw }

// AsMechanical returns the reading when it is mechanical.
func (a Any) AsMechanical() (Mechanical, bool) {
	return Mechanical(a.raw), a.kind == KindMechanical
}

// AsElectrical returns the reading when it is electrical.
func (a Any) AsElectrical() (Electrical, bool) {
	return Electrical(a.raw), a.kind == KindElectrical
}
