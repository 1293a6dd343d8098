package fixed

import (
	"math"
	"testing"
)

func TestI16F16Mul(t *testing.T) {
	testCases := []struct {
		a, b     float64
		expected float64
	}{
		{1, 1, 1},
		{2, 2, 4},
		{-1.5, 2, -3},
		{0.5, 0.5, 0.25},
		{100, -0.25, -25},
	}

	for _, tc := range testCases {
		got := FromFloat(tc.a).Mul(FromFloat(tc.b)).Float()
		if math.Abs(got-tc.expected) > 1.0/65536 {
			t.Errorf("%v * %v = %v, expected %v", tc.a, tc.b, got, tc.expected)
		}
	}
}

func TestI16F16Saturates(t *testing.T) {
	big := FromInt(30000)
	if got := big.Mul(big); got != MaxI16F16 {
		t.Errorf("expected saturation to max, got %d", got)
	}
	if got := big.Mul(-big); got != MinI16F16 {
		t.Errorf("expected saturation to min, got %d", got)
	}
	if got := One.Div(0); got != MaxI16F16 {
		t.Errorf("divide by zero should saturate, got %d", got)
	}
}

func TestI16F16DivAndRound(t *testing.T) {
	if got := FromInt(3).Div(FromInt(2)); got != FromFloat(1.5) {
		t.Errorf("3/2 = %v", got.Float())
	}
	if got := FromFloat(2.5).Round(); got != 3 {
		t.Errorf("round(2.5) = %d", got)
	}
	if got := FromFloat(-2.25).Int(); got != -3 {
		t.Errorf("int(-2.25) = %d", got)
	}
	if got := FromRatio(1, 4); got != One/4 {
		t.Errorf("1/4 = %v", got.Float())
	}
}

func TestQ15(t *testing.T) {
	half := Q15FromFloat(0.5)
	if half != 16384 {
		t.Errorf("0.5 in Q15 = %d", half)
	}
	if got := half.Mul(half); got != 8192 {
		t.Errorf("0.5*0.5 = %d", got)
	}
	if got := Q15FromFloat(1.0); got != math.MaxInt16 {
		t.Errorf("1.0 should saturate, got %d", got)
	}
	if got := half.Scale(1000); got != 500 {
		t.Errorf("0.5 scale 1000 = %d", got)
	}
}

func TestIsqrt(t *testing.T) {
	for _, v := range []uint64{0, 1, 2, 3, 4, 15, 16, 17, 1 << 30, 1<<62 + 12345, math.MaxUint64} {
		r := Isqrt(v)
		if r*r > v {
			t.Errorf("isqrt(%d) = %d too large", v, r)
		}
		if r < math.MaxUint32 && (r+1)*(r+1) <= v {
			t.Errorf("isqrt(%d) = %d too small", v, r)
		}
	}
}
