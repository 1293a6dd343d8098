package angle

import (
	"math"
	"testing"
)

func TestFromMechanical(t *testing.T) {
	testCases := []struct {
		mech      uint16
		offset    uint16
		polePairs int16
		expected  uint16
	}{
		{9400, 10, 7, 194},
		{65535, 10, 2, 65535 - 21},
		{100, 100, 7, 0},
		{1000, 0, 1, 1000},
		{1000, 0, -1, 65535 - 1000},
		{0, 0, 0, 0},
	}

	for _, tc := range testCases {
		got := FromMechanical(MechanicalFromRaw(tc.mech), MechanicalFromRaw(tc.offset), tc.polePairs)
		if got.Raw() != tc.expected {
			t.Errorf("FromMechanical(%d, %d, %d) = %d, expected %d",
				tc.mech, tc.offset, tc.polePairs, got.Raw(), tc.expected)
		}
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, ok := ElectricalFromRaw(65000).CheckedAdd(ElectricalFromRaw(1000)); ok {
		t.Errorf("expected overflow on add")
	}
	if v, ok := ElectricalFromRaw(65000).CheckedAdd(ElectricalFromRaw(535)); !ok || v.Raw() != 65535 {
		t.Errorf("65000+535 = %d ok=%v", v.Raw(), ok)
	}
	if _, ok := MechanicalFromRaw(5).CheckedSub(MechanicalFromRaw(6)); ok {
		t.Errorf("expected underflow on sub")
	}
	if v := ElectricalFromRaw(5).OverflowingSub(ElectricalFromRaw(6)); v.Raw() != 65535 {
		t.Errorf("wrapping sub = %d", v.Raw())
	}
	if v := MechanicalFromRaw(65535).OverflowingAdd(MechanicalFromRaw(2)); v.Raw() != 1 {
		t.Errorf("wrapping add = %d", v.Raw())
	}
	if d := ElectricalFromRaw(10).Diff(ElectricalFromRaw(65530)); d != 16 {
		t.Errorf("diff across zero = %d", d)
	}
}

func TestDegreesRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 45, 90, 180, 270, 359.99, -90, 720} {
		a := ElectricalFromDegrees(deg)
		want := math.Mod(deg, 360)
		if want < 0 {
			want += 360
		}
		if diff := math.Abs(a.Degrees() - want); diff > 0.01 && math.Abs(diff-360) > 0.01 {
			t.Errorf("%v deg round trip gave %v", deg, a.Degrees())
		}
	}
	if ElectricalFromRadians(math.Pi).Raw() != HalfTurn {
		t.Errorf("pi rad = %d", ElectricalFromRadians(math.Pi).Raw())
	}
}

func TestCosSin(t *testing.T) {
	worst := 0.0
	for raw := 0; raw < FullTurn; raw += 7 {
		a := ElectricalFromRaw(uint16(raw))
		wantCos := math.Cos(a.Radians())
		wantSin := math.Sin(a.Radians())
		if d := math.Abs(a.Cos().Float() - wantCos); d > worst {
			worst = d
		}
		if d := math.Abs(a.Sin().Float() - wantSin); d > worst {
			worst = d
		}
	}
	if worst > 2e-4 {
		t.Errorf("trig error %v exceeds tolerance", worst)
	}
	t.Logf("worst trig error %v", worst)

	checks := []struct {
		raw      uint16
		cos, sin int16
	}{
		{0, 32767, 0},
		{QuarterTurn, 0, 32767},
		{HalfTurn, -32767, 0},
		{HalfTurn + QuarterTurn, 0, -32767},
	}
	for _, c := range checks {
		a := ElectricalFromRaw(c.raw)
		if int16(a.Cos()) != c.cos || int16(a.Sin()) != c.sin {
			t.Errorf("raw %d: cos=%d sin=%d", c.raw, a.Cos(), a.Sin())
		}
	}
}

func TestCosSymmetry(t *testing.T) {
	for raw := 0; raw < FullTurn; raw += 13 {
		a := ElectricalFromRaw(uint16(raw))
		neg := ElectricalFromRaw(uint16(-raw))
		if a.Cos() != neg.Cos() {
			t.Errorf("cos(%d) != cos(-%d): %d vs %d", raw, raw, a.Cos(), neg.Cos())
		}
	}
}

func TestAtan2(t *testing.T) {
	radii := []float64{100, 3000, 1 << 20, math.MaxInt32 - 1}
	for _, r := range radii {
		for deg := 0.0; deg < 360; deg += 0.7 {
			th := deg * math.Pi / 180
			x := int32(r * math.Cos(th))
			y := int32(r * math.Sin(th))
			got := Atan2(y, x)
			want := math.Mod(math.Atan2(float64(y), float64(x))*FullTurn/(2*math.Pi)+FullTurn, FullTurn)
			d := math.Mod(float64(got.Raw())-want+FullTurn+HalfTurn, FullTurn) - HalfTurn
			if math.Abs(d) > 3 {
				t.Errorf("atan2(%d, %d) = %d, expected %.1f", y, x, got.Raw(), want)
			}
		}
	}
}

func TestAtan2Special(t *testing.T) {
	testCases := []struct {
		y, x     int32
		expected uint16
	}{
		{0, 0, 0},
		{0, 5, 0},
		{0, -5, HalfTurn},
		{5, 0, QuarterTurn},
		{-5, 0, HalfTurn + QuarterTurn},
		{math.MinInt32, math.MinInt32, 40960},
		{1, 1, 8192},
	}
	for _, tc := range testCases {
		if got := Atan2(tc.y, tc.x).Raw(); got != tc.expected {
			t.Errorf("atan2(%d, %d) = %d, expected %d", tc.y, tc.x, got, tc.expected)
		}
	}
	if got := Atan2Wide(1<<40, 1<<40).Raw(); got != 8192 {
		t.Errorf("wide atan2 = %d", got)
	}
}

func TestAnyReading(t *testing.T) {
	m := MechanicalReading(MechanicalFromRaw(1234))
	if _, ok := m.AsElectrical(); ok {
		t.Errorf("mechanical reading reported electrical")
	}
	if v, ok := m.AsMechanical(); !ok || v.Raw() != 1234 {
		t.Errorf("mechanical reading = %d ok=%v", v.Raw(), ok)
	}
	e := ElectricalReading(ElectricalFromRaw(99))
	if e.Kind() != KindElectrical {
		t.Errorf("kind = %v", e.Kind())
	}
}

func TestLowPass(t *testing.T) {
	var f LowPass
	if got := f.Update(800); got != 800 {
		t.Errorf("first sample = %d", got)
	}
	if got := f.Update(0); got != 700 {
		t.Errorf("second sample = %d", got)
	}
	for i := 0; i < 200; i++ {
		f.Update(1600)
	}
	if got := f.Value(); got < 1590 || got > 1600 {
		t.Errorf("settled value = %d", got)
	}
}

func TestVelocity(t *testing.T) {
	if got := VelocityFromDelta(655, 10000); got != 65500 {
		t.Errorf("velocity = %d", got)
	}
	v := ElectricalVelocity(65536)
	if got := v.Displacement(500000000); got != 32768 {
		t.Errorf("displacement = %d", got)
	}
	if got := MechanicalVelocity(100).ToElectrical(-7); got != -700 {
		t.Errorf("to electrical = %d", got)
	}
}
