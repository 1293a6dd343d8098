package sense

import (
	"context"
	"errors"
	"testing"

	"gofoc/calibration"
	"gofoc/core"
	"gofoc/fixed"
	"gofoc/motor"
	"gofoc/transform"
)

var (
	_ motor.CurrentReader = (*ADCCurrentReader)(nil)
	_ motor.AngleReader   = (*AS5600Reader)(nil)
)

var unityTrim = [3]fixed.I16F16{fixed.One, fixed.One, fixed.One}

func TestNewConversionValidation(t *testing.T) {
	tests := []struct {
		name  string
		vref  uint32
		shunt uint32
		gain  fixed.I16F16
		trim  [3]fixed.I16F16
		ok    bool
	}{
		{"reference board", 3300, 10, fixed.FromInt(20), unityTrim, true},
		{"zero shunt", 3300, 0, fixed.FromInt(20), unityTrim, false},
		{"zero gain", 3300, 10, 0, unityTrim, false},
		{"trim at half", 3300, 10, fixed.FromInt(20), [3]fixed.I16F16{fixed.Half, fixed.One, fixed.One}, false},
		{"trim at two", 3300, 10, fixed.FromInt(20), [3]fixed.I16F16{fixed.One, fixed.One, 2 * fixed.One}, false},
		{"trim inside", 3300, 10, fixed.FromInt(20), [3]fixed.I16F16{fixed.FromFloat(0.6), fixed.One, fixed.FromFloat(1.9)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversion(tt.vref, tt.shunt, tt.gain, tt.trim)
			if tt.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidGain) {
				t.Errorf("error %v, expected ErrInvalidGain", err)
			}
		})
	}
}

func TestConversionMilliamps(t *testing.T) {
	c, err := NewConversion(3300, 10, fixed.FromInt(20), unityTrim)
	if err != nil {
		t.Fatal(err)
	}
	if c.MidValue() != calibration.DefaultZero {
		t.Errorf("initial midpoint %d", c.MidValue())
	}

	c.SetZeros(32000, 33000, 32500)
	if c.MidValue() != 32500 {
		t.Errorf("midpoint %d", c.MidValue())
	}
	// 0.2518 mA per code.
	tests := []struct {
		phase transform.Phase
		code  uint16
		want  transform.Milliamps
	}{
		{transform.PhaseA, 32000, 0},
		{transform.PhaseA, 36000, 1007},
		{transform.PhaseB, 29000, -1007},
		{transform.PhaseC, 32500, 0},
	}
	for _, tt := range tests {
		if got := c.Milliamps(tt.phase, tt.code); got < tt.want-1 || got > tt.want+1 {
			t.Errorf("Milliamps(%s, %d) = %d, expected %d", tt.phase, tt.code, got, tt.want)
		}
	}
}

type fakeADC struct {
	values     map[core.ADCChannelID][]core.ADCValue
	configured []core.ADCChannelID
	err        error
}

func (a *fakeADC) Init(core.ADCConfig) error { return nil }

func (a *fakeADC) ConfigureChannel(ch core.ADCChannelID) error {
	a.configured = append(a.configured, ch)
	return nil
}

func (a *fakeADC) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if a.err != nil {
		return 0, a.err
	}
	v := a.values[ch]
	out := v[0]
	if len(v) > 1 {
		a.values[ch] = v[1:]
	}
	return out, nil
}

func TestADCCurrentReader(t *testing.T) {
	conv, _ := NewConversion(3300, 10, fixed.FromInt(20), unityTrim)
	adc := &fakeADC{values: map[core.ADCChannelID][]core.ADCValue{
		0: {32767, 32771},
		1: {30000},
		2: {40000},
	}}
	r, err := NewADCCurrentReader(adc, CurrentConfig{Channels: [3]core.ADCChannelID{0, 1, 2}, Oversample: 2}, conv)
	if err != nil {
		t.Fatal(err)
	}
	if len(adc.configured) != 3 {
		t.Errorf("configured channels %v", adc.configured)
	}

	raw, err := r.ReadRaw(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if raw.A != 32769 || raw.B != 30000 || raw.C != 40000 {
		t.Errorf("raw %+v", raw)
	}

	r.CalibrateCurrent(32771, 30000, 40000)
	i, err := r.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if i.A != 0 || i.B != 0 || i.C != 0 {
		t.Errorf("current at zero codes %+v", i)
	}
}

func TestADCCurrentReaderTwoPhase(t *testing.T) {
	conv, _ := NewConversion(3300, 10, fixed.FromInt(20), unityTrim)
	adc := &fakeADC{values: map[core.ADCChannelID][]core.ADCValue{
		4: {36000},
		5: {32000},
	}}
	r, err := NewADCCurrentReader(adc, CurrentConfig{Channels: [3]core.ADCChannelID{4, 5, 6}, TwoPhase: true}, conv)
	if err != nil {
		t.Fatal(err)
	}
	if len(adc.configured) != 2 {
		t.Errorf("configured channels %v", adc.configured)
	}
	r.CalibrateCurrent(32000, 32000, 1)
	if z := conv.Zeros(); z[2] == 1 {
		t.Errorf("two-phase C zero taken from the accumulator: %v", z)
	}
	i, err := r.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if int32(i.A)+int32(i.B)+int32(i.C) != 0 || i.A < 1000 {
		t.Errorf("currents %+v", i)
	}
}

func TestADCCurrentReaderErrors(t *testing.T) {
	conv, _ := NewConversion(3300, 10, fixed.FromInt(20), unityTrim)
	adc := &fakeADC{values: map[core.ADCChannelID][]core.ADCValue{0: {65535}, 1: {100}, 2: {100}}}
	r, _ := NewADCCurrentReader(adc, CurrentConfig{MinValue: 200, MaxValue: 65000}, conv)
	if _, err := r.Read(context.Background()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("saturated reading gave %v", err)
	}

	adc.err = errors.New("busy")
	if _, err := r.ReadRaw(context.Background()); err == nil {
		t.Errorf("adc error not reported")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ReadRaw(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled read gave %v", err)
	}
}

func TestAS5600Scaling(t *testing.T) {
	var code uint16
	var fail error
	r := NewAS5600ReaderFrom(func() (uint16, error) { return code, fail })

	tests := []struct {
		code   uint16
		invert bool
		want   uint16
	}{
		{0, false, 0},
		{0xABC, false, 0xABC0},
		{4095, false, 0xFFF0},
		{0x400, true, 0xFFFF - 0x4000},
	}
	for _, tt := range tests {
		code = tt.code
		r.Invert = tt.invert
		a, err := r.ReadAngle(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		mech, ok := a.AsMechanical()
		if !ok || mech.Raw() != tt.want {
			t.Errorf("code %#x invert=%v: %v", tt.code, tt.invert, a)
		}
	}

	fail = errors.New("nack")
	if _, err := r.ReadAngle(context.Background()); !errors.Is(err, fail) {
		t.Errorf("bus error gave %v", err)
	}
}
