package pi

import (
	"errors"
	"testing"

	"gofoc/fixed"
)

type milliamps int16
type millivolts int32

func TestProportionalClamp(t *testing.T) {
	c := MustNew[milliamps, millivolts](Config[millivolts]{
		Kp:            fixed.FromInt(2),
		IntegratorMin: -10,
		IntegratorMax: 10,
		OutputMin:     -3,
		OutputMax:     3,
	})
	if got := c.Step(2); got != 3 {
		t.Errorf("Step(2) = %d, expected 3", got)
	}
	if got := c.Step(-2); got != -3 {
		t.Errorf("Step(-2) = %d, expected -3", got)
	}
}

func TestIntegratorClamp(t *testing.T) {
	c := MustNew[milliamps, millivolts](Config[millivolts]{
		Ki:            fixed.One,
		IntegratorMin: -5,
		IntegratorMax: 5,
		OutputMin:     -100,
		OutputMax:     100,
	})
	testCases := []struct {
		err      milliamps
		expected millivolts
	}{
		{2, 2},
		{2, 4},
		{2, 5},
		{2, 5},
		{-3, 2},
		{-20, -5},
	}
	for i, tc := range testCases {
		if got := c.Step(tc.err); got != tc.expected {
			t.Errorf("step %d: Step(%d) = %d, expected %d", i, tc.err, got, tc.expected)
		}
	}

	c.Reset()
	if c.Integrator() != 0 {
		t.Errorf("integrator after reset = %d", c.Integrator())
	}
}

func TestProportionalPlusIntegral(t *testing.T) {
	c := MustNew[milliamps, millivolts](Config[millivolts]{
		Kp:            fixed.FromFloat(0.5),
		Ki:            fixed.FromFloat(0.25),
		IntegratorMin: -1000,
		IntegratorMax: 1000,
		OutputMin:     -1000,
		OutputMax:     1000,
	})
	// p = 50, i = 25
	if got := c.Step(100); got != 75 {
		t.Errorf("first step = %d", got)
	}
	// p = 50, i = 50
	if got := c.Step(100); got != 100 {
		t.Errorf("second step = %d", got)
	}
}

func TestInvalidLimits(t *testing.T) {
	_, err := New[milliamps, millivolts](Config[millivolts]{OutputMin: 5, OutputMax: -5})
	if !errors.Is(err, ErrInvalidLimits) {
		t.Errorf("expected ErrInvalidLimits, got %v", err)
	}
	_, err = New[milliamps, millivolts](Config[millivolts]{IntegratorMin: 1})
	if !errors.Is(err, ErrInvalidLimits) {
		t.Errorf("expected ErrInvalidLimits, got %v", err)
	}
}
