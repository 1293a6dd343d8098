// Package pi implements a proportional-integral controller generic over its
// input and output units.
package pi

import (
	"errors"
	"fmt"

	"gofoc/fixed"
)

// ErrInvalidLimits is returned by New for an inverted clamp range.
var ErrInvalidLimits = errors.New("pi: min limit exceeds max limit")

// Unit is any integer-backed physical quantity.
type Unit interface {
	~int16 | ~int32
}

// Config holds gains and limits. Gains are 16.16 fixed point.
type Config[O Unit] struct {
	Kp, Ki        fixed.I16F16
	IntegratorMin O
	IntegratorMax O
	OutputMin     O
	OutputMax     O
}

// Controller maps an error in unit E to a command in unit O.
type Controller[E, O Unit] struct {
	cfg        Config[O]
	integrator int64
}

// New validates the limits and returns a controller with a zero integrator.
func New[E, O Unit](cfg Config[O]) (*Controller[E, O], error) {
	if cfg.IntegratorMin > cfg.IntegratorMax {
		return nil, fmt.Errorf("integrator [%d, %d]: %w", cfg.IntegratorMin, cfg.IntegratorMax, ErrInvalidLimits)
	}
	if cfg.OutputMin > cfg.OutputMax {
		return nil, fmt.Errorf("output [%d, %d]: %w", cfg.OutputMin, cfg.OutputMax, ErrInvalidLimits)
	}
	return &Controller[E, O]{cfg: cfg}, nil
}

// MustNew is New for statically known configurations.
func MustNew[E, O Unit](cfg Config[O]) *Controller[E, O] {
	c, err := New[E, O](cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Step advances the controller by one sample. The integrator is clamped
// before it contributes, and the sum is clamped to the output limits.
func (c *Controller[E, O]) Step(err E) O {
	e := int64(err)
	p := c.cfg.Kp.MulInt(e)

	c.integrator = clamp(c.integrator+c.cfg.Ki.MulInt(e), int64(c.cfg.IntegratorMin), int64(c.cfg.IntegratorMax))

	return O(clamp(p+c.integrator, int64(c.cfg.OutputMin), int64(c.cfg.OutputMax)))
}

// Reset zeroes the integrator.
func (c *Controller[E, O]) Reset() {
	c.integrator = 0
}

// Integrator returns the current integrator state.
func (c *Controller[E, O]) Integrator() O {
	return O(c.integrator)
}

// Config returns the controller configuration.
func (c *Controller[E, O]) Config() Config[O] {
	return c.cfg
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
