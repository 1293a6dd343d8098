package sense

import (
	"context"
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/as560x"

	"gofoc/angle"
)

// as5600Bits is the native resolution of the AS5600 angle register.
const as5600Bits = 12

// AS5600Reader implements motor.AngleReader for an AS5600 on an I2C bus.
type AS5600Reader struct {
	raw func() (uint16, error)
	// Invert reports the angle for a sensor mounted facing the other way.
	Invert bool
}

// NewAS5600Reader configures the sensor on bus.
func NewAS5600Reader(bus drivers.I2C) (*AS5600Reader, error) {
	dev := as560x.NewAS5600(bus)
	if err := dev.Configure(as560x.Config{}); err != nil {
		return nil, fmt.Errorf("as5600: %w", err)
	}
	return &AS5600Reader{
		raw: func() (uint16, error) {
			v, _, err := dev.RawAngle(as560x.ANGLE_NATIVE)
			return v, err
		},
	}, nil
}

// NewAS5600ReaderFrom wraps any source of native 12-bit angle codes, such
// as a simulated encoder.
func NewAS5600ReaderFrom(raw func() (uint16, error)) *AS5600Reader {
	return &AS5600Reader{raw: raw}
}

// ReadAngle returns the shaft angle scaled to the full 16-bit turn.
func (r *AS5600Reader) ReadAngle(ctx context.Context) (angle.Any, error) {
	if err := ctx.Err(); err != nil {
		return angle.Any{}, err
	}
	v, err := r.raw()
	if err != nil {
		return angle.Any{}, fmt.Errorf("as5600 angle: %w", err)
	}
	mech := angle.MechanicalFromRaw(v << (16 - as5600Bits))
	if r.Invert {
		mech = mech.Inverted()
	}
	return angle.MechanicalReading(mech), nil
}
