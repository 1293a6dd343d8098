package core

// GPIOPin is a GPIO number.
type GPIOPin uint32

// GPIODriver controls plain digital pins. The inverter uses it for the gate
// driver enable line.
type GPIODriver interface {
	ConfigureOutput(pin GPIOPin) error
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin drives an output high (true) or low (false).
	SetPin(pin GPIOPin, value bool) error
	GetPin(pin GPIOPin) (bool, error)
}
