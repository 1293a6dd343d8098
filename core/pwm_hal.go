package core

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is the duty cycle value (0 to GetMaxValue())
type PWMValue uint32

// PWMDriver is the abstract PWM interface used by the inverter.
// Platform-specific implementations handle actual hardware control.
type PWMDriver interface {
	// ConfigureHardwarePWM configures a pin for center-aligned PWM output
	// with the given period in nanoseconds.
	ConfigureHardwarePWM(pin PWMPin, periodNs uint64) error

	// SetDutyCycle sets the PWM duty cycle for a pin
	// value: 0 (fully off) to GetMaxValue() (fully on)
	SetDutyCycle(pin PWMPin, value PWMValue) error

	// GetMaxValue returns the counter top shared by the configured pins
	GetMaxValue() uint32

	// DisablePWM drives the pin low
	DisablePWM(pin PWMPin) error
}
