package core

// ADCChannelID identifies a logical ADC channel.
type ADCChannelID uint8

// ADCValue is the "raw" ADC reading as seen by the rest of the firmware.
// Convention here: 16-bit value, even if underlying hardware is 12 bits.
type ADCValue uint16

// ADCConfig is the high-level config the core cares about.
type ADCConfig struct {
	// ReferenceMillivolts is the full-scale input voltage.
	ReferenceMillivolts uint32
	// Resolution is the native converter resolution in bits.
	Resolution uint32
}

// ADCDriver is the abstract ADC interface that core code uses.
type ADCDriver interface {
	// Init powers up and configures the ADC peripheral.
	Init(cfg ADCConfig) error

	// ConfigureChannel prepares a channel for analog input.
	// For pin-muxed channels, this should set pin to analog mode.
	ConfigureChannel(ch ADCChannelID) error

	// ReadRaw performs a one-shot sample from the given channel.
	// Returns a 16-bit scaled value (e.g. 12-bit HW value left-shifted).
	ReadRaw(ch ADCChannelID) (ADCValue, error)
}

// ScaleTo16 left-aligns a sample of the given resolution to 16 bits.
func ScaleTo16(raw uint32, resolution uint32) ADCValue {
	if resolution >= 16 {
		return ADCValue(raw >> (resolution - 16))
	}
	return ADCValue(raw << (16 - resolution))
}
