//go:build rp2040

package main

import (
	"fmt"
	"machine"

	"gofoc/config"
	"gofoc/sense"
)

// configureEncoderBus starts the I2C controller that owns the configured
// SDA pin. On the RP2040 GPIO N belongs to I2C0 when (N/2) is even.
func configureEncoderBus(cfg config.EncoderConfig) (*machine.I2C, error) {
	sda, err := config.ParsePin(cfg.SDAPin)
	if err != nil {
		return nil, err
	}
	scl, err := config.ParsePin(cfg.SCLPin)
	if err != nil {
		return nil, err
	}
	bus := machine.I2C0
	if (sda/2)%2 == 1 {
		bus = machine.I2C1
	}
	if (scl/2)%2 != (sda/2)%2 {
		return nil, fmt.Errorf("encoder pins %s/%s are on different I2C controllers", cfg.SDAPin, cfg.SCLPin)
	}
	err = bus.Configure(machine.I2CConfig{
		Frequency: cfg.FrequencyHz,
		SDA:       machine.Pin(sda),
		SCL:       machine.Pin(scl),
	})
	if err != nil {
		return nil, err
	}
	return bus, nil
}

func newEncoder(cfg config.EncoderConfig) (*sense.AS5600Reader, error) {
	bus, err := configureEncoderBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoder bus: %w", err)
	}
	enc, err := sense.NewAS5600Reader(bus)
	if err != nil {
		return nil, err
	}
	enc.Invert = cfg.Invert
	return enc, nil
}
