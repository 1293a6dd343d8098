package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/aamcrae/config"

	"gofoc/angle"
	"gofoc/host/logger"
	"gofoc/host/serial"
	"gofoc/motor"
	"gofoc/transform"
)

// Settings is the host tool configuration. A settings file looks like:
//
//	[serial]
//	device=auto            # or /dev/ttyACM0
//	baud=115200
//	backend=tarm           # tarm or bugst
//	vid=2E8A               # USB vendor id for auto discovery
//
//	[log]
//	level=info
//	file=/var/log/foc-host.log
//	rotate=10,3,7          # megabytes, backups, days
//
//	[sim]
//	board=board.json       # JSON board description; empty uses the default
//	duration=10s
//	target=velocity,1.5    # torque mA, velocity turns/s, position turns, voltage mV
//	pace=true
type Settings struct {
	Serial *serial.Config
	Log    logger.Options

	Board    string
	Duration time.Duration
	Target   string
	Value    float64
	Pace     bool
}

// DefaultSettings are used for anything neither the file nor the flags set.
func DefaultSettings() *Settings {
	return &Settings{
		Serial:   serial.DefaultConfig(serial.AutoDevice),
		Log:      logger.DefaultOptions(),
		Duration: 10 * time.Second,
		Target:   "velocity",
		Value:    1,
		Pace:     true,
	}
}

// LoadSettings applies the settings file at path over the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	conf, err := config.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	if err := s.apply(conf); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return s, nil
}

func (s *Settings) apply(conf *config.Config) error {
	if sec := conf.GetSection("serial"); sec != nil {
		if v, err := sec.GetArg("device"); err == nil {
			s.Serial.Device = v
		}
		if v, err := sec.GetArg("backend"); err == nil {
			s.Serial.Backend = v
		}
		if v, err := sec.GetArg("vid"); err == nil {
			s.Serial.VendorID = v
		}
		if _, err := sec.GetArg("baud"); err == nil {
			if n, err := sec.Parse("baud", "%d", &s.Serial.Baud); err != nil || n != 1 {
				return fmt.Errorf("serial baud: %v", err)
			}
		}
	}
	if sec := conf.GetSection("log"); sec != nil {
		if v, err := sec.GetArg("level"); err == nil {
			if _, err := logger.ParseLevel(v); err != nil {
				return err
			}
			s.Log.Level = v
		}
		if v, err := sec.GetArg("file"); err == nil {
			s.Log.File = v
		}
		if _, err := sec.GetArg("rotate"); err == nil {
			n, err := sec.Parse("rotate", "%d,%d,%d", &s.Log.MaxSize, &s.Log.MaxBackups, &s.Log.MaxAge)
			if err != nil || n != 3 {
				return fmt.Errorf("log rotate: expected size,backups,days")
			}
		}
	}
	if sec := conf.GetSection("sim"); sec != nil {
		if v, err := sec.GetArg("board"); err == nil {
			s.Board = v
		}
		if v, err := sec.GetArg("duration"); err == nil {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("sim duration: %v", err)
			}
			s.Duration = d
		}
		if v, err := sec.GetArg("target"); err == nil {
			kind, value, ok := strings.Cut(v, ",")
			s.Target = strings.TrimSpace(kind)
			if ok {
				if _, err := fmt.Sscanf(strings.TrimSpace(value), "%g", &s.Value); err != nil {
					return fmt.Errorf("sim target value: %v", err)
				}
			}
		}
		if v, err := sec.GetArg("pace"); err == nil {
			s.Pace = v == "true" || v == "1" || v == "yes"
		}
	}
	return nil
}

// TargetCommand converts a target kind and value into a motor command.
// Velocity is in turns per second and position in turns.
func TargetCommand(kind string, value float64) (motor.ControlCommand, error) {
	switch strings.ToLower(kind) {
	case "zero", "off":
		return motor.SetTargetZero(), nil
	case "torque":
		return motor.SetTargetTorque(transform.Milliamps(clamp16(value))), nil
	case "voltage":
		return motor.SetTargetVoltage(transform.DQ{Q: int16(clamp16(value))}), nil
	case "velocity":
		return motor.SetTargetVelocity(angle.MechanicalVelocity(value * angle.FullTurn)), nil
	case "position":
		return motor.SetTargetPosition(angle.MechanicalFromRaw(uint16(int64(value*angle.FullTurn) & 0xFFFF))), nil
	case "calibrate":
		return motor.CalibrateShaft(), nil
	}
	return motor.ControlCommand{}, fmt.Errorf("unknown target %q", kind)
}

func clamp16(v float64) float64 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
