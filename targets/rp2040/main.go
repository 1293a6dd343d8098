//go:build rp2040

package main

import (
	"context"
	_ "embed"
	"fmt"
	"machine"
	"time"

	"gofoc/config"
	"gofoc/core"
	"gofoc/inverter"
	"gofoc/motor"
	"gofoc/protocol"
	"gofoc/sense"
	"gofoc/telemetry"
)

//go:embed board.json
var boardJSON []byte

// Debug text goes to UART0 so it never interleaves with telemetry frames
// on the USB port.
func initDebugUART() {
	uart := machine.UART0
	_ = uart.Configure(machine.UARTConfig{BaudRate: 115200, TX: machine.UART0_TX_PIN, RX: machine.UART0_RX_PIN})
	core.SetDebugWriter(func(s string) {
		_, _ = uart.Write([]byte(s))
		_, _ = uart.Write([]byte("\r\n"))
	})
	core.InitAsyncDebug()
}

func main() {
	// Disarm any watchdog left running by the previous image.
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	initDebugUART()
	log := core.NewDebugLogger("", core.LevelInfo)

	board, err := config.LoadConfig(boardJSON)
	if err != nil {
		halt(log, fmt.Errorf("board config: %w", err))
	}
	sys, err := setup(board, log)
	if err != nil {
		halt(log, err)
	}
	log.Infof("%s: %d Hz pwm, telemetry every %v", board.Name, board.PWM.FrequencyHz, board.TelemetryPeriod())

	// System.Run only returns once a task has given up for good.
	if err := sys.Run(context.Background()); err != nil {
		halt(log, err)
	}
}

// setup brings up the peripherals in dependency order: the inverter first
// so the outputs are held off, then the PWM carrier and its sample trigger,
// then the sensors.
func setup(board *config.Board, log motor.Logger) (*motor.System, error) {
	invCfg, err := board.InverterConfig()
	if err != nil {
		return nil, err
	}
	curCfg, err := board.CurrentConfig()
	if err != nil {
		return nil, err
	}
	conv, err := board.Conversion()
	if err != nil {
		return nil, err
	}

	pwm := NewRP2040PWMDriver()
	inv, err := inverter.New(pwm, NewRPGPIODriver(), invCfg)
	if err != nil {
		return nil, fmt.Errorf("inverter: %w", err)
	}
	pwm.Align()
	trigger := NewPIOTrigger()
	if err := trigger.Start(pwm.PeriodCycles()); err != nil {
		return nil, fmt.Errorf("pwm trigger: %w", err)
	}

	adc := NewRPAdcDriver()
	if err := adc.Init(core.ADCConfig{ReferenceMillivolts: board.CurrentSense.VrefMillivolts, Resolution: adcBits}); err != nil {
		return nil, err
	}
	cur, err := sense.NewADCCurrentReader(adc, curCfg, conv)
	if err != nil {
		return nil, fmt.Errorf("current sense: %w", err)
	}
	enc, err := newEncoder(board.Encoder)
	if err != nil {
		return nil, err
	}

	m := motor.New(hardwareClock{})
	sys := &motor.System{
		Motor:   m,
		Angle:   enc,
		Current: cur,
		Driver:  inv,
		Trigger: trigger,
		Config:  board.MotorConfig(),
		Log:     log,
	}
	if board.Telemetry.Enabled {
		pub := telemetry.NewPublisher(m, protocol.NewSender(usbWriter{}), board.Name, board.TelemetryPeriod(), log)
		sys.Reporters = append(sys.Reporters, pub.Reporter())
	}
	return sys, nil
}

// halt dumps the timing ring, then reports err once a second forever. The
// inverter is either not yet configured or was disabled by System.Run on the
// way out.
func halt(log motor.Logger, err error) {
	core.DumpTimingRing()
	for {
		log.Errorf("halted: %v", err)
		time.Sleep(time.Second)
	}
}
