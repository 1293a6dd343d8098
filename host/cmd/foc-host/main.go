package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gofoc/config"
	"gofoc/core"
	"gofoc/host/logger"
	"gofoc/host/monitor"
	"gofoc/host/serial"
	"gofoc/host/sim"
	"gofoc/motor"
	"gofoc/protocol"
	"gofoc/telemetry"
)

var (
	settingsFile = flag.String("config", "", "Settings file")
	device       = flag.String("device", "", "Serial device path, or \"auto\"")
	backend      = flag.String("backend", "", "Serial library: tarm or bugst")
	level        = flag.String("level", "", "Log level")
	logFile      = flag.String("log", "", "Log file")
	boardFile    = flag.String("board", "", "JSON board description for sim")
	duration     = flag.Duration("duration", 0, "Simulated run time after calibration")
	target       = flag.String("target", "", "Sim target: zero, torque, voltage, velocity, position")
	value        = flag.Float64("value", 0, "Sim target value")
	noPace       = flag.Bool("fast", false, "Run the simulation as fast as possible")
	listPorts    = flag.Bool("list", false, "List serial ports and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] monitor|sim\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  monitor   log the telemetry stream of a connected controller")
	fmt.Fprintln(os.Stderr, "  sim       run the controller against a simulated motor")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	s, err := LoadSettings(*settingsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	overrideSettings(s)

	if *listPorts {
		ports, err := serial.Ports()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Printf("%-20s usb=%v vid=%s pid=%s serial=%s %s\n", p.Name, p.IsUSB, p.VID, p.PID, p.Serial, p.Product)
		}
		return
	}

	log, err := logger.New(s.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "monitor":
		err = runMonitor(ctx, s, log)
	case "sim":
		err = runSim(ctx, s, log)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("exiting", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// overrideSettings applies the flags given on the command line.
func overrideSettings(s *Settings) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			s.Serial.Device = *device
		case "backend":
			s.Serial.Backend = *backend
		case "level":
			s.Log.Level = *level
		case "log":
			s.Log.File = *logFile
		case "board":
			s.Board = *boardFile
		case "duration":
			s.Duration = *duration
		case "target":
			s.Target = *target
		case "value":
			s.Value = *value
		case "fast":
			s.Pace = !*noPace
		}
	})
}

func runMonitor(ctx context.Context, s *Settings, log *zap.Logger) error {
	m, err := monitor.Connect(s.Serial, log)
	if err != nil {
		return err
	}
	log.Info("connected", zap.String("device", s.Serial.Device), zap.String("backend", s.Serial.Backend))
	m.OnSnapshot = func(snap telemetry.Snapshot) {
		fmt.Printf("%10d %s\n", snap.TimeUs, snap)
	}
	runErr := m.Run(ctx)
	if err := m.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func loadBoard(path string) (*config.Board, error) {
	if path == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	board, err := config.LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return board, nil
}

// runSim starts the simulated controller, calibrates the shaft and then
// holds the configured target. Telemetry loops back into a monitor so the
// run logs exactly as a serial session would.
func runSim(ctx context.Context, s *Settings, log *zap.Logger) error {
	cmd, err := TargetCommand(s.Target, s.Value)
	if err != nil {
		return err
	}
	board, err := loadBoard(s.Board)
	if err != nil {
		return err
	}
	r, err := sim.NewRunner(board, sim.FromBoard(board), log.Named("firmware").Sugar())
	if err != nil {
		return err
	}

	mon := monitor.New(io.NopCloser(strings.NewReader("")), log.Named("monitor"))
	defer mon.Close()
	if board.Telemetry.Enabled {
		pub := telemetry.NewPublisher(r.Motor, protocol.NewSender(mon), board.Name, board.TelemetryPeriod(), log.Named("telemetry").Sugar())
		if err := r.AddReporter(pub.Reporter()); err != nil {
			return err
		}
	}
	core.ClearTimingRing()

	log.Info("simulation started", zap.String("board", board.Name), zap.Int("pole_pairs", r.Plant.Params().PolePairs))
	idle := func() bool { return r.State().Kind == motor.KindIdle }
	if !r.RunUntil(idle, 5*time.Second) {
		return fmt.Errorf("start-up did not reach idle: %s", r.State())
	}
	if cmd.Kind != motor.CmdCalibrateShaft {
		r.Motor.PostCommand(motor.CalibrateShaft())
		r.RunFor(10 * time.Millisecond)
		if !r.RunUntil(idle, 30*time.Second) {
			return fmt.Errorf("shaft calibration did not finish: %s", r.State())
		}
		c := r.Motor.ShaftCalibration()
		log.Info("calibrated",
			zap.Stringer("outcome", r.Motor.ShaftCalibrationOutcome()),
			zap.Int16("pole_pairs", c.PolePairs),
			zap.Uint16("offset", c.Offset.Raw()),
			zap.Uint16("expected", r.Plant.ExpectedOffset().Raw()),
			zap.Duration("delay", c.MeasurementDelay))
	}

	r.Motor.PostCommand(cmd)
	runCtx, cancel := context.WithTimeout(ctx, s.Duration)
	defer cancel()
	if !s.Pace {
		// Without pacing the deadline is in simulated time.
		r.RunFor(s.Duration)
	} else if err := r.Run(runCtx, true); err != nil {
		return err
	}

	st := r.Plant.State()
	angleErrs, currentErrs := r.Errors()
	log.Info("simulation finished",
		zap.Float64("speed_turns_s", st.Velocity/(2*math.Pi)),
		zap.Float64("iq_a", st.Q),
		zap.Float64("id_a", st.D),
		zap.Uint32("angle_errors", angleErrs),
		zap.Uint32("current_errors", currentErrs))
	return nil
}
