//go:build !wasm

package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// Open opens the configured port, discovering it first when Device is
// "auto".
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	device := cfg.Device
	if device == "" || device == AutoDevice {
		info, err := Discover(cfg.VendorID)
		if err != nil {
			return nil, err
		}
		device = info.Name
	}

	switch cfg.Backend {
	case "", BackendTarm:
		return openTarm(device, cfg)
	case BackendBugst:
		return openBugst(device, cfg)
	}
	return nil, fmt.Errorf("unknown serial backend %q", cfg.Backend)
}

func openTarm(device string, cfg *Config) (Port, error) {
	serialConfig := &serial.Config{
		Name:        device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}

	return &NativePort{
		port: port,
		cfg:  cfg,
	}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// BugstPort wraps a go.bug.st/serial port.
type BugstPort struct {
	port bugst.Port
}

func openBugst(device string, cfg *Config) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.Baud,
		Parity:   bugst.NoParity,
		DataBits: 8,
		StopBits: bugst.OneStopBit,
	}
	port, err := bugst.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(time.Duration(cfg.ReadTimeout) * time.Millisecond); err != nil {
			port.Close()
			return nil, fmt.Errorf("read timeout on %s: %w", device, err)
		}
	}
	return &BugstPort{port: port}, nil
}

func (p *BugstPort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *BugstPort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *BugstPort) Close() error                { return p.port.Close() }
func (p *BugstPort) Flush() error                { return p.port.ResetInputBuffer() }

// Ports lists the serial ports the operating system knows about.
func Ports() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:    p.Name,
			IsUSB:   p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	return out, nil
}

// Discover returns the first USB serial port from vendor vid.
func Discover(vid string) (PortInfo, error) {
	ports, err := Ports()
	if err != nil {
		return PortInfo{}, err
	}
	return pick(ports, vid)
}
