package motor

import (
	"sync"

	"gofoc/angle"
	"gofoc/transform"
)

// CommandKind identifies a control request.
type CommandKind uint8

const (
	CmdCalibrateShaft CommandKind = iota
	CmdSetTarget
)

// ControlCommand is a request posted to the motor from outside the control
// loop.
type ControlCommand struct {
	Kind   CommandKind
	Target Target
}

// CalibrateShaft runs the open-loop sweep that finds the pole pairs, offset
// and sensor latency.
func CalibrateShaft() ControlCommand {
	return ControlCommand{Kind: CmdCalibrateShaft}
}

// SetTargetZero regulates both current axes to zero, leaving the rotor free.
func SetTargetZero() ControlCommand {
	return ControlCommand{Kind: CmdSetTarget, Target: Target{Kind: TargetZero}}
}

// SetTargetVoltage applies a fixed d/q voltage in millivolts.
func SetTargetVoltage(v transform.DQ) ControlCommand {
	return ControlCommand{Kind: CmdSetTarget, Target: Target{Kind: TargetVoltage, Voltage: v}}
}

// SetTargetTorque regulates the q-axis current.
func SetTargetTorque(q transform.Milliamps) ControlCommand {
	return ControlCommand{Kind: CmdSetTarget, Target: Target{Kind: TargetTorque, Torque: q}}
}

// SetTargetVelocity regulates shaft speed through the current loop.
func SetTargetVelocity(v angle.MechanicalVelocity) ControlCommand {
	return ControlCommand{Kind: CmdSetTarget, Target: Target{Kind: TargetVelocity, Velocity: v}}
}

// SetTargetPosition holds a shaft angle, limited to MaxVelocity.
func SetTargetPosition(p angle.Mechanical) ControlCommand {
	return ControlCommand{Kind: CmdSetTarget, Target: Target{Kind: TargetPosition, Position: p}}
}

// mailbox is a single-slot command holder. A newer command replaces an
// unconsumed one.
type mailbox struct {
	mu     sync.Mutex
	cmd    ControlCommand
	full   bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// post stores cmd and reports whether it replaced a pending command.
func (b *mailbox) post(cmd ControlCommand) bool {
	b.mu.Lock()
	replaced := b.full
	b.cmd = cmd
	b.full = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return replaced
}

func (b *mailbox) take() (ControlCommand, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return ControlCommand{}, false
	}
	b.full = false
	return b.cmd, true
}

func (b *mailbox) peek() (ControlCommand, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd, b.full
}
