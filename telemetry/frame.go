// Package telemetry streams motor snapshots and timing events over the
// framed link, and decodes them again on the host.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"gofoc/angle"
	"gofoc/calibration"
	"gofoc/core"
	"gofoc/fixed"
	"gofoc/motor"
	"gofoc/protocol"
	"gofoc/transform"
)

var (
	ErrUnknownMessage = errors.New("telemetry: unknown message")
	ErrShortSnapshot  = errors.New("telemetry: truncated snapshot")
)

// Flag bits of a snapshot.
const (
	FlagShaftValid uint32 = 1 << iota
	FlagCurrentValid
	FlagOutputsDisabled
	FlagPendingCommand
)

// Snapshot is the wire form of motor.MotorSnapshot: flat and fixed width,
// with the time truncated to 32 bits of microseconds.
type Snapshot struct {
	TimeUs    uint32
	StateAtUs uint32

	State   motor.Kind
	Phase   transform.Phase
	Mode    motor.PoweredMode
	Stage   motor.CalibrationStage
	Target  motor.TargetKind
	Outcome calibration.Outcome
	Flags   uint32

	Mechanical uint16
	Electrical angle.Electrical
	Velocity   angle.MechanicalVelocity

	Current transform.PhaseCurrent
	Voltage transform.DQ
	Duties  transform.Duties

	Zeros     [3]uint16
	Offset    angle.Electrical
	PolePairs int16
	DelayUs   uint32
}

// FromMotor flattens a motor snapshot.
func FromMotor(s motor.MotorSnapshot) Snapshot {
	st := s.State.State
	out := Snapshot{
		TimeUs:     uint32(s.Time),
		StateAtUs:  uint32(s.State.SetAt),
		State:      st.Kind,
		Phase:      st.Phase,
		Mode:       st.Mode,
		Stage:      st.Calibration.Stage,
		Target:     st.Target.Kind,
		Outcome:    s.CalibrationOutcome,
		Mechanical: s.Shaft.Angle.Raw(),
		Electrical: s.Shaft.Electrical,
		Velocity:   s.Shaft.MechanicalVelocity,
		Current:    s.Current.Current,
		Voltage:    s.Output.Voltage,
		Duties:     s.Output.Duties,
		Zeros:      s.CurrentZeros,
		Offset:     s.Shaft.Calibration.Offset,
		PolePairs:  s.Shaft.Calibration.PolePairs,
		DelayUs:    uint32(s.Shaft.Calibration.MeasurementDelay / time.Microsecond),
	}
	if s.Shaft.Valid {
		out.Flags |= FlagShaftValid
	}
	if s.Current.Valid {
		out.Flags |= FlagCurrentValid
	}
	if s.Output.Disabled {
		out.Flags |= FlagOutputsDisabled
	}
	if s.PendingCommand {
		out.Flags |= FlagPendingCommand
	}
	return out
}

// Has reports whether flag is set.
func (s Snapshot) Has(flag uint32) bool { return s.Flags&flag != 0 }

// StateLabel names the state with its phase, stage or target.
func (s Snapshot) StateLabel() string {
	label := s.State.String()
	switch s.State {
	case motor.KindInitializing:
		label += " " + s.Phase.String()
	case motor.KindPowered:
		if s.Mode == motor.ModeShaftCalibration {
			label += " calibrating " + s.Stage.String()
		} else {
			label += " " + s.Target.String()
		}
	}
	return label
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s theta=%d i=[%d %d %d]mA v=[%d %d]mV", s.StateLabel(), s.Electrical, s.Current.A, s.Current.B, s.Current.C, s.Voltage.D, s.Voltage.Q)
}

// Encode writes the snapshot arguments, without the message id.
func (s Snapshot) Encode(out protocol.OutputBuffer) {
	u := func(v uint32) { protocol.EncodeVLQUint(out, v) }
	i := func(v int32) { protocol.EncodeVLQInt(out, v) }

	u(s.TimeUs)
	u(s.StateAtUs)
	u(uint32(s.State))
	u(uint32(s.Phase))
	u(uint32(s.Mode))
	u(uint32(s.Stage))
	u(uint32(s.Target))
	u(uint32(s.Outcome))
	u(s.Flags)
	u(uint32(s.Mechanical))
	u(uint32(s.Electrical))
	i(int32(s.Velocity))
	i(int32(s.Current.A))
	i(int32(s.Current.B))
	i(int32(s.Current.C))
	i(int32(s.Voltage.D))
	i(int32(s.Voltage.Q))
	i(int32(s.Duties.A))
	i(int32(s.Duties.B))
	i(int32(s.Duties.C))
	for _, z := range s.Zeros {
		u(uint32(z))
	}
	u(uint32(s.Offset))
	i(int32(s.PolePairs))
	u(s.DelayUs)
}

// DecodeSnapshot parses the arguments of a snapshot message.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	var err error
	u := func() uint32 {
		if err != nil {
			return 0
		}
		var v uint32
		v, err = protocol.DecodeVLQUint(&data)
		return v
	}
	i := func() int32 { return int32(u()) }

	s.TimeUs = u()
	s.StateAtUs = u()
	s.State = motor.Kind(u())
	s.Phase = transform.Phase(u())
	s.Mode = motor.PoweredMode(u())
	s.Stage = motor.CalibrationStage(u())
	s.Target = motor.TargetKind(u())
	s.Outcome = calibration.Outcome(u())
	s.Flags = u()
	s.Mechanical = uint16(u())
	s.Electrical = angle.Electrical(u())
	s.Velocity = angle.MechanicalVelocity(i())
	s.Current.A = transform.Milliamps(i())
	s.Current.B = transform.Milliamps(i())
	s.Current.C = transform.Milliamps(i())
	s.Voltage.D = int16(i())
	s.Voltage.Q = int16(i())
	s.Duties.A = fixed.I16F16(i())
	s.Duties.B = fixed.I16F16(i())
	s.Duties.C = fixed.I16F16(i())
	for k := range s.Zeros {
		s.Zeros[k] = uint16(u())
	}
	s.Offset = angle.Electrical(u())
	s.PolePairs = int16(i())
	s.DelayUs = u()

	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrShortSnapshot, err)
	}
	return s, nil
}

// Event is a timing event as carried on the link.
type Event struct {
	Kind    uint8
	ClockUs uint32
	Value   uint32
}

func (e Event) String() string {
	return fmt.Sprintf("%s clock=%d v=%d", core.TimingEventName(e.Kind), e.ClockUs, e.Value)
}

// EncodeEvent writes the arguments of an event message.
func EncodeEvent(out protocol.OutputBuffer, e core.TimingEvent) {
	protocol.EncodeVLQUint(out, uint32(e.EventType))
	protocol.EncodeVLQUint(out, e.Clock)
	protocol.EncodeVLQUint(out, e.Value)
}

// DecodeEvent parses the arguments of an event message.
func DecodeEvent(data []byte) (Event, error) {
	kind, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return Event{}, err
	}
	clock, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return Event{}, err
	}
	value, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: uint8(kind), ClockUs: clock, Value: value}, nil
}

// Identity is the content of an identify message.
type Identity struct {
	Version string
	Board   string
}

// Decoded is one received message; exactly one field is set.
type Decoded struct {
	Identity *Identity
	Snapshot *Snapshot
	Event    *Event
}

// Decode parses any telemetry message.
func Decode(msg *protocol.Message) (Decoded, error) {
	id, args, err := msg.ID()
	if err != nil {
		return Decoded{}, err
	}
	switch id {
	case protocol.MsgIdentify:
		version, err := protocol.DecodeVLQString(&args)
		if err != nil {
			return Decoded{}, err
		}
		board, err := protocol.DecodeVLQString(&args)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Identity: &Identity{Version: version, Board: board}}, nil
	case protocol.MsgSnapshot:
		s, err := DecodeSnapshot(args)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Snapshot: &s}, nil
	case protocol.MsgEvent:
		e, err := DecodeEvent(args)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Event: &e}, nil
	}
	return Decoded{}, fmt.Errorf("id %d: %w", id, ErrUnknownMessage)
}
