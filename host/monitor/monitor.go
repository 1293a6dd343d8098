// Package monitor receives the controller's telemetry stream and logs it.
package monitor

import (
	"context"
	"io"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gofoc/calibration"
	"gofoc/core"
	"gofoc/host/serial"
	"gofoc/motor"
	"gofoc/protocol"
	"gofoc/telemetry"
)

// Monitor is a connection to a controller's telemetry port.
type Monitor struct {
	port     io.ReadCloser
	receiver *protocol.Receiver
	log      *zap.Logger
	session  uuid.UUID

	mu       sync.Mutex
	identity *telemetry.Identity
	latest   telemetry.Snapshot
	have     bool
	counts   Counts

	// OnSnapshot, when set, is called for every snapshot received.
	OnSnapshot func(telemetry.Snapshot)
}

// Counts summarises a session.
type Counts struct {
	Snapshots    uint32
	Events       uint32
	DecodeErrors uint32
	Transitions  uint32
}

// New monitors port. Every log record carries a fresh session id.
func New(port io.ReadCloser, log *zap.Logger) *Monitor {
	m := &Monitor{
		port:    port,
		session: uuid.NewV4(),
	}
	m.log = log.With(zap.String("session", m.session.String()))
	m.receiver = protocol.NewReceiver(m.handle)
	return m
}

// Connect opens the serial port described by cfg and monitors it.
func Connect(cfg *serial.Config, log *zap.Logger) (*Monitor, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port, log), nil
}

// Session returns the id attached to this monitor's log records.
func (m *Monitor) Session() uuid.UUID { return m.session }

// Run reads telemetry until ctx is done or the port closes.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started")
	err := m.receiver.ReadFrom(ctx, m.port)
	st := m.receiver.Stats()
	c := m.Counts()
	m.log.Info("monitor stopped",
		zap.Uint32("frames", st.Frames),
		zap.Uint32("dropped", st.Dropped),
		zap.Uint32("crc_errors", st.CRCErrors),
		zap.Uint32("snapshots", c.Snapshots),
		zap.Uint32("events", c.Events),
		zap.Uint32("decode_errors", c.DecodeErrors))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close closes the port and flushes the log.
func (m *Monitor) Close() error {
	return multierr.Combine(m.port.Close(), m.log.Sync())
}

// Feed hands raw bytes to the receiver, for replaying captured streams.
func (m *Monitor) Feed(data []byte) {
	m.receiver.Feed(data)
}

// Write feeds p to the receiver, so a monitor can be the sink of a
// protocol.Sender in the same process.
func (m *Monitor) Write(p []byte) (int, error) {
	m.receiver.Feed(p)
	return len(p), nil
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() (telemetry.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.have
}

// Identity returns the controller's identify message, if one arrived.
func (m *Monitor) Identity() (telemetry.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return telemetry.Identity{}, false
	}
	return *m.identity, true
}

// Counts returns the message and decode counters so far.
func (m *Monitor) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

func (m *Monitor) handle(msg *protocol.Message) {
	d, err := telemetry.Decode(msg)
	if err != nil {
		m.mu.Lock()
		m.counts.DecodeErrors++
		m.mu.Unlock()
		m.log.Warn("undecodable message", zap.Uint8("seq", msg.Sequence), zap.Error(err))
		return
	}
	switch {
	case d.Identity != nil:
		m.mu.Lock()
		m.identity = d.Identity
		m.mu.Unlock()
		m.log.Info("controller identified",
			zap.String("version", d.Identity.Version),
			zap.String("board", d.Identity.Board))
	case d.Snapshot != nil:
		m.snapshot(*d.Snapshot)
	case d.Event != nil:
		m.mu.Lock()
		m.counts.Events++
		m.mu.Unlock()
		m.log.Warn("timing event",
			zap.String("kind", core.TimingEventName(d.Event.Kind)),
			zap.Uint32("clock_us", d.Event.ClockUs),
			zap.Uint32("value", d.Event.Value))
	}
}

func (m *Monitor) snapshot(s telemetry.Snapshot) {
	m.mu.Lock()
	prev, had := m.latest, m.have
	m.latest, m.have = s, true
	m.counts.Snapshots++
	changed := !had || prev.StateLabel() != s.StateLabel()
	if changed {
		m.counts.Transitions++
	}
	onSnapshot := m.OnSnapshot
	m.mu.Unlock()

	if changed {
		m.log.Info("state", zap.String("state", s.StateLabel()), zap.Uint32("at_us", s.StateAtUs))
	}
	if had && prev.Outcome != s.Outcome && s.Outcome != calibration.OutcomeNone {
		fields := []zap.Field{
			zap.Stringer("outcome", s.Outcome),
			zap.Int16("pole_pairs", s.PolePairs),
			zap.Uint16("offset", uint16(s.Offset)),
			zap.Uint32("delay_us", s.DelayUs),
		}
		if s.Outcome.Aborted() {
			m.log.Error("shaft calibration aborted", fields...)
		} else {
			m.log.Info("shaft calibration committed", fields...)
		}
	}
	if s.Has(telemetry.FlagOutputsDisabled) && !prev.Has(telemetry.FlagOutputsDisabled) && s.State == motor.KindPowered {
		m.log.Warn("outputs disabled while powered")
	}
	m.log.Debug("snapshot", zap.Stringer("motor", s))

	if onSnapshot != nil {
		onSnapshot(s)
	}
}
