package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gofoc/calibration"
	"gofoc/core"
	"gofoc/motor"
	"gofoc/protocol"
	"gofoc/telemetry"
)

type capture struct {
	bytes.Buffer
	closed bool
}

func (c *capture) Close() error {
	c.closed = true
	return nil
}

func send(t *testing.T, s *protocol.Sender, snap telemetry.Snapshot) {
	t.Helper()
	if err := s.SendMessage(protocol.MsgSnapshot, snap.Encode); err != nil {
		t.Fatal(err)
	}
}

func TestMonitorLogsTransitions(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	link := &capture{}
	sender := protocol.NewSender(link)
	if err := sender.SendIdentify("bench"); err != nil {
		t.Fatal(err)
	}

	idle := telemetry.Snapshot{State: motor.KindIdle}
	cal := telemetry.Snapshot{State: motor.KindPowered, Mode: motor.ModeShaftCalibration, Stage: motor.StageMeasuringSlow}
	aborted := idle
	aborted.Outcome = calibration.OutcomeOffsetOverflow
	for _, s := range []telemetry.Snapshot{idle, idle, cal, aborted} {
		send(t, sender, s)
	}
	err := sender.SendMessage(protocol.MsgEvent, func(out protocol.OutputBuffer) {
		telemetry.EncodeEvent(out, core.TimingEvent{EventType: core.EvtTriggerLate, Clock: 10, Value: 3})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.SendMessage(42, nil); err != nil {
		t.Fatal(err)
	}

	var seen int
	m := New(link, zap.New(obs))
	m.OnSnapshot = func(telemetry.Snapshot) { seen++ }
	if err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	id, ok := m.Identity()
	if !ok || id.Board != "bench" {
		t.Errorf("identity %+v %v", id, ok)
	}
	c := m.Counts()
	if c.Snapshots != 4 || seen != 4 || c.Events != 1 || c.DecodeErrors != 1 || c.Transitions != 3 {
		t.Errorf("counts %+v, callback %d", c, seen)
	}
	if latest, ok := m.Latest(); !ok || latest.Outcome != calibration.OutcomeOffsetOverflow {
		t.Errorf("latest %+v", latest)
	}

	if n := logs.FilterMessage("state").Len(); n != 3 {
		t.Errorf("logged %d state lines", n)
	}
	if n := logs.FilterMessage("shaft calibration aborted").FilterLevelExact(zap.ErrorLevel).Len(); n != 1 {
		t.Errorf("logged %d abort lines", n)
	}
	if n := logs.FilterField(zap.String("kind", "TRIGGER_LATE")).Len(); n != 1 {
		t.Errorf("logged %d trigger events", n)
	}
	for _, e := range logs.All() {
		if _, ok := e.ContextMap()["session"]; !ok {
			t.Errorf("record %q has no session id", e.Message)
		}
	}

	if err := m.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if !link.closed {
		t.Errorf("port not closed")
	}
}

type failingPort struct{ io.Reader }

func (failingPort) Close() error { return errors.New("already gone") }

func TestCloseReportsPortError(t *testing.T) {
	m := New(failingPort{bytes.NewReader(nil)}, zap.NewNop())
	if err := m.Close(); err == nil {
		t.Errorf("close error lost")
	}
}

func TestMonitorAsSenderSink(t *testing.T) {
	m := New(&capture{}, zap.NewNop())
	sender := protocol.NewSender(m)
	if err := sender.SendIdentify("sim"); err != nil {
		t.Fatal(err)
	}
	send(t, sender, telemetry.Snapshot{State: motor.KindIdle, PolePairs: 7})
	if id, ok := m.Identity(); !ok || id.Board != "sim" {
		t.Errorf("identity %+v %v", id, ok)
	}
	if s, ok := m.Latest(); !ok || s.PolePairs != 7 {
		t.Errorf("latest %+v %v", s, ok)
	}
}
