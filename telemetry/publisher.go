package telemetry

import (
	"sync"
	"time"

	"gofoc/core"
	"gofoc/motor"
	"gofoc/protocol"
)

// Source supplies snapshots; *motor.Motor implements it.
type Source interface {
	Snapshot() motor.MotorSnapshot
}

// Publisher sends a snapshot every period, followed by any timing events
// recorded since the previous one.
type Publisher struct {
	mu       sync.Mutex
	source   Source
	sender   *protocol.Sender
	board    string
	period   time.Duration
	log      motor.Logger
	eventPos uint32
	greeted  bool
	failures uint32
}

// NewPublisher returns a publisher for source writing through sender.
func NewPublisher(source Source, sender *protocol.Sender, board string, period time.Duration, log motor.Logger) *Publisher {
	return &Publisher{
		source: source,
		sender: sender,
		board:  board,
		period: period,
		log:    log,
	}
}

// Publish sends one round of telemetry. The identify message goes out
// before the first snapshot.
func (p *Publisher) Publish(now core.Instant) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.greeted {
		if err := p.sender.SendIdentify(p.board); err != nil {
			p.fail(err)
			return
		}
		p.greeted = true
	}

	snap := FromMotor(p.source.Snapshot())
	if err := p.sender.SendMessage(protocol.MsgSnapshot, snap.Encode); err != nil {
		p.fail(err)
		return
	}

	var events []core.TimingEvent
	events, p.eventPos = core.TimingEventsSince(p.eventPos)
	for _, e := range events {
		e := e
		err := p.sender.SendMessage(protocol.MsgEvent, func(out protocol.OutputBuffer) {
			EncodeEvent(out, e)
		})
		if err != nil {
			p.fail(err)
			return
		}
	}
	p.failures = 0
}

// fail logs only the first of consecutive failures.
func (p *Publisher) fail(err error) {
	if p.failures == 0 && p.log != nil {
		p.log.Warnf("telemetry: %v", err)
	}
	p.failures++
}

// Reporter schedules Publish on the control scheduler.
func (p *Publisher) Reporter() motor.Reporter {
	return motor.Reporter{Name: "telemetry", Period: p.period, Report: p.Publish}
}
