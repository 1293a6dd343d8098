//go:build rp2040

package main

import (
	"context"
	"runtime"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// The trigger program pushes one word to the RX FIFO per PWM period. Y
// holds the loop count; one pass costs Y+3 cycles.
//
//	0: mov x, y
//	1: jmp x--, 1
//	2: push noblock
func buildTriggerProgram() []uint16 {
	return []uint16{
		rp2pio.EncodeMov(rp2pio.SrcDestX, rp2pio.SrcDestY),
		rp2pio.EncodeJmp(1, rp2pio.JmpXNZeroDec),
		rp2pio.EncodePush(false, false),
	}
}

const (
	triggerOrigin   = 0
	triggerOverhead = 3
)

// PIOTrigger implements motor.Trigger. A PIO state machine clocked from the
// system clock counts PWM periods in lock step with the slices, so the
// current task wakes at a fixed point of every carrier cycle.
type PIOTrigger struct {
	pio *rp2pio.PIO
	sm  rp2pio.StateMachine
}

func NewPIOTrigger() *PIOTrigger {
	pio := rp2pio.PIO0
	return &PIOTrigger{pio: pio, sm: pio.StateMachine(0)}
}

// Start loads the program and runs it with the given PWM period in system
// clock cycles.
func (t *PIOTrigger) Start(periodCycles uint32) error {
	t.sm.TryClaim()
	program := buildTriggerProgram()
	offset, err := t.pio.AddProgram(program, triggerOrigin)
	if err != nil {
		return err
	}

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset, offset+uint8(len(program))-1)
	cfg.SetClkDivIntFrac(1, 0)
	cfg.SetFIFOJoin(rp2pio.FifoJoinRx)

	t.sm.Init(offset, cfg)
	t.sm.SetY(periodCycles - triggerOverhead)
	t.sm.SetEnabled(true)
	return nil
}

// Wait blocks until at least one period boundary is queued and drains the
// FIFO. Every extra word is a boundary the caller missed.
func (t *PIOTrigger) Wait(ctx context.Context) (uint32, error) {
	for {
		if n := t.sm.RxFIFOLevel(); n > 0 {
			for i := uint32(0); i < n; i++ {
				t.sm.RxGet()
			}
			return n - 1, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		runtime.Gosched()
	}
}
