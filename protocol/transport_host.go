package protocol

import (
	"context"
	"errors"
	"io"
	"time"
)

// MessageHandler is called for every valid frame. The payload is only valid
// for the duration of the call.
type MessageHandler func(msg *Message)

// ReceiverStats counts what the receiver discarded.
type ReceiverStats struct {
	Frames     uint32
	CRCErrors  uint32
	Resyncs    uint32
	Dropped    uint32 // frames missing from the sequence
	BytesTotal uint64
}

// Receiver parses frames out of a byte stream on the host side.
type Receiver struct {
	inputBuffer    *FifoBuffer
	isSynchronized bool
	haveSeq        bool
	lastSeq        uint8
	handler        MessageHandler
	stats          ReceiverStats
}

// NewReceiver returns a Receiver dispatching to handler.
func NewReceiver(handler MessageHandler) *Receiver {
	return &Receiver{
		inputBuffer:    NewFifoBuffer(4 * MessageMax),
		isSynchronized: true,
		handler:        handler,
	}
}

// Feed consumes raw bytes and dispatches every complete frame.
func (r *Receiver) Feed(data []byte) {
	r.stats.BytesTotal += uint64(len(data))
	for len(data) > 0 {
		n := r.inputBuffer.Write(data)
		data = data[n:]
		r.processMessages()
		if n == 0 && r.inputBuffer.Free() == 0 {
			// A full buffer without a frame is garbage.
			r.inputBuffer.Reset()
			r.setSynchronized(false)
		}
	}
}

// ReadFrom feeds the receiver from port until ctx is done or the port
// reports EOF. Read errors other than EOF back off briefly and retry.
func (r *Receiver) ReadFrom(ctx context.Context, port io.Reader) error {
	buffer := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Read(buffer)
		if n > 0 {
			r.Feed(buffer[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// Stats returns the receive counters.
func (r *Receiver) Stats() ReceiverStats {
	return r.stats
}

// processMessages parses and dispatches messages from the input buffer
func (r *Receiver) processMessages() {
	data := r.inputBuffer.Data()

	for len(data) > 0 {
		if !r.isSynchronized {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}

			if syncPos >= 0 {
				data = data[syncPos+1:]
				r.setSynchronized(true)
			} else {
				data = nil
			}
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			r.setSynchronized(false)
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			r.setSynchronized(false)
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			r.setSynchronized(false)
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			r.stats.CRCErrors++
			r.setSynchronized(false)
			continue
		}

		msg := &Message{
			Length:   data[MessagePositionLen],
			Sequence: seq,
			Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
			CRC:      frameCRC,
		}
		data = data[msgLen:]
		r.track(seq & MessageSeqMask)
		if r.handler != nil {
			r.handler(msg)
		}
	}

	consumed := r.inputBuffer.Available() - len(data)
	if consumed > 0 {
		r.inputBuffer.Pop(consumed)
	}
}

func (r *Receiver) track(seq uint8) {
	r.stats.Frames++
	if r.haveSeq {
		gap := (seq - r.lastSeq - 1) & MessageSeqMask
		r.stats.Dropped += uint32(gap)
	}
	r.lastSeq = seq
	r.haveSeq = true
}

func (r *Receiver) setSynchronized(val bool) {
	if !val && r.isSynchronized {
		r.stats.Resyncs++
	}
	r.isSynchronized = val
}
