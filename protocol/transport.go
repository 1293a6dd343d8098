package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrMessageTooLong = errors.New("protocol: message too long")

// EncodeFrame writes one frame to output: header, the payload written by
// frameData, CRC and sync byte.
func EncodeFrame(output OutputBuffer, seq uint8, frameData func(output OutputBuffer)) error {
	cursor := output.CurPosition()

	// Length placeholder and sequence
	output.Output([]byte{0, MessageDest | seq&MessageSeqMask})

	frameData(output)

	changed := len(output.DataSince(cursor))
	if changed+MessageTrailerSize > MessageLengthMax {
		return fmt.Errorf("%d bytes: %w", changed+MessageTrailerSize, ErrMessageTooLong)
	}
	output.Update(cursor, uint8(changed+MessageTrailerSize))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return nil
}

// Sender frames outbound messages onto a byte stream. The link is one way:
// the receiver never acknowledges, so the sequence only lets it count
// dropped frames.
type Sender struct {
	mu      sync.Mutex
	out     io.Writer
	scratch ScratchOutput
	seq     uint8

	sent    uint32
	dropped uint32
}

// NewSender returns a Sender writing to out.
func NewSender(out io.Writer) *Sender {
	return &Sender{out: out}
}

// SendMessage encodes msgID and its arguments into one frame and writes it.
// A failed write drops the frame; the sequence still advances so the
// receiver sees the gap.
func (s *Sender) SendMessage(msgID uint16, args func(output OutputBuffer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scratch.Reset()
	err := EncodeFrame(&s.scratch, s.seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(msgID))
		if args != nil {
			args(output)
		}
	})
	if err != nil {
		return err
	}
	s.seq = (s.seq + 1) & MessageSeqMask

	frame := s.scratch.Result()
	n, err := s.out.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.dropped++
		return err
	}
	s.sent++
	return nil
}

// SendIdentify announces the firmware version and board name.
func (s *Sender) SendIdentify(board string) error {
	return s.SendMessage(MsgIdentify, func(output OutputBuffer) {
		EncodeVLQString(output, Version)
		EncodeVLQString(output, board)
	})
}

// Counts returns the frames written and the frames lost to write errors.
func (s *Sender) Counts() (sent, dropped uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped
}
