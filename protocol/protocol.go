// Package protocol implements the framed binary link between the controller
// and the host: VLQ integers, CRC16 and sync-delimited frames.
package protocol

// Version is the firmware version reported in the identify message.
const Version = "0.1.0"

// Frame layout: length, sequence, payload, CRC16 (big endian), sync.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 96
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// MessageMax is the scratch buffer size; it holds one frame with room
	// to spare.
	MessageMax = 2 * MessageLengthMax

	// The upper nibble of the sequence byte marks a frame, the lower nibble
	// counts frames modulo 16.
	MessageDest     = 0x10
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// Message identifiers, the first VLQ of every payload.
const (
	MsgIdentify uint16 = 1 // version string, board name string
	MsgSnapshot uint16 = 2 // telemetry snapshot
	MsgEvent    uint16 = 3 // timing event: kind, time, value
)

// Message is a validated frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// ID decodes the message identifier and returns the remaining arguments.
func (m *Message) ID() (uint16, []byte, error) {
	data := m.Payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), data, nil
}
