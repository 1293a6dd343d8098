package protocol

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type collected struct {
	ids  []uint16
	args [][]byte
	seqs []uint8
}

func (c *collected) handle(msg *Message) {
	id, args, err := msg.ID()
	if err != nil {
		return
	}
	c.ids = append(c.ids, id)
	c.args = append(c.args, append([]byte(nil), args...))
	c.seqs = append(c.seqs, msg.Sequence&MessageSeqMask)
}

func TestEncodeFrameLayout(t *testing.T) {
	out := NewScratchOutput()
	err := EncodeFrame(out, 3, func(o OutputBuffer) { o.Output([]byte{0xAA, 0xBB}) })
	if err != nil {
		t.Fatal(err)
	}
	frame := out.Result()
	if len(frame) != 7 || frame[0] != 7 || frame[1] != MessageDest|3 {
		t.Fatalf("header %x", frame)
	}
	crc := CRC16(frame[:4])
	if frame[4] != byte(crc>>8) || frame[5] != byte(crc) || frame[6] != MessageValueSync {
		t.Errorf("trailer %x, crc %#04x", frame[4:], crc)
	}

	out.Reset()
	err = EncodeFrame(out, 0, func(o OutputBuffer) { o.Output(make([]byte, MessageLengthMax)) })
	if !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("oversized frame gave %v", err)
	}
}

func TestSenderReceiverRoundTrip(t *testing.T) {
	var link bytes.Buffer
	s := NewSender(&link)
	if err := s.SendIdentify("bench"); err != nil {
		t.Fatal(err)
	}
	for i := int32(0); i < 20; i++ {
		v := i * 1000
		if err := s.SendMessage(MsgEvent, func(o OutputBuffer) { EncodeVLQInt(o, v) }); err != nil {
			t.Fatal(err)
		}
	}

	var got collected
	r := NewReceiver(got.handle)
	// Deliver in awkward chunks.
	stream := link.Bytes()
	for len(stream) > 0 {
		n := 7
		if n > len(stream) {
			n = len(stream)
		}
		r.Feed(stream[:n])
		stream = stream[n:]
	}

	if len(got.ids) != 21 {
		t.Fatalf("received %d messages", len(got.ids))
	}
	args := got.args[0]
	version, _ := DecodeVLQString(&args)
	board, _ := DecodeVLQString(&args)
	if got.ids[0] != MsgIdentify || version != Version || board != "bench" {
		t.Errorf("identify %d %q %q", got.ids[0], version, board)
	}
	for i := 1; i < 21; i++ {
		args := got.args[i]
		v, err := DecodeVLQInt(&args)
		if got.ids[i] != MsgEvent || err != nil || v != int32(i-1)*1000 {
			t.Errorf("message %d: id %d value %d %v", i, got.ids[i], v, err)
		}
	}
	if st := r.Stats(); st.Frames != 21 || st.Dropped != 0 || st.CRCErrors != 0 {
		t.Errorf("stats %+v", st)
	}
	if sent, dropped := s.Counts(); sent != 21 || dropped != 0 {
		t.Errorf("sender counts %d %d", sent, dropped)
	}
}

func frames(t *testing.T, n int) [][]byte {
	t.Helper()
	var out [][]byte
	for i := 0; i < n; i++ {
		scratch := NewScratchOutput()
		v := uint32(i)
		if err := EncodeFrame(scratch, uint8(i), func(o OutputBuffer) {
			EncodeVLQUint(o, uint32(MsgEvent))
			EncodeVLQUint(o, v)
		}); err != nil {
			t.Fatal(err)
		}
		out = append(out, append([]byte(nil), scratch.Result()...))
	}
	return out
}

func TestReceiverResync(t *testing.T) {
	f := frames(t, 4)
	corrupt := append([]byte(nil), f[1]...)
	corrupt[3] ^= 0x40

	var stream []byte
	stream = append(stream, 0x00, 0x13, 0x99) // line noise
	stream = append(stream, MessageValueSync)
	stream = append(stream, f[0]...)
	stream = append(stream, corrupt...)
	stream = append(stream, f[2]...)
	stream = append(stream, f[3]...)

	var got collected
	r := NewReceiver(got.handle)
	r.Feed(stream)

	if len(got.seqs) != 3 || got.seqs[0] != 0 || got.seqs[1] != 2 || got.seqs[2] != 3 {
		t.Fatalf("sequences %v", got.seqs)
	}
	st := r.Stats()
	if st.CRCErrors != 1 || st.Dropped != 1 || st.Resyncs < 2 {
		t.Errorf("stats %+v", st)
	}
}

func TestReceiverSequenceWrap(t *testing.T) {
	f := frames(t, 20)
	var got collected
	r := NewReceiver(got.handle)
	for _, fr := range f {
		r.Feed(fr)
	}
	if st := r.Stats(); st.Frames != 20 || st.Dropped != 0 {
		t.Errorf("stats %+v", st)
	}

	// Frame 20 never arrives.
	r.Feed(frames(t, 22)[21])
	if st := r.Stats(); st.Dropped != 1 {
		t.Errorf("dropped %d after gap", st.Dropped)
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("usb not ready") }

func TestSenderCountsDrops(t *testing.T) {
	s := NewSender(errWriter{})
	if err := s.SendMessage(MsgEvent, nil); err == nil {
		t.Errorf("write error swallowed")
	}
	if sent, dropped := s.Counts(); sent != 0 || dropped != 1 {
		t.Errorf("counts %d %d", sent, dropped)
	}
}

func TestReadFromStopsAtEOF(t *testing.T) {
	var link bytes.Buffer
	s := NewSender(&link)
	for i := 0; i < 3; i++ {
		if err := s.SendMessage(MsgEvent, nil); err != nil {
			t.Fatal(err)
		}
	}
	var got collected
	r := NewReceiver(got.handle)
	if err := r.ReadFrom(context.Background(), &link); err != nil {
		t.Fatal(err)
	}
	if len(got.ids) != 3 {
		t.Errorf("received %d", len(got.ids))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.ReadFrom(ctx, &link); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled read gave %v", err)
	}
}
