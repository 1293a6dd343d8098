package protocol

import (
	"bytes"
	"testing"
)

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output([]byte{1, 2, 3, 4, 5})
	if scratch.CurPosition() != 5 {
		t.Errorf("position %d, expected 5", scratch.CurPosition())
	}

	scratch.Update(0, 9)
	scratch.Update(7, 9) // past the end, ignored
	if got := scratch.Result(); !bytes.Equal(got, []byte{9, 2, 3, 4, 5}) {
		t.Errorf("result %v", got)
	}
	if since := scratch.DataSince(2); !bytes.Equal(since, []byte{3, 4, 5}) {
		t.Errorf("DataSince(2) = %v", since)
	}
	if since := scratch.DataSince(6); since != nil {
		t.Errorf("DataSince past end = %v", since)
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("position after reset %d", scratch.CurPosition())
	}

	big := make([]byte, MessageMax+10)
	scratch.Output(big)
	if scratch.CurPosition() != MessageMax {
		t.Errorf("overfull write kept %d bytes", scratch.CurPosition())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)
	if !fifo.IsEmpty() || fifo.Available() != 0 || fifo.Free() != 9 {
		t.Fatalf("new fifo: empty=%v available=%d free=%d", fifo.IsEmpty(), fifo.Available(), fifo.Free())
	}

	if n := fifo.Write([]byte{1, 2, 3, 4, 5}); n != 5 {
		t.Errorf("wrote %d", n)
	}
	readBuf := make([]byte, 3)
	if n := fifo.Read(readBuf); n != 3 || !bytes.Equal(readBuf, []byte{1, 2, 3}) {
		t.Errorf("read %d: %v", n, readBuf)
	}
	fifo.Pop(1)
	if fifo.Available() != 1 {
		t.Errorf("available %d after pop", fifo.Available())
	}
	fifo.Pop(5)
	if !fifo.IsEmpty() {
		t.Errorf("pop past the end left %d bytes", fifo.Available())
	}

	fifo.Reset()
	if n := fifo.Write(make([]byte, 12)); n != 9 {
		t.Errorf("size-10 fifo accepted %d bytes, expected 9", n)
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)
	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Read(make([]byte, 2))

	if n := fifo.Write([]byte{5, 6}); n != 2 {
		t.Errorf("wrote %d, expected 2", n)
	}
	if got := fifo.Data(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Errorf("wrapped Data() = %v", got)
	}
	all := make([]byte, 4)
	if n := fifo.Read(all); n != 4 || !bytes.Equal(all, []byte{3, 4, 5, 6}) {
		t.Errorf("read %d: %v", n, all)
	}
}
