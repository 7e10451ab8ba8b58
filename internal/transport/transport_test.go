package transport

import (
	"testing"
	"time"

	"github.com/nimbusload/swarmworker/internal/protocol"
)

func TestRecvTimesOutWithoutError(t *testing.T) {
	tr := New(NewFakeSocket(), protocol.NewMsgpackCodec())

	start := time.Now()
	_, ok, err := tr.Recv()
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected no error on timeout, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on timeout")
	}
	if elapsed < RecvTimeout {
		t.Fatalf("returned before the recv timeout elapsed: %v", elapsed)
	}
}

func TestSendFairnessDuringBusyRecvLoop(t *testing.T) {
	// Regression guard for spec.md §4.1's "Why": a naive lock held across
	// an unbounded recv would starve Send. Here the fake socket blocks
	// for a full RecvTimeout window per empty poll, so a concurrent
	// sender must still get the mutex within roughly one window.
	sock := NewFakeSocket()
	tr := New(sock, protocol.NewMsgpackCodec())

	go func() {
		for i := 0; i < 3; i++ {
			_, _, _ = tr.Recv()
		}
	}()

	time.Sleep(10 * time.Millisecond) // let the reader start its first poll

	start := time.Now()
	if err := tr.Send(protocol.Message{Type: protocol.TypeHeartbeat}); err != nil {
		t.Fatalf("send: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed > 2*RecvTimeout {
		t.Fatalf("send was starved by the recv loop: waited %v", elapsed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sock := NewFakeSocket()
	tr := New(sock, protocol.NewMsgpackCodec())

	if err := tr.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, _, err := tr.Recv(); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if err := tr.Send(protocol.Message{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestRecvDecodesQueuedMessage(t *testing.T) {
	codec := protocol.NewMsgpackCodec()
	sock := NewFakeSocket()
	tr := New(sock, codec)

	want := protocol.Message{Type: protocol.TypeAck, Data: map[string]any{}, NodeID: "n", Version: 1}
	b, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sock.Push(b)

	got, ok, err := tr.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.Type != want.Type || got.NodeID != want.NodeID {
		t.Fatalf("got %+v want %+v", got, want)
	}
}
