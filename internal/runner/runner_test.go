package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimbusload/swarmworker/internal/protocol"
	"github.com/nimbusload/swarmworker/internal/stats"
	"github.com/nimbusload/swarmworker/internal/task"
	"github.com/nimbusload/swarmworker/internal/transport"
)

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *transport.FakeSocket, protocol.Codec, *stats.Aggregator, context.CancelFunc) {
	t.Helper()

	codec := protocol.NewMsgpackCodec()
	sock := transport.NewFakeSocket()
	tr := transport.New(sock, codec)

	agg := stats.New(nil)
	var hits atomic.Int64
	sel := task.NewSelector([]task.Task{
		{Weight: 1, Name: "ping", Fn: func() error {
			hits.Add(1)
			agg.ReportSuccess("GET", "ping", 5, 10)
			return nil
		}},
	}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go agg.Run(ctx)

	defaultOpts := []Option{
		HeartbeatInterval(20 * time.Millisecond),
		RecvTimeout(10 * time.Millisecond),
		MasterMissing(200 * time.Millisecond),
	}
	r := New(tr, codec, agg, sel, append(defaultOpts, opts...)...)

	return r, sock, codec, agg, cancel
}

func pushMessage(t *testing.T, sock *transport.FakeSocket, codec protocol.Codec, typ string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(codec, typ, "master", payload)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	b, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	sock.Push(b)
}

func waitForSentType(t *testing.T, sock *transport.FakeSocket, codec protocol.Codec, typ string, timeout time.Duration) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, b := range sock.Sent() {
			msg, err := codec.Decode(b)
			if err != nil {
				continue
			}
			if msg.Type == typ {
				return msg
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("message of type %q never sent", typ)
	return protocol.Message{}
}

func TestSpawnRunStop(t *testing.T) {
	r, sock, codec, agg, cancelAgg := newTestRunner(t)
	defer cancelAgg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	pushMessage(t, sock, codec, protocol.TypeSpawn, protocol.SpawnPayload{UserCount: 5, SpawnRate: 20})

	waitForSentType(t, sock, codec, protocol.TypeSpawningComplete, 1500*time.Millisecond)

	if got := r.LiveUserCount(); got != 5 {
		t.Fatalf("LiveUserCount() = %d, want 5", got)
	}
	if r.State() != Running {
		t.Fatalf("State() = %v, want Running", r.State())
	}

	deadline := time.After(4 * time.Second)
	for {
		select {
		case snap := <-agg.Snapshots():
			if snap.StatsTotal.NumRequests >= 5 {
				goto stopPhase
			}
		case <-deadline:
			t.Fatal("no snapshot with num_requests >= 5 arrived within 4s")
		}
	}

stopPhase:
	pushMessage(t, sock, codec, protocol.TypeStop, struct{}{})
	waitForSentType(t, sock, codec, protocol.TypeClientStopped, 500*time.Millisecond)

	if r.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped", r.State())
	}
	if got := r.LiveUserCount(); got != 0 {
		t.Fatalf("LiveUserCount() after stop = %d, want 0", got)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestUnknownMessageTypeIsIgnored(t *testing.T) {
	r, sock, codec, _, cancelAgg := newTestRunner(t)
	defer cancelAgg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)

	pushMessage(t, sock, codec, "some_future_message_type", map[string]any{"x": 1})

	time.Sleep(50 * time.Millisecond)
	if r.State() != Ready {
		t.Fatalf("State() = %v, want Ready (unknown message must be a no-op)", r.State())
	}
}

func TestQuitTransitionsToQuitting(t *testing.T) {
	r, sock, codec, _, cancelAgg := newTestRunner(t)
	defer cancelAgg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	pushMessage(t, sock, codec, protocol.TypeQuit, struct{}{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && r.State() != Quitting {
		time.Sleep(5 * time.Millisecond)
	}
	if r.State() != Quitting {
		t.Fatalf("State() = %v, want Quitting", r.State())
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after quit")
	}
}

func TestMasterMissingTransition(t *testing.T) {
	r, _, _, _, cancelAgg := newTestRunner(t, MasterMissing(60*time.Millisecond), HeartbeatInterval(10*time.Millisecond))
	defer cancelAgg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && r.State() != Missing {
		time.Sleep(5 * time.Millisecond)
	}
	if r.State() != Missing {
		t.Fatalf("State() = %v, want Missing after master silence", r.State())
	}
}

func TestDoubleStopIsIdempotent(t *testing.T) {
	r, sock, codec, _, cancelAgg := newTestRunner(t)
	defer cancelAgg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)

	pushMessage(t, sock, codec, protocol.TypeSpawn, protocol.SpawnPayload{UserCount: 2, SpawnRate: 20})
	waitForSentType(t, sock, codec, protocol.TypeSpawningComplete, time.Second)

	pushMessage(t, sock, codec, protocol.TypeStop, struct{}{})
	pushMessage(t, sock, codec, protocol.TypeStop, struct{}{})

	time.Sleep(100 * time.Millisecond)
	if r.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped after two stops", r.State())
	}
	if got := r.LiveUserCount(); got != 0 {
		t.Fatalf("LiveUserCount() = %d, want 0", got)
	}
}
