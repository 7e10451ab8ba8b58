package transport

import (
	"sync"
	"time"

	"github.com/nimbusload/swarmworker/internal/protocol"
)

// RecvTimeout is the default bounded receive timeout of spec.md §4.1. At a
// 1000ms heartbeat interval this gives senders at least 3 lock-acquisition
// windows per cycle. Overridable per-instance via SetRecvTimeout (wired
// from config.Config.RecvTimeout by the runner package).
const RecvTimeout = 300 * time.Millisecond

// RpcTransport exposes Send/Recv/Close over a single underlying Socket
// whose library contract forbids concurrent use. A single mutex guards
// every call into the socket; Recv bounds its hold of that mutex to
// recvTimeout per attempt so senders (especially the heartbeater) are never
// starved for longer than that window.
type RpcTransport struct {
	mu          sync.Mutex
	sock        Socket
	codec       protocol.Codec
	closed      bool
	once        sync.Once
	recvTimeout time.Duration
}

// New wraps sock with the send/recv/close discipline of spec.md §4.1.
func New(sock Socket, codec protocol.Codec) *RpcTransport {
	return &RpcTransport{sock: sock, codec: codec, recvTimeout: RecvTimeout}
}

// SetRecvTimeout overrides the bounded receive timeout for this instance.
func (t *RpcTransport) SetRecvTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvTimeout = d
}

// Send encodes and writes m. Safe to call from any goroutine.
func (t *RpcTransport) Send(m protocol.Message) error {
	b, err := t.codec.Encode(m)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	if err := t.sock.Send(b); err != nil {
		return &TransientError{Op: "send", Err: err}
	}
	return nil
}

// Recv blocks for at most RecvTimeout. ok is false (with err nil) if
// nothing arrived in that window — this is normal, not an error, per
// spec.md §4.1 failure semantics. Safe to call from exactly one dedicated
// reader goroutine.
func (t *RpcTransport) Recv() (m protocol.Message, ok bool, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return protocol.Message{}, false, ErrClosed
	}

	timeout := t.recvTimeout
	b, received, rerr := t.sock.RecvTimeout(timeout)
	t.mu.Unlock()

	if rerr != nil {
		return protocol.Message{}, false, &FatalError{Err: rerr}
	}
	if !received {
		return protocol.Message{}, false, nil
	}

	m, derr := t.codec.Decode(b)
	if derr != nil {
		// Protocol.Bad: a frame that fails to decode is dropped and
		// reported exactly like a timeout (ok false, err nil), so the
		// caller cannot tell the two apart and nothing is logged. It is
		// not a transport-level error.
		return protocol.Message{}, false, nil
	}

	return m, true, nil
}

// Close is idempotent and safe against concurrent Send/Recv.
func (t *RpcTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.closed = true
		err = t.sock.Close()
	})
	return err
}
