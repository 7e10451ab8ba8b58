package transport

import (
	"sync"
	"sync/atomic"
	"time"
)

// FakeSocket is an in-memory Socket double. It lets other packages' tests
// (runner, in particular) drive a real RpcTransport end to end without a
// ZeroMQ endpoint.
type FakeSocket struct {
	mu        sync.Mutex
	inbox     [][]byte
	sent      [][]byte
	closed    bool
	RecvCalls atomic.Int64
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{}
}

func (f *FakeSocket) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, b)
	return nil
}

// RecvTimeout blocks for the full timeout when nothing is queued, matching
// the real bounded-receive contract so callers testing fairness/timeout
// behavior see realistic timing.
func (f *FakeSocket) RecvTimeout(timeout time.Duration) ([]byte, bool, error) {
	f.RecvCalls.Add(1)

	f.mu.Lock()
	if len(f.inbox) > 0 {
		b := f.inbox[0]
		f.inbox = f.inbox[1:]
		f.mu.Unlock()
		return b, true, nil
	}
	f.mu.Unlock()

	time.Sleep(timeout)
	return nil, false, nil
}

func (f *FakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Push queues a frame for the next RecvTimeout call to return.
func (f *FakeSocket) Push(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, b)
}

// Sent returns a snapshot of every frame handed to Send so far.
func (f *FakeSocket) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeSocket) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
