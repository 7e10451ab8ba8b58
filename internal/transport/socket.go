package transport

import "time"

// Socket is the minimal, narrow abstraction over the underlying bidirectional
// message socket. Implementations are explicitly NOT required to be safe for
// concurrent use — RpcTransport is the component responsible for
// serializing all calls into a Socket (spec.md §4.1).
type Socket interface {
	// Send writes one message frame; it may block until handed to the
	// socket's send buffer.
	Send(b []byte) error

	// RecvTimeout blocks for at most timeout waiting for one message
	// frame. ok is false if no frame arrived within timeout (not an
	// error); err is non-nil only on a real socket failure.
	RecvTimeout(timeout time.Duration) (b []byte, ok bool, err error)

	// Close releases the underlying socket resources. Implementations
	// should tolerate being called once; RpcTransport itself guarantees
	// idempotence via sync.Once.
	Close() error
}
