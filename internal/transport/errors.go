package transport

import "errors"

// TransientError wraps a single send/recv failure that is expected to
// recover on the next control-loop cycle (spec.md §7, Transport.Transient).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return "transport: transient error during " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a transport closure that the Receiver cannot recover
// from; the Runner must transition to Quitting (spec.md §7,
// Transport.Fatal).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "transport: fatal error: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

// ErrClosed is returned by Send/Recv once Close has completed.
var ErrClosed = errors.New("transport: closed")
