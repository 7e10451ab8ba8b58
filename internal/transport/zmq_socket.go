package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

// ZMQSocket backs Socket with a ZeroMQ DEALER socket dialed to the master's
// RPC endpoint. ZeroMQ sockets are documented as unsafe for concurrent use
// from multiple goroutines — exactly the constraint RpcTransport exists to
// manage (spec.md §4.1, "Why").
//
// RecvTimeout is implemented with a poller rather than a blocking Recv:
// Poll(timeout) waits for readability without touching the socket's receive
// path, and Recv() is only called once the poller has confirmed a frame is
// already buffered, keeping each call's real blocking time bounded by
// timeout.
type ZMQSocket struct {
	sock   zmq4.Socket
	poller zmq4.Poller
}

// DialZMQSocket dials a DEALER socket to endpoint (e.g. "tcp://master:5557").
func DialZMQSocket(ctx context.Context, endpoint string, identity string) (*ZMQSocket, error) {
	sock := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(identity)))

	if err := sock.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", endpoint, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(sock, zmq4.PollIn)

	return &ZMQSocket{sock: sock, poller: poller}, nil
}

func (s *ZMQSocket) Send(b []byte) error {
	return s.sock.Send(zmq4.NewMsg(b))
}

func (s *ZMQSocket) RecvTimeout(timeout time.Duration) ([]byte, bool, error) {
	n, err := s.poller.Poll(timeout)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	msg, err := s.sock.Recv()
	if err != nil {
		return nil, false, err
	}

	return msg.Bytes(), true, nil
}

func (s *ZMQSocket) Close() error {
	return s.sock.Close()
}
