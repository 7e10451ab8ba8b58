package protocol

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec implements Codec over github.com/vmihailenco/msgpack/v5,
// matching the binary wire format used by comparable open-source Go workers
// for this protocol family.
type MsgpackCodec struct{}

// NewMsgpackCodec returns the default binary codec.
func NewMsgpackCodec() MsgpackCodec {
	return MsgpackCodec{}
}

func (MsgpackCodec) Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

func (MsgpackCodec) Decode(b []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return Message{}, err
	}
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	return m, nil
}

func (MsgpackCodec) Flatten(payload any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}

	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := msgpack.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (MsgpackCodec) Unflatten(data map[string]any, dst any) error {
	b, err := msgpack.Marshal(data)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(b, dst)
}
