// Package protocol defines the control-protocol message record exchanged
// between a worker and its master, and the codec used to put it on the wire.
package protocol

// ProtocolVersion is the fixed protocol integer carried on every message.
const ProtocolVersion = 1

// Message types exchanged with the master.
const (
	TypeClientReady       = "client_ready"
	TypeClientStopped     = "client_stopped"
	TypeHeartbeat         = "heartbeat"
	TypeStats             = "stats"
	TypeSpawn             = "spawn"
	TypeSpawningComplete  = "spawning_complete"
	TypeStop              = "stop"
	TypeQuit              = "quit"
	TypeReconnect         = "reconnect"
	TypeAck               = "ack"
	TypeException         = "exception"
)

// Message is the on-wire control-protocol record. Data is a JSON-like tree
// of primitives, lists, and maps; callers decode it into typed payload
// structs via Message.DecodeData.
type Message struct {
	Type    string         `msgpack:"type"`
	Data    map[string]any `msgpack:"data"`
	NodeID  string         `msgpack:"node_id"`
	Version int            `msgpack:"version"`
}

// NewMessage builds a Message with the fixed protocol version and the
// caller's node identity, flattening payload into the Data map via the
// codec's generic encode/decode round trip.
func NewMessage(codec Codec, typ, nodeID string, payload any) (Message, error) {
	data, err := codec.Flatten(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    typ,
		Data:    data,
		NodeID:  nodeID,
		Version: ProtocolVersion,
	}, nil
}

// DecodeData unmarshals the message's Data tree into dst via the codec.
func (m Message) DecodeData(codec Codec, dst any) error {
	return codec.Unflatten(m.Data, dst)
}
