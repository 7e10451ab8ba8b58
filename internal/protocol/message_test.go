package protocol

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	codec := NewMsgpackCodec()

	cases := []struct {
		name string
		typ  string
		data map[string]any
	}{
		{"client_ready", TypeClientReady, map[string]any{"version": int64(1)}},
		{"heartbeat", TypeHeartbeat, map[string]any{"state": "running", "current_cpu_usage": 12.5}},
		{"spawn", TypeSpawn, map[string]any{"user_count": int64(10), "spawn_rate": 5.0}},
		{"stop", TypeStop, map[string]any{}},
		{"quit", TypeQuit, map[string]any{}},
		{"ack", TypeAck, map[string]any{}},
		{"reconnect", TypeReconnect, map[string]any{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Message{
				Type:    tc.typ,
				Data:    tc.data,
				NodeID:  "host_abc123",
				Version: ProtocolVersion,
			}

			b, err := codec.Encode(m)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			got, err := codec.Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			if got.Type != m.Type || got.NodeID != m.NodeID || got.Version != m.Version {
				t.Fatalf("round trip mismatch on envelope: got %+v want %+v", got, m)
			}

			if len(got.Data) != len(m.Data) {
				t.Fatalf("round trip mismatch on data: got %v want %v", got.Data, m.Data)
			}
		})
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	codec := NewMsgpackCodec()

	in := SpawnPayload{
		UserCount: 25,
		SpawnRate: 5.5,
	}

	data, err := codec.Flatten(in)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}

	var out SpawnPayload
	if err := codec.Unflatten(data, &out); err != nil {
		t.Fatalf("unflatten: %v", err)
	}

	if !reflect.DeepEqual(in, out) {
		t.Fatalf("flatten/unflatten mismatch: got %+v want %+v", out, in)
	}
}
