package protocol

// Codec is the external collaborator responsible for turning a Message into
// bytes and back, and for flattening/unflattening a typed payload into the
// Message.Data tree of primitives, lists, and maps. The runtime never
// assumes a particular wire format; it only relies on this contract.
type Codec interface {
	Encode(Message) ([]byte, error)
	Decode([]byte) (Message, error)

	// Flatten converts a typed payload struct into the generic map carried
	// as Message.Data.
	Flatten(payload any) (map[string]any, error)
	// Unflatten converts a Message.Data map back into a typed payload
	// struct.
	Unflatten(data map[string]any, dst any) error
}
