package runner

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// NewNodeID generates a worker identity: "<hostname>_<32-hex>" (spec.md
// §6). Exported so callers can dial the transport's socket identity (e.g.
// a ZeroMQ DEALER identity) with the same value before constructing the
// Runner via the NodeID option.
func NewNodeID() string {
	return nodeID()
}

func nodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	return hostname + "_" + token
}
