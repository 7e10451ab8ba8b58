// Command worker is the swarmworker process entrypoint: it loads and
// validates a Config (spec.md §6, §7), wires the RpcTransport, Aggregator,
// TaskSelector and Runner together, and runs until the master sends quit
// or the process receives an interrupt.
package main

import (
	"fmt"
	"os"

	"github.com/nimbusload/swarmworker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
