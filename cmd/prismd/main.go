// Command prismd runs a Prism cluster node and provides a client CLI for
// talking to one.
package main

import (
	"os"

	"github.com/prism-db/prism/cmd/prismd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
