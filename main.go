// Vessel backup agent - scans designated directories, chunks and hashes
// files, and uploads them to remote storage through the Vessel control
// plane.
package main

import (
	"os"

	"github.com/vesselhq/vessel-agent/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
