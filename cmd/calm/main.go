// calm drives the seven day challenge from a terminal: the tracker state
// lives in a local bbolt file and signed URLs come from a running server.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
