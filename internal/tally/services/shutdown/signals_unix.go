//go:build unix

package shutdown

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals that begin a graceful shutdown.
var TerminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
