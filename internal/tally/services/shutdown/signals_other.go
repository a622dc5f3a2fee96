//go:build !unix

package shutdown

import "os"

// TerminationSignals are the signals that begin a graceful shutdown.
var TerminationSignals = []os.Signal{os.Interrupt}
