package reporter

import (
	"fmt"
	"io"
	"sync"

	"github.com/haukened/pingtally/internal/tally/common/log"
	"github.com/haukened/pingtally/internal/tally/domain"
)

// Sink receives each ranked report. Emit failures are reported back to the
// reporter, which logs them and carries on.
type Sink interface {
	Emit(r domain.Report) error
}

// LogSink emits reports through the structured logger at info level. The
// "report" field holds one "<address>: <count>" element per client, in rank
// order. WriterSink produces the plain-text block.
type LogSink struct {
	Logger log.Logger
}

func (s LogSink) Emit(r domain.Report) error {
	s.Logger.Info(map[string]any{
		"clients":      len(r.Entries),
		"generated_at": r.GeneratedAt,
		"report":       r.Lines(),
	}, "Client request report")
	return nil
}

// WriterSink writes reports as plain text, one block per report:
//
//	IPs:
//	127.0.0.1: 3
//	::1: 1
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a Sink writing to w. Writes are serialized.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Emit(r domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := r.String()
	if text != "" {
		text += "\n"
	}
	if _, err := fmt.Fprintf(s.w, "IPs:\n%s", text); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
