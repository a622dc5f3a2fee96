// Package reporter runs the periodic ranked report of per-client counts.
package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/haukened/pingtally/internal/tally/common/clock"
	"github.com/haukened/pingtally/internal/tally/common/log"
	"github.com/haukened/pingtally/internal/tally/domain"
	"github.com/haukened/pingtally/internal/tally/gateways/metrics"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = time.Second

// Snapshotter is the read side of the counter store.
type Snapshotter interface {
	Snapshot() domain.Snapshot
}

// Options configures a Reporter. Store and Sink are required.
type Options struct {
	Store    Snapshotter
	Sink     Sink
	Interval time.Duration
	Clock    clock.Clock
	Logger   log.Logger
	Metrics  *metrics.Metrics
}

// Reporter snapshots the store on every tick and emits the ranked result.
type Reporter struct {
	store    Snapshotter
	sink     Sink
	interval time.Duration
	clock    clock.Clock
	logger   log.Logger
	metrics  *metrics.Metrics
}

// New returns a Reporter for the given options.
func New(opts Options) *Reporter {
	r := &Reporter{
		store:    opts.Store,
		sink:     opts.Sink,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	return r
}

// Interval returns the effective reporting interval.
func (r *Reporter) Interval() time.Duration {
	return r.interval
}

// Run reports once per interval until ctx is cancelled, then returns nil
// without emitting a final report. A tick that races with cancellation is
// dropped.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug(map[string]any{"interval": r.interval.String()}, "Reporter started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(nil, "Reporter shutting down")
			return nil
		case <-ticker.C():
			if ctx.Err() != nil {
				r.logger.Info(nil, "Reporter shutting down")
				return nil
			}
			r.ReportOnce()
		}
	}
}

// ReportOnce snapshots, ranks and emits a single report. Sink failures,
// including panics, are logged and otherwise ignored.
func (r *Reporter) ReportOnce() {
	report := domain.NewReport(r.store.Snapshot(), r.clock.Now())
	if err := r.emit(report); err != nil {
		r.logger.Warn(map[string]any{
			"error":   err.Error(),
			"clients": len(report.Entries),
		}, "Failed to emit report")
		if r.metrics != nil {
			r.metrics.ReportFailures.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.ReportsEmitted.Inc()
	}
}

func (r *Reporter) emit(report domain.Report) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("sink panicked: %v", v)
		}
	}()
	return r.sink.Emit(report)
}
