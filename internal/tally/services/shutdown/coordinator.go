// Package shutdown turns termination signals into an ordered teardown of the
// reporter and the HTTP transport.
//
// The coordinator starts both tasks, waits for the first termination source
// (a signal or the parent context), fires the one-shot Trigger the transport
// is waiting on, cancels the reporter, and returns only after both tasks have
// been observed to exit. Task errors and panics are logged per task and
// collected in the Summary; none of them propagate further.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/haukened/pingtally/internal/tally/common/log"
)

// State is the coordinator's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateSignalReceived
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateSignalReceived:
		return "signal_received"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Task names used in outcomes and log fields.
const (
	TaskReporter  = "reporter"
	TaskTransport = "transport"
)

// ReporterFunc runs until ctx is cancelled.
type ReporterFunc func(ctx context.Context) error

// ServerFunc serves until shutdown is closed, then drains and returns.
type ServerFunc func(shutdown <-chan struct{}) error

// Outcome is how one task ended.
type Outcome struct {
	Task     string
	Err      error
	Panicked bool
	// Early is set when the task exited before shutdown began.
	Early bool
}

// Failed reports whether the task ended with an error or panic.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Summary describes a completed shutdown.
type Summary struct {
	// Signal is the signal that started the shutdown, nil when it was started
	// by context cancellation or because every task had already exited.
	Signal   os.Signal
	Outcomes []Outcome
}

// Failed reports whether any task failed.
func (s Summary) Failed() bool {
	for _, o := range s.Outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}

// Outcome returns the outcome recorded for task.
func (s Summary) Outcome(task string) (Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.Task == task {
			return o, true
		}
	}
	return Outcome{}, false
}

// Options configures a Coordinator.
type Options struct {
	Logger log.Logger
	// Signals overrides the termination signal source. When nil the
	// coordinator subscribes to TerminationSignals for the duration of Run.
	Signals <-chan os.Signal
}

// Coordinator drives the shutdown sequence. A Coordinator runs once.
type Coordinator struct {
	logger  log.Logger
	signals <-chan os.Signal
	trigger *Trigger
	state   atomic.Int32
}

// NewCoordinator returns an idle Coordinator.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		logger:  opts.Logger,
		signals: opts.Signals,
		trigger: NewTrigger(),
	}
	if c.logger == nil {
		c.logger = log.NewNoopLogger()
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed when the one-shot shutdown signal fires.
func (c *Coordinator) Done() <-chan struct{} {
	return c.trigger.Done()
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug(map[string]any{"state": s.String()}, "Shutdown coordinator state changed")
}

// Run starts reporter and server, waits for a termination request, and tears
// both down. It returns once both have exited.
func (c *Coordinator) Run(ctx context.Context, reporter ReporterFunc, server ServerFunc) Summary {
	sigCh, unsubscribe := c.subscribe()
	defer unsubscribe()

	reporterCtx, cancelReporter := context.WithCancel(ctx)
	defer cancelReporter()

	results := make(chan Outcome, 2)
	go func() {
		results <- runTask(TaskReporter, func() error { return reporter(reporterCtx) })
	}()
	go func() {
		results <- runTask(TaskTransport, func() error { return server(c.trigger.Done()) })
	}()

	var (
		summary Summary
		pending = 2
	)
	c.setState(StateArmed)

armed:
	for {
		select {
		case sig := <-sigCh:
			summary.Signal = sig
			c.logger.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
			break armed
		case <-ctx.Done():
			c.logger.Info(map[string]any{"reason": context.Cause(ctx).Error()}, "Shutdown requested by context")
			break armed
		case o := <-results:
			o.Early = true
			pending--
			c.report(o)
			summary.Outcomes = append(summary.Outcomes, o)
			if pending == 0 {
				c.logger.Warn(nil, "All tasks exited before shutdown was requested")
				break armed
			}
		}
	}
	c.setState(StateSignalReceived)

	// Keep consuming signals so repeats are acknowledged instead of queued.
	stopRepeats := make(chan struct{})
	defer close(stopRepeats)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if !c.trigger.Fire() {
					c.logger.Warn(map[string]any{"signal": sig.String()}, "Shutdown already in progress")
				}
			case <-stopRepeats:
				return
			}
		}
	}()

	c.trigger.Fire()
	cancelReporter()
	c.setState(StateDraining)

	for ; pending > 0; pending-- {
		o := <-results
		c.report(o)
		summary.Outcomes = append(summary.Outcomes, o)
	}

	c.setState(StateStopped)
	c.logger.Info(map[string]any{
		"failed": summary.Failed(),
	}, "Shutdown complete")
	return summary
}

func (c *Coordinator) subscribe() (<-chan os.Signal, func()) {
	if c.signals != nil {
		return c.signals, func() {}
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, TerminationSignals...)
	return ch, func() { signal.Stop(ch) }
}

func (c *Coordinator) report(o Outcome) {
	fields := map[string]any{
		"task":  o.Task,
		"early": o.Early,
	}
	switch {
	case o.Panicked:
		fields["error"] = o.Err.Error()
		c.logger.Error(fields, "Task failed")
	case o.Err != nil:
		fields["error"] = o.Err.Error()
		c.logger.Error(fields, "Task ended with error")
	default:
		c.logger.Info(fields, "Task stopped")
	}
}

func runTask(name string, fn func() error) (o Outcome) {
	o.Task = name
	defer func() {
		if r := recover(); r != nil {
			o.Panicked = true
			o.Err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	o.Err = fn()
	return o
}
