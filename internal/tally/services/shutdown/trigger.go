package shutdown

import "sync"

// Trigger is a one-shot notification: Fire closes Done exactly once and
// later calls are no-ops.
type Trigger struct {
	once sync.Once
	ch   chan struct{}
}

// NewTrigger returns an unfired Trigger.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{})}
}

// Fire signals shutdown. It reports whether this call was the one that fired.
func (t *Trigger) Fire() bool {
	fired := false
	t.once.Do(func() {
		close(t.ch)
		fired = true
	})
	return fired
}

// Done is closed once the trigger has fired.
func (t *Trigger) Done() <-chan struct{} {
	return t.ch
}
