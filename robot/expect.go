package robot

import (
	"sync"
	"time"
)

// DefaultTickInterval is how often pending expectations are checked for
// timeout.
const DefaultTickInterval = 100 * time.Millisecond

// Expectation is a pending "await this exact response within this deadline"
// record. StartedAt never changes after registration.
type Expectation struct {
	Command   string
	Expected  string
	Timeout   time.Duration
	StartedAt time.Time

	onSuccess func(line string)
	onTimeout func()
}

// Tracker resolves incoming lines against pending expectations and times
// out the ones that wait too long. The timeout scan runs on a fixed tick
// and never touches I/O.
type Tracker struct {
	tick time.Duration

	mu       sync.Mutex
	pending  []*Expectation // registration order
	stopChan chan struct{}
	started  bool
}

// NewTracker creates a tracker with the given timeout scan interval.
// A non-positive interval falls back to DefaultTickInterval.
func NewTracker(tick time.Duration) *Tracker {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Tracker{tick: tick, stopChan: make(chan struct{})}
}

// Start begins the periodic timeout scan.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()
	go t.run()
}

// Stop halts the timeout scan. Pending expectations are left in place.
func (t *Tracker) Stop() {
	select {
	case <-t.stopChan:
	default:
		close(t.stopChan)
	}
}

// Add registers a pending wait. onSuccess fires when a line equal to
// expected arrives; onTimeout fires when the deadline passes first.
func (t *Tracker) Add(command, expected string, timeout time.Duration, onSuccess func(line string), onTimeout func()) {
	exp := &Expectation{
		Command:   command,
		Expected:  expected,
		Timeout:   timeout,
		StartedAt: time.Now(),
		onSuccess: onSuccess,
		onTimeout: onTimeout,
	}
	t.mu.Lock()
	t.pending = append(t.pending, exp)
	t.mu.Unlock()
}

// OnIncoming matches a decoded line against pending expectations. Exact
// string match, first registered first matched. Returns whether the line
// resolved an expectation.
func (t *Tracker) OnIncoming(line string) bool {
	return t.resolve(line, line)
}

// OnIncomingAs resolves a pending expectation for value using line as the
// delivered response. Used for response aliases such as "error ..." lines
// standing in for taskfailed.
func (t *Tracker) OnIncomingAs(value, line string) bool {
	return t.resolve(value, line)
}

func (t *Tracker) resolve(value, line string) bool {
	t.mu.Lock()
	var match *Expectation
	for i, exp := range t.pending {
		if exp.Expected == value {
			match = exp
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if match == nil {
		return false
	}
	if match.onSuccess != nil {
		match.onSuccess(line)
	}
	return true
}

// CancelCommand removes every pending expectation registered under the
// given command without firing any callback.
func (t *Tracker) CancelCommand(command string) int {
	t.mu.Lock()
	kept := t.pending[:0]
	removed := 0
	for _, exp := range t.pending {
		if exp.Command == command {
			removed++
			continue
		}
		kept = append(kept, exp)
	}
	t.pending = kept
	t.mu.Unlock()
	return removed
}

// Clear drops all pending expectations. No callbacks fire: cleared waits
// resolve as neither success nor timeout.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
}

// PendingCount returns the number of unresolved expectations.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Tracker) run() {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopChan:
			return
		case now := <-ticker.C:
			t.expire(now)
		}
	}
}

// expire removes and reports every expectation past its deadline.
func (t *Tracker) expire(now time.Time) {
	t.mu.Lock()
	var timedOut []*Expectation
	kept := t.pending[:0]
	for _, exp := range t.pending {
		if now.Sub(exp.StartedAt) > exp.Timeout {
			timedOut = append(timedOut, exp)
			continue
		}
		kept = append(kept, exp)
	}
	t.pending = kept
	t.mu.Unlock()

	for _, exp := range timedOut {
		if exp.onTimeout != nil {
			exp.onTimeout()
		}
	}
}
