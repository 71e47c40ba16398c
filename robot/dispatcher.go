package robot

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Link is the connection surface the dispatcher drives. *Conn implements it.
type Link interface {
	State() ConnState
	Send(data []byte) error
	DownSignal() <-chan struct{}
}

// Emitter receives dispatcher-level observations. All methods must be
// non-blocking.
type Emitter interface {
	EmitCommandSent(command string)
	EmitCommandResult(result CommandResult)
	EmitStatus(st Status)
	EmitUnexpectedLine(line string)
}

// Dispatcher turns the fire-and-forget link into a request/response API.
// Each command class carries a fixed expectation sequence; Send blocks
// until the sequence resolves and returns exactly one CommandResult.
type Dispatcher struct {
	link    Link
	tracker *Tracker
	emitter Emitter

	ackTimeout  time.Duration
	taskTimeout time.Duration

	// sendMu serializes expectation-bearing commands: only one may await
	// its ack/taskdone at a time per connection. stop and status bypass it.
	sendMu sync.Mutex

	mu       sync.Mutex
	inFlight *inflight

	statusMu   sync.RWMutex
	lastStatus *Status
}

// inflight is the one command currently awaiting its response sequence.
type inflight struct {
	command string
	cancel  chan struct{}
	once    sync.Once
}

func (f *inflight) interrupt() {
	f.once.Do(func() { close(f.cancel) })
}

// stepOutcome carries one resolved expectation step.
type stepOutcome struct {
	line     string
	timedOut bool
	failed   bool
}

// NewDispatcher creates a dispatcher over the given link and tracker.
// A zero ackTimeout defaults to 20% of taskTimeout, mirroring the
// controller's historical tuning.
func NewDispatcher(link Link, tracker *Tracker, emitter Emitter, ackTimeout, taskTimeout time.Duration) *Dispatcher {
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Second
	}
	if ackTimeout <= 0 {
		ackTimeout = taskTimeout / 5
	}
	return &Dispatcher{
		link:        link,
		tracker:     tracker,
		emitter:     emitter,
		ackTimeout:  ackTimeout,
		taskTimeout: taskTimeout,
	}
}

// HandleLine routes a decoded incoming line: status pushes are cached and
// surfaced as events, everything else is offered to pending expectations.
// Wire this to Conn.OnLine.
func (d *Dispatcher) HandleLine(line string) {
	if st, ok := ParseStatus(line); ok {
		d.statusMu.Lock()
		d.lastStatus = &st
		d.statusMu.Unlock()
		if d.emitter != nil {
			d.emitter.EmitStatus(st)
		}
		return
	}
	if d.tracker.OnIncoming(line) {
		return
	}
	// The controller reports some failures as "error <detail>" rather than
	// a bare taskfailed.
	if strings.HasPrefix(line, errorPrefix) && d.tracker.OnIncomingAs(RespTaskFailed, line) {
		return
	}
	log.Printf("robot: unexpected response %q", line)
	if d.emitter != nil {
		d.emitter.EmitUnexpectedLine(line)
	}
}

// HandleStateChange must be wired to Conn.OnStateChange. Entering
// Disconnected clears all pending expectations without callbacks; waiters
// observe the drop through the link's down signal instead.
func (d *Dispatcher) HandleStateChange(st ConnState) {
	if st == StateDisconnected {
		d.tracker.Clear()
	}
}

// LastStatus returns the most recent status push, or nil if none arrived yet.
func (d *Dispatcher) LastStatus() *Status {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	return d.lastStatus
}

// Send dispatches a command and blocks until its expectation sequence
// resolves. The stop command additionally interrupts the command currently
// awaiting its taskdone, so a later unrelated completion is never
// mis-attributed.
func (d *Dispatcher) Send(command string, args ...float64) CommandResult {
	if command == "stop" {
		return d.sendStop(args)
	}

	spec := specFor(command)
	if len(spec.steps) == 0 {
		return d.fireAndForget(command, args)
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	return d.sendTracked(command, args, spec)
}

// fireAndForget writes a command that carries no blocking expectation
// (status queries; replies arrive as asynchronous pushes).
func (d *Dispatcher) fireAndForget(command string, args []float64) CommandResult {
	if d.link.State() != StateConnected {
		return connErrorResult(command, "not connected")
	}
	if err := d.link.Send(EncodeCommand(command, args...)); err != nil {
		return connErrorResult(command, err.Error())
	}
	if d.emitter != nil {
		d.emitter.EmitCommandSent(command)
	}
	return successResult(command, "")
}

func (d *Dispatcher) sendTracked(command string, args []float64, spec commandSpec) CommandResult {
	if d.link.State() != StateConnected {
		return d.finish(connErrorResult(command, "not connected"))
	}
	down := d.link.DownSignal()

	inf := &inflight{command: command, cancel: make(chan struct{})}
	d.mu.Lock()
	d.inFlight = inf
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		if d.inFlight == inf {
			d.inFlight = nil
		}
		d.mu.Unlock()
	}()

	if err := d.link.Send(EncodeCommand(command, args...)); err != nil {
		return d.finish(connErrorResult(command, err.Error()))
	}
	if d.emitter != nil {
		d.emitter.EmitCommandSent(command)
	}

	// Steps register one at a time: a completion arriving in the gap
	// between resolving one step and registering the next surfaces as an
	// unexpected line and the command eventually times out. The controller
	// answers each step serially, matching this cadence.
	var last string
	for i, expected := range spec.steps {
		timeout := d.taskTimeout
		if i == 0 {
			timeout = d.ackTimeout
		}

		ch := make(chan stepOutcome, 2)
		d.tracker.Add(command, expected, timeout,
			func(line string) { ch <- stepOutcome{line: line} },
			func() { ch <- stepOutcome{timedOut: true} },
		)
		if spec.canFail && expected == RespTaskDone {
			// Alternate terminal. Its own timeout is silent: the primary
			// expectation owns the deadline.
			d.tracker.Add(command, RespTaskFailed, timeout,
				func(line string) { ch <- stepOutcome{failed: true, line: line} },
				nil,
			)
		}

		select {
		case out := <-ch:
			d.tracker.CancelCommand(command)
			switch {
			case out.timedOut:
				return d.finish(timeoutResult(command, expected))
			case out.failed:
				return d.finish(taskFailedResult(command, out.line))
			default:
				last = out.line
			}
		case <-inf.cancel:
			d.tracker.CancelCommand(command)
			return d.finish(taskFailedResult(command, "interrupted by stop"))
		case <-down:
			d.tracker.CancelCommand(command)
			return d.finish(connErrorResult(command, "connection lost"))
		}
	}
	return d.finish(successResult(command, last))
}

// sendStop interrupts the in-flight command, then issues stop with its own
// ack-only expectation, bypassing the send serialization so it can overtake
// a long-running task.
func (d *Dispatcher) sendStop(args []float64) CommandResult {
	d.mu.Lock()
	inf := d.inFlight
	d.mu.Unlock()
	if inf != nil {
		d.tracker.CancelCommand(inf.command)
		inf.interrupt()
	}

	const command = "stop"
	if d.link.State() != StateConnected {
		return d.finish(connErrorResult(command, "not connected"))
	}
	down := d.link.DownSignal()

	if err := d.link.Send(EncodeCommand(command, args...)); err != nil {
		return d.finish(connErrorResult(command, err.Error()))
	}
	if d.emitter != nil {
		d.emitter.EmitCommandSent(command)
	}

	ch := make(chan stepOutcome, 1)
	d.tracker.Add(command, RespAck, d.ackTimeout,
		func(line string) { ch <- stepOutcome{line: line} },
		func() { ch <- stepOutcome{timedOut: true} },
	)
	select {
	case out := <-ch:
		if out.timedOut {
			return d.finish(timeoutResult(command, RespAck))
		}
		return d.finish(successResult(command, out.line))
	case <-down:
		d.tracker.CancelCommand(command)
		return d.finish(connErrorResult(command, "connection lost"))
	}
}

func (d *Dispatcher) finish(r CommandResult) CommandResult {
	if d.emitter != nil {
		d.emitter.EmitCommandResult(r)
	}
	return r
}
