package insert

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pickpoint/config"
	"pickpoint/robot"
	"pickpoint/vision"
)

// pollInterval is how often a paused session re-checks for resume/abort.
const pollInterval = 100 * time.Millisecond

var errAborted = errors.New("aborted during capture")

// Orchestrator drives batch insertion: capture, sequence, then one insert
// command per target in visiting order. A single session owns the command
// channel at a time; concurrent batches are rejected.
type Orchestrator struct {
	sender  CommandSender
	mapper  vision.Mapper
	source  vision.Source
	seq     *vision.Sequencer
	emitter Emitter
	insCfg  config.InsertionConfig
	seqCfg  config.SequencerConfig

	mu      sync.Mutex
	session *session
	wg      sync.WaitGroup
}

type session struct {
	id         string
	targets    []vision.Centroid
	preparedAt time.Time
	cursor     int
	state      SessionState
	paused     bool
	aborted    bool
	failIndex  int
	failReason string
}

// NewOrchestrator creates an orchestrator. The sender is typically a
// robot.Dispatcher; mapper and source come from calibration and the vision
// subsystem.
func NewOrchestrator(sender CommandSender, mapper vision.Mapper, source vision.Source, emitter Emitter, insCfg config.InsertionConfig, seqCfg config.SequencerConfig) *Orchestrator {
	return &Orchestrator{
		sender:  sender,
		mapper:  mapper,
		source:  source,
		seq:     vision.NewSequencer(seqCfg),
		emitter: emitter,
		insCfg:  insCfg,
		seqCfg:  seqCfg,
	}
}

// StartBatch runs the full capture-and-insert flow for one capture
// position: jump there, capture with retries, sequence, drop to travel
// height, insert every target. Returns the new session ID.
func (o *Orchestrator) StartBatch(captureIdx int) (string, error) {
	if captureIdx < 0 || captureIdx >= len(o.insCfg.CapturePositions) {
		return "", fmt.Errorf("capture position %d out of range", captureIdx)
	}
	s, err := o.newSession(SessionCapturing)
	if err != nil {
		return "", err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runBatch(s, captureIdx)
	}()
	return s.id, nil
}

// Start begins a session over externally supplied targets, already
// sequenced. Used when the caller did its own capture.
func (o *Orchestrator) Start(targets []vision.Centroid) (string, error) {
	if len(targets) == 0 {
		return "", fmt.Errorf("no targets")
	}
	s, err := o.newSession(SessionRunning)
	if err != nil {
		return "", err
	}
	s.targets = targets
	s.preparedAt = time.Now()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runInserts(s)
	}()
	return s.id, nil
}

func (o *Orchestrator) newSession(initial SessionState) (*session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil && !o.session.state.Terminal() {
		return nil, fmt.Errorf("insertion session %s already in progress", o.session.id)
	}
	s := &session{
		id:        uuid.New().String(),
		cursor:    -1,
		state:     initial,
		failIndex: -1,
	}
	o.session = s
	return s, nil
}

// Pause suspends the running session after the in-flight insert finishes.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	s := o.session
	if s == nil || s.state.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("no insertion in progress")
	}
	if s.paused {
		o.mu.Unlock()
		return nil
	}
	s.paused = true
	s.state = SessionPaused
	id, cursor := s.id, s.cursor
	o.mu.Unlock()
	log.Printf("insert: session %s paused at %d", id, cursor)
	o.emitter.EmitSessionPaused(id, cursor)
	return nil
}

// Resume continues a paused session from the current cursor.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	s := o.session
	if s == nil || s.state.Terminal() || !s.paused {
		o.mu.Unlock()
		return fmt.Errorf("no paused insertion")
	}
	s.paused = false
	s.state = SessionRunning
	id, cursor := s.id, s.cursor
	o.mu.Unlock()
	log.Printf("insert: session %s resumed at %d", id, cursor)
	o.emitter.EmitSessionResumed(id, cursor)
	return nil
}

// Abort terminates the session. Already-executed inserts stand.
func (o *Orchestrator) Abort() error {
	o.mu.Lock()
	s := o.session
	if s == nil || s.state.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("no insertion in progress")
	}
	s.aborted = true
	o.mu.Unlock()
	return nil
}

// Active reports whether a session is currently non-terminal.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil && !o.session.state.Terminal()
}

// Snapshot returns the current session view, or a zero snapshot with state
// Idle when none exists.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return Snapshot{State: SessionIdle, Cursor: -1, FailIndex: -1}
	}
	targets := make([]vision.Centroid, len(s.targets))
	copy(targets, s.targets)
	return Snapshot{
		ID:         s.id,
		State:      s.state,
		Targets:    targets,
		Cursor:     s.cursor,
		FailIndex:  s.failIndex,
		FailReason: s.failReason,
	}
}

// Wait blocks until the active session goroutine exits. Test hook.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) runBatch(s *session, captureIdx int) {
	pos := o.insCfg.CapturePositions[captureIdx]

	if res := o.sender.Send("jump", pos[0], pos[1], pos[2], pos[3]); !res.OK() {
		o.fail(s, -1, "capture positioning failed: "+resultReason(res))
		return
	}

	points, err := o.captureWithRetries(s)
	if err != nil {
		if errors.Is(err, errAborted) {
			o.markAborted(s)
			return
		}
		o.fail(s, -1, err.Error())
		return
	}

	filtered := vision.FilterBoundary(points, o.seqCfg.Boundary)
	targets := o.seq.Sequence(filtered)
	targets = vision.Subsample(targets, o.seqCfg.SubsampleInterval)
	if len(targets) < len(filtered) {
		log.Printf("insert: sequencer emitted %d of %d points", len(targets), len(filtered))
		o.emitter.EmitSequencingDegenerate(len(filtered), len(targets))
	}
	if len(targets) == 0 {
		o.fail(s, -1, "no targets after sequencing")
		return
	}

	o.mu.Lock()
	s.targets = targets
	s.preparedAt = time.Now()
	o.mu.Unlock()

	// Drop to travel height so subsequent jumps clear the limit Z.
	if res := o.sender.Send("jump", pos[0], pos[1], o.insCfg.ZTravel, 0); !res.OK() {
		o.fail(s, -1, "travel positioning failed: "+resultReason(res))
		return
	}

	o.runInserts(s)
}

func (o *Orchestrator) captureWithRetries(s *session) ([]vision.Centroid, error) {
	attempts := o.insCfg.CaptureRetries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if o.isAborted(s) {
			return nil, errAborted
		}
		points, err := o.source.CaptureAndFindCentroids()
		if err == nil {
			return points, nil
		}
		lastErr = err
		log.Printf("insert: capture attempt %d/%d failed: %v", i+1, attempts, err)
		if i < attempts-1 {
			time.Sleep(o.insCfg.CaptureRetryWait)
		}
	}
	return nil, fmt.Errorf("capture failed after %d attempts: %w", attempts, lastErr)
}

func (o *Orchestrator) runInserts(s *session) {
	o.mu.Lock()
	if !s.paused && !s.aborted {
		s.state = SessionRunning
	}
	stale := o.insCfg.Freshness > 0 && time.Since(s.preparedAt) > o.insCfg.Freshness
	id := s.id
	total := len(s.targets)
	o.mu.Unlock()

	if stale {
		o.fail(s, -1, "capture is stale")
		return
	}
	o.emitter.EmitSessionStarted(id, total)
	log.Printf("insert: session %s started with %d targets", id, total)

	for {
		o.mu.Lock()
		if s.aborted {
			s.state = SessionAborted
			cursor := s.cursor
			o.mu.Unlock()
			log.Printf("insert: session %s aborted at %d", id, cursor)
			o.emitter.EmitSessionAborted(id, cursor)
			return
		}
		if s.paused {
			o.mu.Unlock()
			time.Sleep(pollInterval)
			continue
		}
		if s.cursor+1 >= len(s.targets) {
			s.state = SessionCompleted
			o.mu.Unlock()
			log.Printf("insert: session %s completed (%d targets)", id, total)
			o.emitter.EmitSessionCompleted(id, total)
			return
		}
		s.cursor++
		i := s.cursor
		target := s.targets[i]
		o.mu.Unlock()

		rx, ry := o.mapper.Map(target.X, target.Y)
		res := o.sender.Send("insert", rx, ry, o.insCfg.ZInsert, 0)
		if !res.OK() {
			o.fail(s, i, resultReason(res))
			return
		}
		o.emitter.EmitTargetInserted(id, i, target, rx, ry)
	}
}

func (o *Orchestrator) fail(s *session, index int, reason string) {
	o.mu.Lock()
	s.state = SessionFailed
	s.failIndex = index
	s.failReason = reason
	id := s.id
	o.mu.Unlock()
	log.Printf("insert: session %s failed at %d: %s", id, index, reason)
	o.emitter.EmitSessionFailed(id, index, reason)
}

func (o *Orchestrator) markAborted(s *session) {
	o.mu.Lock()
	s.state = SessionAborted
	id, cursor := s.id, s.cursor
	o.mu.Unlock()
	log.Printf("insert: session %s aborted at %d", id, cursor)
	o.emitter.EmitSessionAborted(id, cursor)
}

func (o *Orchestrator) isAborted(s *session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return s.aborted
}

// resultReason flattens a non-success command result into a one-line
// failure reason.
func resultReason(r robot.CommandResult) string {
	switch r.Kind {
	case robot.ResultTimeout:
		return "timeout waiting for " + r.WaitedFor
	case robot.ResultConnectionError:
		return "connection error: " + r.Reason
	case robot.ResultTaskFailed:
		return "task failed: " + r.Reason
	}
	return r.Kind.String()
}
