package insert

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pickpoint/config"
	"pickpoint/robot"
	"pickpoint/vision"
)

// scriptSender records every command and can fail a chosen insert ordinal
// or gate inserts for pause/abort timing.
type scriptSender struct {
	mu            sync.Mutex
	commands      []string
	insertArgs    [][]float64
	failInsert    int // 0-based insert ordinal to fail, -1 for never
	connErrInsert int // 0-based insert ordinal dropping the link, -1 for never
	insertCount   int

	enter   chan struct{} // if set, signaled at the top of every insert
	release chan struct{} // if set, insert blocks on it before returning
}

func newScriptSender() *scriptSender {
	return &scriptSender{failInsert: -1, connErrInsert: -1}
}

func (s *scriptSender) Send(command string, args ...float64) robot.CommandResult {
	line := command
	for _, a := range args {
		line += fmt.Sprintf(" %.2f", a)
	}
	s.mu.Lock()
	s.commands = append(s.commands, line)
	var ord int
	if command == "insert" {
		ord = s.insertCount
		s.insertCount++
		s.insertArgs = append(s.insertArgs, args)
	}
	failAt, dropAt := s.failInsert, s.connErrInsert
	s.mu.Unlock()

	if command == "insert" {
		if s.enter != nil {
			s.enter <- struct{}{}
		}
		if s.release != nil {
			<-s.release
		}
		if failAt >= 0 && ord == failAt {
			return robot.CommandResult{Kind: robot.ResultTaskFailed, Command: command, Reason: "taskfailed"}
		}
		if dropAt >= 0 && ord == dropAt {
			return robot.CommandResult{Kind: robot.ResultConnectionError, Command: command, Reason: "connection lost"}
		}
	}
	return robot.CommandResult{Kind: robot.ResultSuccess, Command: command, Response: "taskdone"}
}

func (s *scriptSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

type recEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recEmitter) add(ev string) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *recEmitter) EmitSessionStarted(id string, targets int) { e.add(fmt.Sprintf("started %d", targets)) }
func (e *recEmitter) EmitTargetInserted(id string, index int, target vision.Centroid, rx, ry float64) {
	e.add(fmt.Sprintf("inserted %d", index))
}
func (e *recEmitter) EmitSessionPaused(id string, cursor int)  { e.add(fmt.Sprintf("paused %d", cursor)) }
func (e *recEmitter) EmitSessionResumed(id string, cursor int) { e.add(fmt.Sprintf("resumed %d", cursor)) }
func (e *recEmitter) EmitSessionCompleted(id string, inserted int) {
	e.add(fmt.Sprintf("completed %d", inserted))
}
func (e *recEmitter) EmitSessionAborted(id string, cursor int) { e.add(fmt.Sprintf("aborted %d", cursor)) }
func (e *recEmitter) EmitSessionFailed(id string, index int, reason string) {
	e.add(fmt.Sprintf("failed %d: %s", index, reason))
}
func (e *recEmitter) EmitSequencingDegenerate(input, output int) {
	e.add(fmt.Sprintf("degenerate %d->%d", input, output))
}

func (e *recEmitter) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	copy(out, e.events)
	return out
}

func testConfigs() (config.InsertionConfig, config.SequencerConfig) {
	ins := config.InsertionConfig{
		CapturePositions: [][4]float64{{250, 400, -18, 0}},
		ZTravel:          -18,
		ZInsert:          -140,
		CaptureRetries:   3,
		CaptureRetryWait: time.Millisecond,
		Freshness:        time.Minute,
		Homography:       [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	seq := config.SequencerConfig{
		XRange:            500,
		YTolerance:        15,
		SubsampleInterval: 1,
		Boundary:          config.Boundary{XMin: 0, XMax: 2448, YMin: 0, YMax: 2048},
	}
	return ins, seq
}

func newTestOrchestrator(sender CommandSender, source vision.Source, em Emitter) *Orchestrator {
	ins, seq := testConfigs()
	// Scale-by-2 calibration makes mapping visible in the wire args.
	mapper := vision.Homography{2, 0, 0, 0, 2, 0, 0, 0, 1}
	return NewOrchestrator(sender, mapper, source, em, ins, seq)
}

func TestBatchHappyPath(t *testing.T) {
	sender := newScriptSender()
	source := &vision.StaticSource{Points: []vision.Centroid{
		{X: 10, Y: 100}, {X: 60, Y: 102},
		{X: 10, Y: 40}, {X: 58, Y: 41},
	}}
	em := &recEmitter{}
	o := newTestOrchestrator(sender, source, em)

	id, err := o.StartBatch(0)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionCompleted {
		t.Fatalf("state = %s, want completed (%+v)", snap.State, snap)
	}
	if snap.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", snap.Cursor)
	}

	want := []string{
		"jump 250.00 400.00 -18.00 0.00",
		"jump 250.00 400.00 -18.00 0.00", // travel height after capture
		"insert 20.00 80.00 -140.00 0.00",  // (10,40) doubled by calibration
		"insert 116.00 82.00 -140.00 0.00", // (58,41)
		"insert 20.00 200.00 -140.00 0.00", // (10,100)
		"insert 120.00 204.00 -140.00 0.00",
	}
	got := sender.sent()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}

	events := em.all()
	if events[0] != "started 4" || events[len(events)-1] != "completed 4" {
		t.Errorf("events = %v", events)
	}
}

func TestInsertFailureStopsAtIndex(t *testing.T) {
	sender := newScriptSender()
	sender.failInsert = 2
	em := &recEmitter{}
	o := newTestOrchestrator(sender, &vision.StaticSource{}, em)

	targets := []vision.Centroid{
		{X: 1, Y: 1, Index: 0}, {X: 2, Y: 1, Index: 1},
		{X: 3, Y: 1, Index: 2}, {X: 4, Y: 1, Index: 3},
	}
	if _, err := o.Start(targets); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if snap.FailIndex != 2 {
		t.Errorf("FailIndex = %d, want 2", snap.FailIndex)
	}
	if snap.Cursor != 2 {
		t.Errorf("cursor = %d, want 2 (points at the failed target)", snap.Cursor)
	}
	if !strings.Contains(snap.FailReason, "task failed") {
		t.Errorf("FailReason = %q", snap.FailReason)
	}
	if sender.insertCount != 3 {
		t.Errorf("inserts attempted = %d, want 3 (no skip past failure)", sender.insertCount)
	}
}

func TestConnectionLossFailsSession(t *testing.T) {
	sender := newScriptSender()
	sender.connErrInsert = 2
	em := &recEmitter{}
	o := newTestOrchestrator(sender, &vision.StaticSource{}, em)

	targets := []vision.Centroid{
		{X: 1, Y: 1, Index: 0}, {X: 2, Y: 1, Index: 1},
		{X: 3, Y: 1, Index: 2}, {X: 4, Y: 1, Index: 3},
		{X: 5, Y: 1, Index: 4},
	}
	if _, err := o.Start(targets); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if snap.FailIndex != 2 {
		t.Errorf("FailIndex = %d, want 2", snap.FailIndex)
	}
	if snap.Cursor != 2 {
		t.Errorf("cursor = %d, want 2 (points at the dropped insert)", snap.Cursor)
	}
	if !strings.Contains(snap.FailReason, "connection error") {
		t.Errorf("FailReason = %q", snap.FailReason)
	}

	// The link coming back does not revive a failed session.
	sender.mu.Lock()
	sender.connErrInsert = -1
	sender.mu.Unlock()
	if err := o.Resume(); err == nil {
		t.Error("failed session accepted Resume")
	}
	time.Sleep(20 * time.Millisecond)
	if sender.insertCount != 3 {
		t.Errorf("inserts attempted = %d, want 3 (nothing dispatched after failure)", sender.insertCount)
	}
	if st := o.Snapshot().State; st != SessionFailed {
		t.Errorf("state = %s, want failed after link recovery", st)
	}
}

func TestPauseResume(t *testing.T) {
	sender := newScriptSender()
	sender.enter = make(chan struct{})
	sender.release = make(chan struct{})
	em := &recEmitter{}
	o := newTestOrchestrator(sender, &vision.StaticSource{}, em)

	targets := []vision.Centroid{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 3, Y: 1}}
	if _, err := o.Start(targets); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-sender.enter // first insert in flight
	if err := o.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	sender.release <- struct{}{} // let the in-flight insert finish

	waitForState(t, o, SessionPaused)
	snap := o.Snapshot()
	if snap.Cursor != 0 {
		t.Errorf("paused cursor = %d, want 0 (in-flight insert completed)", snap.Cursor)
	}

	if err := o.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	for i := 0; i < 2; i++ {
		<-sender.enter
		sender.release <- struct{}{}
	}
	o.Wait()

	if st := o.Snapshot().State; st != SessionCompleted {
		t.Fatalf("state = %s, want completed", st)
	}
	if sender.insertCount != 3 {
		t.Errorf("inserts = %d, want 3 (resume from cursor, no repeat)", sender.insertCount)
	}
}

func TestAbortDuringRun(t *testing.T) {
	sender := newScriptSender()
	sender.enter = make(chan struct{})
	sender.release = make(chan struct{})
	em := &recEmitter{}
	o := newTestOrchestrator(sender, &vision.StaticSource{}, em)

	if _, err := o.Start([]vision.Centroid{{X: 1, Y: 1}, {X: 2, Y: 1}}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-sender.enter
	if err := o.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	sender.release <- struct{}{}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionAborted {
		t.Fatalf("state = %s, want aborted", snap.State)
	}
	if snap.Cursor != 0 {
		t.Errorf("cursor = %d, want 0 (executed inserts stand)", snap.Cursor)
	}
	if sender.insertCount != 1 {
		t.Errorf("inserts = %d, want 1", sender.insertCount)
	}
}

func TestAbortDuringCapture(t *testing.T) {
	sender := newScriptSender()
	source := &vision.StaticSource{FailNext: 1000}
	em := &recEmitter{}
	ins, seq := testConfigs()
	ins.CaptureRetries = 1000
	ins.CaptureRetryWait = 5 * time.Millisecond
	o := NewOrchestrator(sender, vision.Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}, source, em, ins, seq)

	if _, err := o.StartBatch(0); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := o.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	o.Wait()

	if st := o.Snapshot().State; st != SessionAborted {
		t.Fatalf("state = %s, want aborted (not failed)", st)
	}
}

func TestCaptureRetryExhaustion(t *testing.T) {
	sender := newScriptSender()
	source := &vision.StaticSource{FailNext: 3}
	em := &recEmitter{}
	o := newTestOrchestrator(sender, source, em)

	if _, err := o.StartBatch(0); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if !strings.Contains(snap.FailReason, "capture failed after 3 attempts") {
		t.Errorf("FailReason = %q", snap.FailReason)
	}
	if snap.FailIndex != -1 {
		t.Errorf("FailIndex = %d, want -1 (failed before inserting)", snap.FailIndex)
	}
}

func TestCaptureRetrySucceedsWithinBudget(t *testing.T) {
	sender := newScriptSender()
	source := &vision.StaticSource{
		Points:   []vision.Centroid{{X: 10, Y: 10}},
		FailNext: 2, // third attempt succeeds
	}
	em := &recEmitter{}
	o := newTestOrchestrator(sender, source, em)

	if _, err := o.StartBatch(0); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	o.Wait()

	if st := o.Snapshot().State; st != SessionCompleted {
		t.Fatalf("state = %s, want completed", st)
	}
}

func TestConcurrentSessionRejected(t *testing.T) {
	sender := newScriptSender()
	sender.enter = make(chan struct{})
	sender.release = make(chan struct{})
	o := newTestOrchestrator(sender, &vision.StaticSource{}, &recEmitter{})

	if _, err := o.Start([]vision.Centroid{{X: 1, Y: 1}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-sender.enter

	if _, err := o.Start([]vision.Centroid{{X: 2, Y: 2}}); err == nil {
		t.Error("second session should be rejected while one runs")
	}
	if _, err := o.StartBatch(0); err == nil {
		t.Error("batch should be rejected while a session runs")
	}

	sender.release <- struct{}{}
	o.Wait()

	// After the terminal state a new session is allowed again.
	sender.enter = nil
	sender.release = nil
	if _, err := o.Start([]vision.Centroid{{X: 3, Y: 3}}); err != nil {
		t.Errorf("session after terminal state rejected: %v", err)
	}
	o.Wait()
}

func TestStaleCaptureRejected(t *testing.T) {
	sender := newScriptSender()
	em := &recEmitter{}
	ins, seq := testConfigs()
	ins.Freshness = time.Nanosecond
	o := NewOrchestrator(sender, vision.Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}, &vision.StaticSource{}, em, ins, seq)

	if _, err := o.Start([]vision.Centroid{{X: 1, Y: 1}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if !strings.Contains(snap.FailReason, "stale") {
		t.Errorf("FailReason = %q", snap.FailReason)
	}
	if sender.insertCount != 0 {
		t.Errorf("inserts = %d, want 0", sender.insertCount)
	}
}

func TestStartBatchBadCaptureIndex(t *testing.T) {
	o := newTestOrchestrator(newScriptSender(), &vision.StaticSource{}, &recEmitter{})
	if _, err := o.StartBatch(5); err == nil {
		t.Error("out-of-range capture index accepted")
	}
	if _, err := o.StartBatch(-1); err == nil {
		t.Error("negative capture index accepted")
	}
}

func TestSnapshotIdle(t *testing.T) {
	o := newTestOrchestrator(newScriptSender(), &vision.StaticSource{}, &recEmitter{})
	snap := o.Snapshot()
	if snap.State != SessionIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
	if snap.Cursor != -1 {
		t.Errorf("cursor = %d, want -1", snap.Cursor)
	}
	if o.Active() {
		t.Error("idle orchestrator reports active")
	}
}

func TestNoTargetsAfterSequencing(t *testing.T) {
	sender := newScriptSender()
	// Both points outside the boundary box.
	source := &vision.StaticSource{Points: []vision.Centroid{{X: -5, Y: 10}, {X: 3000, Y: 10}}}
	em := &recEmitter{}
	o := newTestOrchestrator(sender, source, em)

	if _, err := o.StartBatch(0); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.State != SessionFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if !strings.Contains(snap.FailReason, "no targets") {
		t.Errorf("FailReason = %q", snap.FailReason)
	}
}

func waitForState(t *testing.T, o *Orchestrator, want SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for o.Snapshot().State != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", o.Snapshot().State, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
