package engine

import (
	"fmt"
	"log"

	"pickpoint/config"
	"pickpoint/insert"
	"pickpoint/posestate"
	"pickpoint/robot"
	"pickpoint/store"
	"pickpoint/vision"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Engine centralizes all business logic and orchestrates subsystems.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	logFn      LogFunc
	debugFn    LogFunc

	conn    *robot.Conn
	tracker *robot.Tracker
	disp    *robot.Dispatcher
	orch    *insert.Orchestrator
	poses   posestate.Store

	Events   *EventBus
	stopChan chan struct{}
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Source     vision.Source
	Poses      posestate.Store
	LogFunc    LogFunc
	Debug      bool
}

// New creates a new Engine. Call Start() to initialize and wire subsystems.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}
	poses := c.Poses
	if poses == nil {
		poses = posestate.NewMemoryStore()
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		logFn:      logFn,
		debugFn:    debugFn,
		poses:      poses,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}

	robotEmit := &robotEmitter{bus: e.Events}
	insertEmit := &insertEmitter{bus: e.Events}

	e.conn = robot.NewConn(e.cfg.Robot)
	e.tracker = robot.NewTracker(robot.DefaultTickInterval)
	e.disp = robot.NewDispatcher(e.conn, e.tracker, robotEmit, e.cfg.Robot.AckTimeout, e.cfg.Robot.TaskTimeout)
	e.conn.OnLine(e.disp.HandleLine)
	e.conn.OnStateChange(func(st robot.ConnState) {
		e.disp.HandleStateChange(st)
		e.Events.Emit(Event{Type: EventLinkStateChanged, Payload: LinkStateEvent{State: st, Name: st.String()}})
	})

	mapper := vision.Homography(e.cfg.Insertion.Homography)
	e.orch = insert.NewOrchestrator(e.disp, mapper, c.Source, insertEmit, e.cfg.Insertion, e.cfg.Sequencer)

	return e
}

// Start wires event handlers, starts the expectation scanner, and begins
// connecting to the robot controller.
func (e *Engine) Start() {
	e.wireEventHandlers()
	e.tracker.Start()

	go func() {
		if err := e.conn.Connect(); err != nil {
			log.Printf("robot: initial connect: %v", err)
		}
	}()

	e.logFn("Engine started: cell=%s robot=%s", e.cfg.CellID, e.conn.Addr())
}

// Stop shuts down all subsystems gracefully.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}

	e.conn.Close()
	e.tracker.Stop()

	e.logFn("Engine stopped")
}

// StartBatch runs the capture-and-insert flow for one capture position and
// returns the new session ID.
func (e *Engine) StartBatch(captureIdx int) (string, error) {
	id, err := e.orch.StartBatch(captureIdx)
	if err != nil {
		return "", err
	}
	if err := e.db.CreateSession(id, captureIdx); err != nil {
		log.Printf("persist session %s: %v", id, err)
	}
	return id, nil
}

// StartWithTargets begins a session over externally supplied, already
// sequenced targets.
func (e *Engine) StartWithTargets(targets []vision.Centroid) (string, error) {
	id, err := e.orch.Start(targets)
	if err != nil {
		return "", err
	}
	if err := e.db.CreateSession(id, -1); err != nil {
		log.Printf("persist session %s: %v", id, err)
	}
	return id, nil
}

// Pause suspends the running session.
func (e *Engine) Pause() error { return e.orch.Pause() }

// Resume continues a paused session.
func (e *Engine) Resume() error { return e.orch.Resume() }

// Abort terminates the active session.
func (e *Engine) Abort() error { return e.orch.Abort() }

// Session returns the current session snapshot.
func (e *Engine) Session() insert.Snapshot { return e.orch.Snapshot() }

// SequencePreview runs boundary filtering, sequencing and subsampling over
// the given points without touching the robot.
func (e *Engine) SequencePreview(points []vision.Centroid) []vision.Centroid {
	filtered := vision.FilterBoundary(points, e.cfg.Sequencer.Boundary)
	seq := vision.NewSequencer(e.cfg.Sequencer)
	return vision.Subsample(seq.Sequence(filtered), e.cfg.Sequencer.SubsampleInterval)
}

// ManualCommand sends a single robot command outside any session. Rejected
// while an insertion session is active.
func (e *Engine) ManualCommand(command string, args ...float64) (robot.CommandResult, error) {
	if e.orch.Active() && command != "stop" && command != "status" {
		return robot.CommandResult{}, fmt.Errorf("insertion session in progress")
	}
	return e.disp.Send(command, args...), nil
}

// EchoTest verifies the command round trip without moving the robot.
func (e *Engine) EchoTest() robot.CommandResult {
	return e.disp.Send("echo")
}

// StopRobot halts motion immediately, interrupting any in-flight command.
func (e *Engine) StopRobot() robot.CommandResult {
	return e.disp.Send("stop")
}

// QueryStatus requests a status push from the controller.
func (e *Engine) QueryStatus() robot.CommandResult {
	return e.disp.Send("status")
}

// LastStatus returns the most recent status push, or nil.
func (e *Engine) LastStatus() *robot.Status { return e.disp.LastStatus() }

// LinkState returns the robot connection state.
func (e *Engine) LinkState() robot.ConnState { return e.conn.State() }

// ConnectLink starts connecting to the robot controller.
func (e *Engine) ConnectLink() error { return e.conn.Connect() }

// DisconnectLink drops the robot connection without closing the link.
// Rejected while an insertion session is active.
func (e *Engine) DisconnectLink() error {
	if e.orch.Active() {
		return fmt.Errorf("insertion session in progress")
	}
	e.conn.Disconnect()
	return nil
}

// LinkStateName implements messaging.StatusSource.
func (e *Engine) LinkStateName() string { return e.conn.State().String() }

// Pose implements messaging.StatusSource.
func (e *Engine) Pose() (float64, float64, float64) {
	st := e.disp.LastStatus()
	if st == nil {
		return 0, 0, 0
	}
	return st.X, st.Y, st.Z
}

// ActiveSessionID implements messaging.StatusSource.
func (e *Engine) ActiveSessionID() string {
	snap := e.orch.Snapshot()
	if snap.State.Terminal() || snap.State == insert.SessionIdle {
		return ""
	}
	return snap.ID
}

// DB returns the database handle.
func (e *Engine) DB() *store.DB { return e.db }

// Poses returns the live pose mirror.
func (e *Engine) Poses() posestate.Store { return e.poses }

// AppConfig returns the app config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

// ConfigPath returns the config file path.
func (e *Engine) ConfigPath() string { return e.configPath }
