package insert

import (
	"pickpoint/robot"
	"pickpoint/vision"
)

// SessionState is the lifecycle state of a batch insertion session.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionCapturing SessionState = "capturing"
	SessionRunning   SessionState = "running"
	SessionPaused    SessionState = "paused"
	SessionCompleted SessionState = "completed"
	SessionAborted   SessionState = "aborted"
	SessionFailed    SessionState = "failed"
)

// Terminal reports whether the state ends a session.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionCompleted, SessionAborted, SessionFailed:
		return true
	}
	return false
}

// Snapshot is a point-in-time view of a session for status display.
type Snapshot struct {
	ID         string           `json:"id"`
	State      SessionState     `json:"state"`
	Targets    []vision.Centroid `json:"targets,omitempty"`
	Cursor     int              `json:"cursor"`
	FailIndex  int              `json:"fail_index"`
	FailReason string           `json:"fail_reason,omitempty"`
}

// CommandSender is the protocol surface the orchestrator drives.
// robot.Dispatcher implements it.
type CommandSender interface {
	Send(command string, args ...float64) robot.CommandResult
}

// Emitter receives session lifecycle events. All methods must be
// non-blocking.
type Emitter interface {
	EmitSessionStarted(sessionID string, targets int)
	EmitTargetInserted(sessionID string, index int, target vision.Centroid, robotX, robotY float64)
	EmitSessionPaused(sessionID string, cursor int)
	EmitSessionResumed(sessionID string, cursor int)
	EmitSessionCompleted(sessionID string, inserted int)
	EmitSessionAborted(sessionID string, cursor int)
	EmitSessionFailed(sessionID string, index int, reason string)
	EmitSequencingDegenerate(input, output int)
}
