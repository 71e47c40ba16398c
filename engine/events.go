package engine

import (
	"pickpoint/robot"
	"pickpoint/vision"
)

const (
	// Robot link events
	EventLinkStateChanged EventType = iota + 1
	EventCommandSent
	EventCommandResult
	EventStatusPush
	EventUnexpectedLine

	// Insertion session events
	EventSessionStarted
	EventTargetInserted
	EventSessionPaused
	EventSessionResumed
	EventSessionCompleted
	EventSessionAborted
	EventSessionFailed

	// Sequencing events
	EventSequencingDegenerate
)

// LinkStateEvent is emitted on every connection state transition.
type LinkStateEvent struct {
	State robot.ConnState `json:"-"`
	Name  string          `json:"state"`
}

// CommandSentEvent is emitted when a command hits the wire.
type CommandSentEvent struct {
	Command string `json:"command"`
}

// CommandResultEvent carries the outcome of a dispatched command.
type CommandResultEvent struct {
	Result robot.CommandResult `json:"result"`
}

// StatusPushEvent carries an asynchronous pose/queue push.
type StatusPushEvent struct {
	Status robot.Status `json:"status"`
}

// UnexpectedLineEvent is emitted for lines no expectation claimed.
type UnexpectedLineEvent struct {
	Line string `json:"line"`
}

// SessionStartedEvent is emitted when a batch begins inserting.
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	Targets   int    `json:"targets"`
}

// TargetInsertedEvent is emitted after each successful insert.
type TargetInsertedEvent struct {
	SessionID string          `json:"session_id"`
	Index     int             `json:"index"`
	Target    vision.Centroid `json:"target"`
	RobotX    float64         `json:"robot_x"`
	RobotY    float64         `json:"robot_y"`
}

// SessionCursorEvent is emitted on pause, resume and abort.
type SessionCursorEvent struct {
	SessionID string `json:"session_id"`
	Cursor    int    `json:"cursor"`
}

// SessionCompletedEvent is emitted when every target was inserted.
type SessionCompletedEvent struct {
	SessionID string `json:"session_id"`
	Inserted  int    `json:"inserted"`
}

// SessionFailedEvent carries the failing index and reason so callers can
// resume from that index.
type SessionFailedEvent struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Reason    string `json:"reason"`
}

// SequencingDegenerateEvent is emitted when the sequencer dropped points.
type SequencingDegenerateEvent struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}
