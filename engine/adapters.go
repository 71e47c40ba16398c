package engine

import (
	"pickpoint/robot"
	"pickpoint/vision"
)

// robotEmitter bridges dispatcher observations onto the event bus.
type robotEmitter struct {
	bus *EventBus
}

func (e *robotEmitter) EmitCommandSent(command string) {
	e.bus.Emit(Event{Type: EventCommandSent, Payload: CommandSentEvent{Command: command}})
}

func (e *robotEmitter) EmitCommandResult(result robot.CommandResult) {
	e.bus.Emit(Event{Type: EventCommandResult, Payload: CommandResultEvent{Result: result}})
}

func (e *robotEmitter) EmitStatus(st robot.Status) {
	e.bus.Emit(Event{Type: EventStatusPush, Payload: StatusPushEvent{Status: st}})
}

func (e *robotEmitter) EmitUnexpectedLine(line string) {
	e.bus.Emit(Event{Type: EventUnexpectedLine, Payload: UnexpectedLineEvent{Line: line}})
}

// insertEmitter bridges session lifecycle events onto the event bus.
type insertEmitter struct {
	bus *EventBus
}

func (e *insertEmitter) EmitSessionStarted(sessionID string, targets int) {
	e.bus.Emit(Event{Type: EventSessionStarted, Payload: SessionStartedEvent{SessionID: sessionID, Targets: targets}})
}

func (e *insertEmitter) EmitTargetInserted(sessionID string, index int, target vision.Centroid, robotX, robotY float64) {
	e.bus.Emit(Event{Type: EventTargetInserted, Payload: TargetInsertedEvent{
		SessionID: sessionID,
		Index:     index,
		Target:    target,
		RobotX:    robotX,
		RobotY:    robotY,
	}})
}

func (e *insertEmitter) EmitSessionPaused(sessionID string, cursor int) {
	e.bus.Emit(Event{Type: EventSessionPaused, Payload: SessionCursorEvent{SessionID: sessionID, Cursor: cursor}})
}

func (e *insertEmitter) EmitSessionResumed(sessionID string, cursor int) {
	e.bus.Emit(Event{Type: EventSessionResumed, Payload: SessionCursorEvent{SessionID: sessionID, Cursor: cursor}})
}

func (e *insertEmitter) EmitSessionCompleted(sessionID string, inserted int) {
	e.bus.Emit(Event{Type: EventSessionCompleted, Payload: SessionCompletedEvent{SessionID: sessionID, Inserted: inserted}})
}

func (e *insertEmitter) EmitSessionAborted(sessionID string, cursor int) {
	e.bus.Emit(Event{Type: EventSessionAborted, Payload: SessionCursorEvent{SessionID: sessionID, Cursor: cursor}})
}

func (e *insertEmitter) EmitSessionFailed(sessionID string, index int, reason string) {
	e.bus.Emit(Event{Type: EventSessionFailed, Payload: SessionFailedEvent{SessionID: sessionID, Index: index, Reason: reason}})
}

func (e *insertEmitter) EmitSequencingDegenerate(input, output int) {
	e.bus.Emit(Event{Type: EventSequencingDegenerate, Payload: SequencingDegenerateEvent{Input: input, Output: output}})
}
