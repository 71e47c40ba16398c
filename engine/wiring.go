package engine

import (
	"context"
	"log"
	"time"

	"pickpoint/insert"
	"pickpoint/messaging"
	"pickpoint/posestate"
)

// wireEventHandlers sets up the persistence and telemetry chain:
// command results → command log, session events → session rows + outbox,
// status pushes → pose mirror.
func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		res := evt.Payload.(CommandResultEvent).Result
		detail := res.Response
		if res.Reason != "" {
			detail = res.Reason
		}
		if err := e.db.AppendCommandLog(res.Command, res.Kind.String(), detail); err != nil {
			log.Printf("append command log: %v", err)
		}
	}, EventCommandResult)

	e.Events.SubscribeTypes(func(evt Event) {
		st := evt.Payload.(StatusPushEvent).Status
		pose := &posestate.CellPose{
			CellID:     e.cfg.CellID,
			State:      st.State,
			X:          st.X,
			Y:          st.Y,
			Z:          st.Z,
			U:          st.U,
			QueueIndex: st.QueueIndex,
			QueueSize:  st.QueueSize,
			UpdatedAt:  time.Now(),
		}
		if err := e.poses.SetPose(context.Background(), pose); err != nil {
			e.debugFn("pose mirror: %v", err)
		}
	}, EventStatusPush)

	e.Events.SubscribeTypes(e.handleSessionEvent,
		EventSessionStarted, EventTargetInserted,
		EventSessionPaused, EventSessionResumed,
		EventSessionCompleted, EventSessionAborted, EventSessionFailed)
}

func (e *Engine) handleSessionEvent(evt Event) {
	switch evt.Type {
	case EventSessionStarted:
		p := evt.Payload.(SessionStartedEvent)
		if err := e.db.SetSessionState(p.SessionID, string(insert.SessionRunning)); err != nil {
			log.Printf("session %s state: %v", p.SessionID, err)
		}
		if err := e.db.SetSessionTargets(p.SessionID, p.Targets); err != nil {
			log.Printf("session %s targets: %v", p.SessionID, err)
		}
		e.publishSessionEvent(p.SessionID, "started", messaging.SessionEvent{Targets: p.Targets})
	case EventTargetInserted:
		p := evt.Payload.(TargetInsertedEvent)
		if err := e.db.SetSessionCursor(p.SessionID, p.Index); err != nil {
			log.Printf("session %s cursor: %v", p.SessionID, err)
		}
		if err := e.db.RecordTargetInsert(p.SessionID, p.Target.Index, p.Target.Group, p.Target.X, p.Target.Y, p.RobotX, p.RobotY); err != nil {
			log.Printf("session %s target %d: %v", p.SessionID, p.Index, err)
		}
		e.publishSessionEvent(p.SessionID, "inserted", messaging.SessionEvent{Cursor: p.Index})
	case EventSessionPaused:
		p := evt.Payload.(SessionCursorEvent)
		if err := e.db.SetSessionState(p.SessionID, string(insert.SessionPaused)); err != nil {
			log.Printf("session %s state: %v", p.SessionID, err)
		}
		e.publishSessionEvent(p.SessionID, "paused", messaging.SessionEvent{Cursor: p.Cursor})
	case EventSessionResumed:
		p := evt.Payload.(SessionCursorEvent)
		if err := e.db.SetSessionState(p.SessionID, string(insert.SessionRunning)); err != nil {
			log.Printf("session %s state: %v", p.SessionID, err)
		}
		e.publishSessionEvent(p.SessionID, "resumed", messaging.SessionEvent{Cursor: p.Cursor})
	case EventSessionCompleted:
		p := evt.Payload.(SessionCompletedEvent)
		if err := e.db.CloseSession(p.SessionID, string(insert.SessionCompleted), -1, ""); err != nil {
			log.Printf("session %s close: %v", p.SessionID, err)
		}
		e.publishSessionEvent(p.SessionID, "completed", messaging.SessionEvent{Targets: p.Inserted})
	case EventSessionAborted:
		p := evt.Payload.(SessionCursorEvent)
		if err := e.db.CloseSession(p.SessionID, string(insert.SessionAborted), -1, ""); err != nil {
			log.Printf("session %s close: %v", p.SessionID, err)
		}
		e.publishSessionEvent(p.SessionID, "aborted", messaging.SessionEvent{Cursor: p.Cursor})
	case EventSessionFailed:
		p := evt.Payload.(SessionFailedEvent)
		if err := e.db.CloseSession(p.SessionID, string(insert.SessionFailed), p.Index, p.Reason); err != nil {
			log.Printf("session %s close: %v", p.SessionID, err)
		}
		e.publishSessionEvent(p.SessionID, "failed", messaging.SessionEvent{FailIndex: p.Index, FailReason: p.Reason})
	}

	e.mirrorSession()
}

// publishSessionEvent enqueues a telemetry envelope in the outbox. The
// drainer delivers it once the broker is reachable.
func (e *Engine) publishSessionEvent(sessionID, event string, detail messaging.SessionEvent) {
	if !e.cfg.Messaging.Enabled {
		return
	}
	detail.CellID = e.cfg.CellID
	detail.SessionID = sessionID
	detail.Event = event
	env, err := messaging.NewEnvelope(
		messaging.TypeSessionEvent,
		messaging.Address{Role: "cell", Cell: e.cfg.CellID},
		messaging.Address{Role: "supervisor"},
		&detail,
	)
	if err != nil {
		log.Printf("build session envelope: %v", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("encode session envelope: %v", err)
		return
	}
	if err := e.db.EnqueueOutbox(e.cfg.Messaging.TelemetryTopic, data, messaging.TypeSessionEvent); err != nil {
		log.Printf("enqueue session event: %v", err)
	}
}

func (e *Engine) mirrorSession() {
	snap := e.orch.Snapshot()
	mirror := &posestate.SessionMirror{
		CellID:    e.cfg.CellID,
		SessionID: snap.ID,
		State:     string(snap.State),
		Cursor:    snap.Cursor,
		Targets:   len(snap.Targets),
		UpdatedAt: time.Now(),
	}
	if err := e.poses.SetSession(context.Background(), mirror); err != nil {
		e.debugFn("session mirror: %v", err)
	}
}
