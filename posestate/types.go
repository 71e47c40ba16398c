package posestate

import (
	"context"
	"time"
)

// CellPose is the last reported robot pose and queue position for a cell.
type CellPose struct {
	CellID     string    `json:"cell_id"`
	State      int       `json:"state"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	U          float64   `json:"u"`
	QueueIndex int       `json:"queue_index"`
	QueueSize  int       `json:"queue_size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionMirror is the last reported session snapshot for a cell.
type SessionMirror struct {
	CellID    string    `json:"cell_id"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Cursor    int       `json:"cursor"`
	Targets   int       `json:"targets"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store mirrors live cell state for external dashboards.
type Store interface {
	SetPose(ctx context.Context, pose *CellPose) error
	GetPose(ctx context.Context, cellID string) (*CellPose, error)
	SetSession(ctx context.Context, mirror *SessionMirror) error
	GetSession(ctx context.Context, cellID string) (*SessionMirror, error)
	ListCellIDs(ctx context.Context) ([]string, error)
	RemoveCell(ctx context.Context, cellID string) error
}
