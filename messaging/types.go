package messaging

// CellHeartbeat is the periodic presence report for a cell.
type CellHeartbeat struct {
	CellID    string  `json:"cell_id"`
	Hostname  string  `json:"hostname"`
	Version   string  `json:"version"`
	Uptime    int64   `json:"uptime_s"`
	LinkState string  `json:"link_state"`
	Session   string  `json:"session,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// SessionEvent reports a session lifecycle transition.
type SessionEvent struct {
	CellID     string `json:"cell_id"`
	SessionID  string `json:"session_id"`
	Event      string `json:"event"` // started, inserted, paused, resumed, completed, aborted, failed
	Cursor     int    `json:"cursor,omitempty"`
	Targets    int    `json:"targets,omitempty"`
	FailIndex  int    `json:"fail_index,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
}

// ControlRequest is an inbound supervisor command for a cell.
type ControlRequest struct {
	CellID     string `json:"cell_id"`
	Action     string `json:"action"` // pause, resume, abort, start_batch
	CaptureIdx int    `json:"capture_idx,omitempty"`
}
