package store

import (
	"database/sql"
	"time"
)

// SessionRecord is the persisted view of an insertion session.
type SessionRecord struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	CaptureIdx  int        `json:"capture_idx"`
	TargetCount int        `json:"target_count"`
	Cursor      int        `json:"cursor"`
	FailIndex   int        `json:"fail_index"`
	FailReason  string     `json:"fail_reason"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// TargetRecord is one inserted target within a session.
type TargetRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Index      int       `json:"index"`
	Group      int       `json:"group"`
	ImgX       float64   `json:"img_x"`
	ImgY       float64   `json:"img_y"`
	RobotX     float64   `json:"robot_x"`
	RobotY     float64   `json:"robot_y"`
	InsertedAt time.Time `json:"inserted_at"`
}

func (db *DB) CreateSession(id string, captureIdx int) error {
	_, err := db.Exec(db.Q(`INSERT INTO sessions (id, capture_idx) VALUES (?, ?)`), id, captureIdx)
	return err
}

func (db *DB) SetSessionTargets(id string, count int) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET target_count=? WHERE id=?`), count, id)
	return err
}

func (db *DB) SetSessionState(id, state string) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET state=? WHERE id=?`), state, id)
	return err
}

func (db *DB) SetSessionCursor(id string, cursor int) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET cursor=? WHERE id=?`), cursor, id)
	return err
}

// CloseSession records the terminal state and failure detail, if any.
func (db *DB) CloseSession(id, state string, failIndex int, failReason string) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET state=?, fail_index=?, fail_reason=?, finished_at=datetime('now','localtime') WHERE id=?`),
		state, failIndex, failReason, id)
	return err
}

func (db *DB) RecordTargetInsert(sessionID string, index, group int, imgX, imgY, robotX, robotY float64) error {
	_, err := db.Exec(db.Q(`INSERT INTO session_targets (session_id, idx, grp, img_x, img_y, robot_x, robot_y) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		sessionID, index, group, imgX, imgY, robotX, robotY)
	return err
}

func (db *DB) GetSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(db.Q(`SELECT id, state, capture_idx, target_count, cursor, fail_index, fail_reason, created_at, finished_at FROM sessions WHERE id=?`), id)
	return scanSession(row)
}

func (db *DB) ListSessions(limit int) ([]SessionRecord, error) {
	rows, err := db.Query(db.Q(`SELECT id, state, capture_idx, target_count, cursor, fail_index, fail_reason, created_at, finished_at FROM sessions ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (db *DB) ListSessionTargets(sessionID string) ([]TargetRecord, error) {
	rows, err := db.Query(db.Q(`SELECT id, session_id, idx, grp, img_x, img_y, robot_x, robot_y, inserted_at FROM session_targets WHERE session_id=? ORDER BY idx`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TargetRecord
	for rows.Next() {
		var t TargetRecord
		var insertedAt any
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Index, &t.Group, &t.ImgX, &t.ImgY, &t.RobotX, &t.RobotY, &insertedAt); err != nil {
			return nil, err
		}
		t.InsertedAt = parseTime(insertedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt, finishedAt any
	if err := row.Scan(&rec.ID, &rec.State, &rec.CaptureIdx, &rec.TargetCount, &rec.Cursor, &rec.FailIndex, &rec.FailReason, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.FinishedAt = parseTimePtr(finishedAt)
	return &rec, nil
}

func scanSessionRows(rows *sql.Rows) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt, finishedAt any
	if err := rows.Scan(&rec.ID, &rec.State, &rec.CaptureIdx, &rec.TargetCount, &rec.Cursor, &rec.FailIndex, &rec.FailReason, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.FinishedAt = parseTimePtr(finishedAt)
	return &rec, nil
}
