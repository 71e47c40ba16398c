package store

import "time"

// CommandLogEntry records one robot command and its outcome.
type CommandLogEntry struct {
	ID        int64     `json:"id"`
	Command   string    `json:"command"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) AppendCommandLog(command, kind, detail string) error {
	_, err := db.Exec(db.Q(`INSERT INTO command_log (command, kind, detail) VALUES (?, ?, ?)`), command, kind, detail)
	return err
}

func (db *DB) ListRecentCommands(limit int) ([]CommandLogEntry, error) {
	rows, err := db.Query(db.Q(`SELECT id, command, kind, detail, created_at FROM command_log ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommandLogEntry
	for rows.Next() {
		var e CommandLogEntry
		var createdAt any
		if err := rows.Scan(&e.ID, &e.Command, &e.Kind, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
