package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL DEFAULT 'capturing',
	capture_idx INTEGER NOT NULL DEFAULT 0,
	target_count INTEGER NOT NULL DEFAULT 0,
	cursor INTEGER NOT NULL DEFAULT -1,
	fail_index INTEGER NOT NULL DEFAULT -1,
	fail_reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS session_targets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	idx INTEGER NOT NULL,
	grp INTEGER NOT NULL,
	img_x REAL NOT NULL,
	img_y REAL NOT NULL,
	robot_x REAL NOT NULL,
	robot_y REAL NOT NULL,
	inserted_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_session_targets_session ON session_targets(session_id);

CREATE TABLE IF NOT EXISTS command_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic TEXT NOT NULL,
	payload BLOB NOT NULL,
	msg_type TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
	sent_at TEXT
);

CREATE TABLE IF NOT EXISTS admin_users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
