package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL DEFAULT 'capturing',
	capture_idx INTEGER NOT NULL DEFAULT 0,
	target_count INTEGER NOT NULL DEFAULT 0,
	cursor INTEGER NOT NULL DEFAULT -1,
	fail_index INTEGER NOT NULL DEFAULT -1,
	fail_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_targets (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	idx INTEGER NOT NULL,
	grp INTEGER NOT NULL,
	img_x DOUBLE PRECISION NOT NULL,
	img_y DOUBLE PRECISION NOT NULL,
	robot_x DOUBLE PRECISION NOT NULL,
	robot_y DOUBLE PRECISION NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_session_targets_session ON session_targets(session_id);

CREATE TABLE IF NOT EXISTS command_log (
	id BIGSERIAL PRIMARY KEY,
	command TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox (
	id BIGSERIAL PRIMARY KEY,
	topic TEXT NOT NULL,
	payload BYTEA NOT NULL,
	msg_type TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	sent_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS admin_users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
