package store

// migrations run in order at startup. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS evidence (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		scheme_id     TEXT    NOT NULL,
		source        TEXT    NOT NULL,
		document_id   TEXT    NOT NULL DEFAULT '',
		title         TEXT    NOT NULL DEFAULT '',
		excerpt       TEXT    NOT NULL DEFAULT '',
		url           TEXT    NOT NULL DEFAULT '',
		document_date TEXT,
		indication    TEXT    NOT NULL,
		content_hash  TEXT    NOT NULL,
		weight        REAL    NOT NULL CHECK(weight BETWEEN 0.0 AND 1.0),
		first_seen    TEXT    NOT NULL,
		last_seen     TEXT    NOT NULL,
		UNIQUE (scheme_id, source, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_evidence_scheme ON evidence (scheme_id, id)`,
	`CREATE TABLE IF NOT EXISTS verification_status (
		scheme_id            TEXT    PRIMARY KEY,
		status               TEXT    NOT NULL,
		trust_score          REAL    NOT NULL CHECK(trust_score BETWEEN 0.0 AND 1.0),
		score_band           TEXT    NOT NULL,
		gazette_confirmed    INTEGER NOT NULL DEFAULT 0,
		act_confirmed        INTEGER NOT NULL DEFAULT 0,
		parliament_confirmed INTEGER NOT NULL DEFAULT 0,
		conflict_streak      INTEGER NOT NULL DEFAULT 0,
		sources_checked      TEXT    NOT NULL DEFAULT '[]',
		last_verified        TEXT,
		version              INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_status_score ON verification_status (trust_score)`,
	`CREATE TABLE IF NOT EXISTS changelog (
		id          TEXT    PRIMARY KEY,
		scheme_id   TEXT    NOT NULL,
		seq         INTEGER NOT NULL,
		change_type TEXT    NOT NULL,
		field       TEXT    NOT NULL,
		old_value   TEXT    NOT NULL,
		new_value   TEXT    NOT NULL,
		sources     TEXT    NOT NULL DEFAULT '[]',
		run_id      TEXT    NOT NULL DEFAULT '',
		reason      TEXT    NOT NULL DEFAULT '',
		detected_at TEXT    NOT NULL,
		UNIQUE (scheme_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS source_health (
		source       TEXT    PRIMARY KEY,
		online       INTEGER NOT NULL,
		last_outcome TEXT    NOT NULL,
		last_error   TEXT    NOT NULL DEFAULT '',
		breaker      TEXT    NOT NULL DEFAULT 'closed',
		last_checked TEXT    NOT NULL,
		last_success TEXT
	)`,
}
