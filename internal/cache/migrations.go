package cache

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS message_summaries (
	id         TEXT PRIMARY KEY,
	folder     TEXT NOT NULL,
	message_id TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	date       DATETIME,
	read       INTEGER NOT NULL DEFAULT 0,
	starred    INTEGER NOT NULL DEFAULT 0,
	answered   INTEGER NOT NULL DEFAULT 0,
	deleted    INTEGER NOT NULL DEFAULT 0,
	forwarded  INTEGER NOT NULL DEFAULT 0,
	mdn_sent   INTEGER NOT NULL DEFAULT 0,
	fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_summaries_folder_date
	ON message_summaries(folder, date DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_summaries_subject
	ON message_summaries(subject);
`,
	},
}
