package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create history with FTS5",
		SQL: `
			CREATE TABLE history (
				id         TEXT PRIMARY KEY,
				channel    TEXT NOT NULL,
				user_name  TEXT NOT NULL,
				text       TEXT NOT NULL,
				ts         TEXT NOT NULL
			);

			CREATE INDEX idx_history_channel ON history (channel, ts);
			CREATE INDEX idx_history_user ON history (user_name, ts);

			CREATE VIRTUAL TABLE history_fts USING fts5(
				text,
				content='history',
				content_rowid='rowid'
			);

			CREATE TRIGGER history_ai AFTER INSERT ON history BEGIN
				INSERT INTO history_fts(rowid, text) VALUES (new.rowid, new.text);
			END;

			CREATE TRIGGER history_ad AFTER DELETE ON history BEGIN
				INSERT INTO history_fts(history_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			END;
		`,
	},
	{
		Version: 2,
		Name:    "create binds",
		SQL: `
			CREATE TABLE binds (
				key         TEXT PRIMARY KEY,
				text        TEXT NOT NULL,
				owner       TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 3,
		Name:    "create reaction rules",
		SQL: `
			CREATE TABLE reaction_rules (
				channel     TEXT NOT NULL,
				owner       TEXT NOT NULL,
				pattern     TEXT NOT NULL,
				emoji       TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (channel, owner, pattern, emoji)
			);
		`,
	},
}
