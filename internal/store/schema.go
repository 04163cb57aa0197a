package store

// Embedded schema, applied idempotently at startup. Keymap profiles
// are the only persisted data; input events are never stored.
const schema = `
CREATE TABLE IF NOT EXISTS keymap_profiles (
	name       TEXT PRIMARY KEY,
	keymap     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_updated_at ON keymap_profiles(updated_at);
`

// sqliteOptimizations are applied once at open.
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA temp_store = MEMORY;
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;
`
