package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "atoms: atomspace snapshot",
		SQL: `
CREATE TABLE atoms (
    id            INTEGER PRIMARY KEY,
    type          INTEGER NOT NULL,
    name          TEXT NOT NULL,

    -- Truth value
    strength      REAL NOT NULL,
    confidence    REAL NOT NULL,
    evidence      REAL NOT NULL,
    tv_embedding  BLOB NOT NULL,

    -- Learned representation
    embedding     BLOB NOT NULL,
    attention     REAL NOT NULL,

    -- Outgoing hyperedges as packed atom ids
    outgoing      BLOB
);

CREATE INDEX idx_atoms_name ON atoms(name);
`,
	},
	{
		Version:     2,
		Description: "rules: weighted inference rules",
		SQL: `
CREATE TABLE rules (
    id              INTEGER PRIMARY KEY,
    name            TEXT NOT NULL,
    weight          REAL NOT NULL,
    confidence      REAL NOT NULL,
    premise_ids     BLOB NOT NULL,
    premise_weights BLOB NOT NULL,
    conclusion_id   INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "meta: store-level learning state",
		SQL: `
CREATE TABLE meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
