package db

import "database/sql"

// MigrateUp creates the subscriptions table the hub subscriber persists
// its state in. The schema is deliberately tiny — one row per feed URL
// under subscription — so the same statements work, with minor type
// substitutions, against both Postgres and SQLite.
func MigrateUp(db *sql.DB, dialect Dialect) error {
	timestampType := "TIMESTAMPTZ"
	if dialect == DialectSQLite {
		timestampType = "TIMESTAMP"
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS subscriptions (
    url            TEXT PRIMARY KEY,
    hub_url        TEXT NOT NULL,
    mode           TEXT NOT NULL,
    verify_token   TEXT NOT NULL,
    verified       BOOLEAN NOT NULL DEFAULT FALSE,
    lease_seconds  BIGINT NOT NULL DEFAULT 0,
    created_at     ` + timestampType + ` NOT NULL,
    updated_at     ` + timestampType + ` NOT NULL
)`); err != nil {
		return err
	}

	if _, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_verified ON subscriptions(verified)`,
	); err != nil {
		return err
	}

	return nil
}

// MigrateDown drops the subscriptions table. Use with caution: this
// deletes all persisted subscription state.
func MigrateDown(db *sql.DB) error {
	_, err := db.Exec(`DROP TABLE IF EXISTS subscriptions`)
	return err
}
