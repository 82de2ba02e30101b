package store

import "fmt"

// migrations are applied in order; migrations[i] brings the schema to
// version i+1.
var migrations = []func(*DB) error{
	(*DB).migrateV1,
	(*DB).migrateV2,
}

// currentSchemaVersion is the latest schema version.
var currentSchemaVersion = len(migrations)

// Migrate runs forward migrations to bring the database schema up to date.
func (db *DB) Migrate() error {
	// Create the schema_version table if it does not exist.
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	for v := version; v < currentSchemaVersion; v++ {
		if err := migrations[v](db); err != nil {
			return fmt.Errorf("migration v%d: %w", v+1, err)
		}
		if err := db.setVersion(v + 1); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version, 0 for a fresh database.
func (db *DB) SchemaVersion() (int, error) {
	version := 0
	row := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means version 0 (fresh database).
		return 0, nil
	}
	return version, nil
}

func (db *DB) setVersion(v int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
		return err
	}
	return tx.Commit()
}

// migrateV1 creates the snapshot and metric tables.
func (db *DB) migrateV1() error {
	return db.execAll(
		`CREATE TABLE IF NOT EXISTS snapshots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at    TEXT NOT NULL,
			command     TEXT NOT NULL,
			version     TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS report_metrics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			project      TEXT NOT NULL,
			metric_name  TEXT NOT NULL,
			metric_value REAL NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_report_metrics_snapshot ON report_metrics(snapshot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_report_metrics_project ON report_metrics(project)`,
	)
}

// migrateV2 adds the category distribution captured with each report.
func (db *DB) migrateV2() error {
	return db.execAll(
		`CREATE TABLE IF NOT EXISTS report_categories (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			project      TEXT NOT NULL,
			category     TEXT NOT NULL,
			sessions     INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_report_categories_snapshot ON report_categories(snapshot_id)`,
	)
}

func (db *DB) execAll(statements ...string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", head(stmt), err)
		}
	}
	return tx.Commit()
}

func head(stmt string) string {
	if len(stmt) > 40 {
		return stmt[:40]
	}
	return stmt
}
