package store

import (
	"database/sql"
	"sort"
	"time"
)

// CreateSnapshot inserts a new snapshot and returns its ID.
func (db *DB) CreateSnapshot(command, version string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO snapshots (taken_at, command, version) VALUES (?, ?, ?)",
		db.now().UTC().Format(time.RFC3339), command, version,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestSnapshot returns the most recent snapshot, or nil if none exist.
func (db *DB) GetLatestSnapshot() (*Snapshot, error) {
	return db.GetSnapshotN(1)
}

// GetSnapshot returns a snapshot by ID, or nil if it does not exist.
func (db *DB) GetSnapshot(id int64) (*Snapshot, error) {
	row := db.conn.QueryRow("SELECT id, taken_at, command, version FROM snapshots WHERE id = ?", id)
	return scanSnapshot(row)
}

// GetSnapshotN returns the Nth most recent snapshot (1 = latest, 2 = previous, etc.).
func (db *DB) GetSnapshotN(n int) (*Snapshot, error) {
	row := db.conn.QueryRow(
		"SELECT id, taken_at, command, version FROM snapshots ORDER BY id DESC LIMIT 1 OFFSET ?",
		n-1,
	)
	return scanSnapshot(row)
}

// ListSnapshots returns up to n snapshots, newest first.
func (db *DB) ListSnapshots(n int) ([]Snapshot, error) {
	rows, err := db.conn.Query(
		"SELECT id, taken_at, command, version FROM snapshots ORDER BY id DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		var takenAt string
		if err := rows.Scan(&s.ID, &takenAt, &s.Command, &s.Version); err != nil {
			return nil, err
		}
		s.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var s Snapshot
	var takenAt string
	err := row.Scan(&s.ID, &takenAt, &s.Command, &s.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
	return &s, nil
}

// InsertReportMetrics stores the named values of one project in a snapshot.
func (db *DB) InsertReportMetrics(snapshotID int64, project string, values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range names {
		if _, err := tx.Exec(
			"INSERT INTO report_metrics (snapshot_id, project, metric_name, metric_value) VALUES (?, ?, ?, ?)",
			snapshotID, project, name, values[name],
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertCategories stores a project's category distribution in a snapshot.
func (db *DB) InsertCategories(snapshotID int64, project string, dist map[string]int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for category, n := range dist {
		if _, err := tx.Exec(
			"INSERT INTO report_categories (snapshot_id, project, category, sessions) VALUES (?, ?, ?, ?)",
			snapshotID, project, category, n,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetReportMetrics returns all metrics for a snapshot ordered by project and name.
func (db *DB) GetReportMetrics(snapshotID int64) ([]ReportMetric, error) {
	rows, err := db.conn.Query(
		`SELECT id, snapshot_id, project, metric_name, metric_value FROM report_metrics
		 WHERE snapshot_id = ? ORDER BY project, metric_name`,
		snapshotID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var metrics []ReportMetric
	for rows.Next() {
		var m ReportMetric
		if err := rows.Scan(&m.ID, &m.SnapshotID, &m.Project, &m.MetricName, &m.MetricValue); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// GetCategories returns the category distribution stored with a snapshot,
// ordered by project then descending session count.
func (db *DB) GetCategories(snapshotID int64) ([]CategoryCount, error) {
	rows, err := db.conn.Query(
		`SELECT project, category, sessions FROM report_categories
		 WHERE snapshot_id = ? ORDER BY project, sessions DESC, category`,
		snapshotID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Project, &c.Category, &c.Sessions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteSnapshotsBefore removes snapshots taken before cutoff along with
// their metrics and returns how many snapshots were deleted.
func (db *DB) DeleteSnapshotsBefore(cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(time.RFC3339)

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so children are removed explicitly.
	for _, table := range []string{"report_metrics", "report_categories"} {
		if _, err := tx.Exec(
			"DELETE FROM "+table+" WHERE snapshot_id IN (SELECT id FROM snapshots WHERE taken_at < ?)", ts,
		); err != nil {
			return 0, err
		}
	}
	result, err := tx.Exec("DELETE FROM snapshots WHERE taken_at < ?", ts)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
