// Package store provides SQLite persistence for feedbackwatch report history.
package store

import "time"

// Snapshot represents one point-in-time capture of every project report.
type Snapshot struct {
	ID      int64     `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	Command string    `json:"command"`
	Version string    `json:"version"`
}

// AggregateProject is the project key used for metrics spanning all projects.
const AggregateProject = "*"

// ReportMetric is one named value of a project report within a snapshot.
type ReportMetric struct {
	ID          int64   `json:"id"`
	SnapshotID  int64   `json:"snapshot_id"`
	Project     string  `json:"project"`
	MetricName  string  `json:"metric_name"`
	MetricValue float64 `json:"metric_value"`
}

// CategoryCount is the session count of one feedback category.
type CategoryCount struct {
	Project  string `json:"project"`
	Category string `json:"category"`
	Sessions int    `json:"sessions"`
}

// SnapshotDiff represents the comparison between two snapshots.
type SnapshotDiff struct {
	Previous *Snapshot     `json:"previous"`
	Current  *Snapshot     `json:"current"`
	Deltas   []MetricDelta `json:"deltas"`
}

// Delta directions.
const (
	DirectionImproved  = "improved"
	DirectionRegressed = "regressed"
	DirectionUnchanged = "unchanged"
	DirectionNew       = "new"
)

// MetricDelta represents the change in a single metric between snapshots.
type MetricDelta struct {
	Project   string  `json:"project"`
	Name      string  `json:"name"`
	Previous  float64 `json:"previous"`
	Current   float64 `json:"current"`
	Delta     float64 `json:"delta"`
	Direction string  `json:"direction"`
}
