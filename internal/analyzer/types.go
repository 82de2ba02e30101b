// Package analyzer computes per-project and cross-project reports from the
// on-disk session logs.
package analyzer

import (
	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

// ProjectReport aggregates the summary log of one project.
type ProjectReport struct {
	ProjectName  string            `json:"project_name"`
	AnalysisTime session.Timestamp `json:"analysis_time"`

	// TotalSessions is the number of summary lines read.
	TotalSessions int `json:"total_sessions"`

	// AutoTerminatedSessions counts sessions whose end reason starts with "auto_".
	AutoTerminatedSessions int     `json:"auto_terminated_sessions"`
	AutoTerminationRate    float64 `json:"auto_termination_rate"`

	AverageDurationSeconds float64 `json:"average_duration_seconds"`
	AverageUserMessages    float64 `json:"average_user_messages"`
	AverageToolCalls       float64 `json:"average_tool_calls"`

	// HighRiskSessions counts sessions with more than the configured number of
	// risk indicators (HighRiskThreshold by default).
	HighRiskSessions int     `json:"high_risk_sessions"`
	HighRiskRate     float64 `json:"high_risk_rate"`

	// CategoryDistribution maps feedback category to the number of sessions using it.
	CategoryDistribution map[string]int `json:"category_distribution"`

	// RecentSessions holds the last RecentSessionsLimit summaries in storage order.
	RecentSessions []session.Summary `json:"recent_sessions"`

	// SkippedLines is the number of malformed summary lines ignored.
	SkippedLines int `json:"skipped_lines,omitempty"`
}

// ProjectListing is one row of the project list.
type ProjectListing struct {
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`

	// HasSummary is false when the project directory has no summary log yet.
	HasSummary bool `json:"has_summary"`
}

// Count is a named frequency.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Interruption is one session_interrupted event.
type Interruption struct {
	Time      session.Timestamp `json:"time"`
	SessionID string            `json:"session_id"`
	Reason    string            `json:"reason"`
}

// PatternReport surfaces recurring problems in a project's logs.
type PatternReport struct {
	ProjectName string `json:"project_name"`

	// TotalInterruptions is the number of session_interrupted events.
	TotalInterruptions int `json:"total_interruptions"`

	// RecentInterruptions holds the last RecentInterruptionsLimit interruptions.
	RecentInterruptions []Interruption `json:"recent_interruptions"`

	// FeedbackCategories counts interactive_feedback_called events by category,
	// most frequent first.
	FeedbackCategories []Count `json:"feedback_categories"`

	// AutoTerminated is the number of auto-terminated session snapshots.
	AutoTerminated int `json:"auto_terminated"`

	// EndReasons counts end reasons across auto-terminated snapshots.
	EndReasons []Count `json:"end_reasons"`

	// TopRiskIndicators counts indicators across auto-terminated snapshots,
	// limited to TopRiskIndicatorsLimit.
	TopRiskIndicators []Count `json:"top_risk_indicators"`
}

// Overview summarizes every project.
type Overview struct {
	Projects               int      `json:"projects"`
	ProjectsWithSessions   int      `json:"projects_with_sessions"`
	TotalSessions          int      `json:"total_sessions"`
	AutoTerminatedSessions int      `json:"auto_terminated_sessions"`
	AutoTerminationRate    float64  `json:"auto_termination_rate"`
	AverageDurationSeconds float64  `json:"average_duration_seconds"`
	Categories             []string `json:"categories"`

	Reports []ProjectReport `json:"reports"`
}
