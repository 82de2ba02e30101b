// Package suggest turns session reports into ranked recommendations.
package suggest

// Priority levels for suggestions.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// Categories a rule can file a suggestion under.
const (
	CategoryTermination = "termination"
	CategoryRisk        = "risk"
	CategoryFriction    = "friction"
	CategoryAdoption    = "adoption"
	CategoryTrend       = "trend"
)

// Suggestion represents an actionable improvement recommendation.
type Suggestion struct {
	Category    string  `json:"category"`
	Priority    int     `json:"priority"`
	Project     string  `json:"project,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImpactScore float64 `json:"impact_score"`
}

// AnalysisContext is everything the rules look at. The suggest command fills
// it from the analyzer and the report history database.
type AnalysisContext struct {
	Projects []ProjectContext `json:"projects"`

	// TotalSessions is the number of finished sessions across all projects.
	TotalSessions int `json:"total_sessions"`

	// MetricTrends maps an aggregate history metric to the direction of its
	// last change (store.DirectionImproved, DirectionRegressed, ...).
	MetricTrends map[string]string `json:"metric_trends"`
}

// ProjectContext is the per-project slice of an AnalysisContext.
type ProjectContext struct {
	Name                string  `json:"name"`
	Sessions            int     `json:"sessions"`
	AutoTerminated      int     `json:"auto_terminated"`
	AutoTerminationRate float64 `json:"auto_termination_rate"`
	HighRiskSessions    int     `json:"high_risk_sessions"`
	HighRiskRate        float64 `json:"high_risk_rate"`
	AvgDurationSeconds  float64 `json:"avg_duration_seconds"`
	AvgUserMessages     float64 `json:"avg_user_messages"`
	FeedbackCategories  int     `json:"feedback_categories"`
	Interruptions       int     `json:"interruptions"`

	// TopEndReason is the most common reason among auto-terminated sessions.
	TopEndReason string `json:"top_end_reason,omitempty"`

	// TopRiskIndicator and TopRiskCount describe the most frequent indicator
	// across auto-terminated sessions.
	TopRiskIndicator string `json:"top_risk_indicator,omitempty"`
	TopRiskCount     int    `json:"top_risk_count,omitempty"`
}

// Rule is a function that examines the analysis context and produces
// zero or more suggestions.
type Rule func(ctx *AnalysisContext) []Suggestion
