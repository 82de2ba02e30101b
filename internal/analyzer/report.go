package analyzer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
)

// Report limits and thresholds.
const (
	HighRiskThreshold        = 3
	RecentSessionsLimit      = 5
	RecentInterruptionsLimit = 5
	TopRiskIndicatorsLimit   = 10
)

// ErrNotFound is the parent of every "nothing to analyze" condition.
var ErrNotFound = errors.New("not found")

var (
	// ErrProjectNotFound means the project directory does not exist.
	ErrProjectNotFound = fmt.Errorf("project logs %w", ErrNotFound)

	// ErrNoSessions means the project exists but has no summaries.
	ErrNoSessions = fmt.Errorf("session data %w", ErrNotFound)
)

// Source is the read side of the log tree.
type Source interface {
	ListProjects() ([]string, error)
	ProjectExists(project string) bool
	LoadSummaries(project string) ([]session.Summary, storage.ReadStats, error)
	LoadEvents(project string) ([]session.Event, storage.ReadStats, error)
	LoadSessions(project string) ([]session.Record, storage.ReadStats, error)
}

// Analyzer answers aggregate questions over a Source.
type Analyzer struct {
	src       Source
	now       func() time.Time
	logger    *slog.Logger
	threshold int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock replaces time.Now for AnalysisTime.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithHighRiskThreshold sets the indicator count a session must exceed to be
// high risk. Non-positive values keep HighRiskThreshold.
func WithHighRiskThreshold(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.threshold = n
		}
	}
}

// New returns an Analyzer reading from src.
func New(src Source, opts ...Option) *Analyzer {
	a := &Analyzer{src: src, now: time.Now, logger: slog.Default(), threshold: HighRiskThreshold}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "analyzer")
	return a
}

// ListProjects returns the known project names, sorted.
func (a *Analyzer) ListProjects() ([]string, error) {
	return a.src.ListProjects()
}

// ListProjectsWithCounts returns every project with its summary count.
func (a *Analyzer) ListProjectsWithCounts() ([]ProjectListing, error) {
	names, err := a.src.ListProjects()
	if err != nil {
		return nil, err
	}
	out := make([]ProjectListing, 0, len(names))
	for _, name := range names {
		sums, stats, err := a.src.LoadSummaries(name)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", name, err)
		}
		out = append(out, ProjectListing{
			Name:       name,
			Sessions:   len(sums),
			HasSummary: stats.Read+stats.Skipped > 0,
		})
	}
	return out, nil
}

// Analyze builds the report for one project. It returns an error wrapping
// ErrProjectNotFound or ErrNoSessions when there is nothing to analyze.
func (a *Analyzer) Analyze(project string) (ProjectReport, error) {
	if !a.src.ProjectExists(project) {
		return ProjectReport{}, fmt.Errorf("%s: %w", project, ErrProjectNotFound)
	}
	sums, stats, err := a.src.LoadSummaries(project)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotExist) {
			return ProjectReport{}, fmt.Errorf("%s: %w", project, ErrProjectNotFound)
		}
		return ProjectReport{}, fmt.Errorf("analyzing %s: %w", project, err)
	}
	if stats.Skipped > 0 {
		a.logger.Warn("malformed summary lines skipped", "project", project, "count", stats.Skipped)
	}
	if len(sums) == 0 {
		return ProjectReport{}, fmt.Errorf("%s: %w", project, ErrNoSessions)
	}

	report := summarize(project, sums, a.threshold)
	report.AnalysisTime = session.Timestamp{Time: a.now()}
	report.SkippedLines = stats.Skipped
	return report, nil
}

// Summarize computes report figures from summaries using HighRiskThreshold.
// AnalysisTime is left unset.
func Summarize(project string, sums []session.Summary) ProjectReport {
	return summarize(project, sums, HighRiskThreshold)
}

func summarize(project string, sums []session.Summary, threshold int) ProjectReport {
	report := ProjectReport{
		ProjectName:          project,
		TotalSessions:        len(sums),
		CategoryDistribution: make(map[string]int),
		RecentSessions:       []session.Summary{},
	}
	if len(sums) == 0 {
		return report
	}

	var duration float64
	var users, tools int
	for _, s := range sums {
		if s.AutoTerminated {
			report.AutoTerminatedSessions++
		}
		if s.RiskIndicatorsCount > threshold {
			report.HighRiskSessions++
		}
		duration += s.DurationSeconds
		users += s.UserMessages
		tools += s.ToolCalls
		for _, c := range s.Categories {
			report.CategoryDistribution[c]++
		}
	}

	n := float64(len(sums))
	report.AutoTerminationRate = float64(report.AutoTerminatedSessions) / n
	report.HighRiskRate = float64(report.HighRiskSessions) / n
	report.AverageDurationSeconds = duration / n
	report.AverageUserMessages = float64(users) / n
	report.AverageToolCalls = float64(tools) / n

	start := len(sums) - RecentSessionsLimit
	if start < 0 {
		start = 0
	}
	report.RecentSessions = append(report.RecentSessions, sums[start:]...)
	return report
}

// Compare analyzes each project. Projects with nothing to analyze are
// returned in missing rather than failing the comparison.
func (a *Analyzer) Compare(projects []string) ([]ProjectReport, []string, error) {
	var reports []ProjectReport
	var missing []string
	for _, p := range projects {
		r, err := a.Analyze(p)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, p)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, r)
	}
	return reports, missing, nil
}
