package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newFixture(t *testing.T) (*Analyzer, *storage.Store) {
	t.Helper()
	st := storage.New(t.TempDir(), storage.WithLogger(discard))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	return New(st, WithLogger(discard), WithClock(func() time.Time { return fixed })), st
}

func summary(id string, risks int, auto bool, duration float64, cats ...string) session.Summary {
	reason := "user_ended"
	if auto {
		reason = "auto_timeout"
	}
	if cats == nil {
		cats = []string{}
	}
	return session.Summary{
		SessionID:           id,
		StartTime:           session.Now(),
		DurationSeconds:     duration,
		UserMessages:        2,
		ToolCalls:           4,
		Categories:          cats,
		RiskIndicatorsCount: risks,
		AutoTerminated:      auto,
		EndReason:           reason,
	}
}

func TestAnalyze_ProjectMissing(t *testing.T) {
	a, _ := newFixture(t)
	_, err := a.Analyze("ghost")
	assert.True(t, errors.Is(err, ErrProjectNotFound))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAnalyze_NoSummaries(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, os.MkdirAll(st.ProjectDir("empty"), 0o755))

	_, err := a.Analyze("empty")
	assert.True(t, errors.Is(err, ErrNoSessions))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrProjectNotFound))
}

func TestAnalyze_SingleAutoTerminated(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("demo", summary("s1", 0, true, 30)))

	r, err := a.Analyze("demo")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TotalSessions)
	assert.Equal(t, 1.0, r.AutoTerminationRate)
	assert.Equal(t, 30.0, r.AverageDurationSeconds)
	assert.Equal(t, "2026-03-01T12:00:00.000000", r.AnalysisTime.String())
}

func TestAnalyze_HighRisk(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("demo", summary("s1", 2, false, 10)))
	require.NoError(t, st.AppendSummary("demo", summary("s2", 5, false, 20)))

	r, err := a.Analyze("demo")
	require.NoError(t, err)
	assert.Equal(t, 1, r.HighRiskSessions)
	assert.Equal(t, 0.5, r.HighRiskRate)
	assert.Equal(t, 15.0, r.AverageDurationSeconds)
	assert.Equal(t, 2.0, r.AverageUserMessages)
	assert.Equal(t, 4.0, r.AverageToolCalls)
}

func TestAnalyze_ThresholdIsStrict(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("demo", summary("s1", 3, false, 1)))
	r, err := a.Analyze("demo")
	require.NoError(t, err)
	assert.Zero(t, r.HighRiskSessions)
}

func TestAnalyze_CustomThreshold(t *testing.T) {
	st := storage.New(t.TempDir(), storage.WithLogger(discard))
	a := New(st, WithLogger(discard), WithHighRiskThreshold(1))
	require.NoError(t, st.AppendSummary("demo", summary("s1", 2, false, 1)))
	require.NoError(t, st.AppendSummary("demo", summary("s2", 1, false, 1)))

	r, err := a.Analyze("demo")
	require.NoError(t, err)
	assert.Equal(t, 1, r.HighRiskSessions)

	// Non-positive values keep the default.
	a = New(st, WithLogger(discard), WithHighRiskThreshold(0))
	r, err = a.Analyze("demo")
	require.NoError(t, err)
	assert.Zero(t, r.HighRiskSessions)
}

func TestAnalyze_CategoriesAndRecent(t *testing.T) {
	a, st := newFixture(t)
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, id := range ids {
		require.NoError(t, st.AppendSummary("demo", summary(id, 0, false, 1, "bug", "qa")))
	}
	require.NoError(t, st.AppendSummary("demo", summary("h", 0, false, 1, "bug")))

	r, err := a.Analyze("demo")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bug": 8, "qa": 7}, r.CategoryDistribution)
	require.Len(t, r.RecentSessions, RecentSessionsLimit)
	assert.Equal(t, "d", r.RecentSessions[0].SessionID)
	assert.Equal(t, "h", r.RecentSessions[4].SessionID)
}

func TestAnalyze_SkipsMalformedLines(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("demo", summary("s1", 0, false, 1)))
	f, err := os.OpenFile(st.SummaryPath("demo"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString("{broken\n")
	require.NoError(t, f.Close())

	r, err := a.Analyze("demo")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TotalSessions)
	assert.Equal(t, 1, r.SkippedLines)
}

func TestSummarize_Empty(t *testing.T) {
	r := Summarize("x", nil)
	assert.Zero(t, r.AutoTerminationRate)
	assert.Zero(t, r.HighRiskRate)
	assert.NotNil(t, r.RecentSessions)
}

func TestListProjectsWithCounts(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("b", summary("1", 0, false, 1)))
	require.NoError(t, st.AppendSummary("b", summary("2", 0, false, 1)))
	require.NoError(t, os.MkdirAll(st.ProjectDir("a"), 0o755))

	got, err := a.ListProjectsWithCounts()
	require.NoError(t, err)
	assert.Equal(t, []ProjectListing{
		{Name: "a", Sessions: 0, HasSummary: false},
		{Name: "b", Sessions: 2, HasSummary: true},
	}, got)
}

func TestCompare_ReportsMissing(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("one", summary("1", 0, true, 1)))
	require.NoError(t, st.AppendSummary("two", summary("2", 0, false, 1)))

	reports, missing, err := a.Compare([]string{"one", "ghost", "two"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "one", reports[0].ProjectName)
	assert.Equal(t, "two", reports[1].ProjectName)
	assert.Equal(t, []string{"ghost"}, missing)
}

func TestPatterns(t *testing.T) {
	a, st := newFixture(t)

	rec := session.New("/p", "demo", "main", time.Now())
	for i := 0; i < 7; i++ {
		require.NoError(t, st.AppendEvent("demo", session.NewEvent(rec, session.Now(), session.InterruptedPayload{Reason: "timeout"})))
	}
	require.NoError(t, st.AppendEvent("demo", session.NewEvent(rec, session.Now(), session.FeedbackPayload{Category: "bug"})))
	require.NoError(t, st.AppendEvent("demo", session.NewEvent(rec, session.Now(), session.FeedbackPayload{Category: "bug"})))
	require.NoError(t, st.AppendEvent("demo", session.NewEvent(rec, session.Now(), session.FeedbackPayload{Category: "qa"})))

	auto1 := session.New("/p", "demo", "main", time.Now())
	auto1.RiskIndicators = []string{"x", "y"}
	auto1.Finish("auto_timeout", time.Second)
	auto2 := session.New("/p", "demo", "main", time.Now())
	auto2.RiskIndicators = []string{"x"}
	auto2.Finish("auto_server_shutdown", time.Second)
	normal := session.New("/p", "demo", "main", time.Now())
	normal.RiskIndicators = []string{"z"}
	normal.Finish("user_ended", time.Second)
	for _, r := range []*session.Record{auto1, auto2, normal} {
		require.NoError(t, st.SaveSession(r.Clone()))
	}

	p, err := a.Patterns("demo")
	require.NoError(t, err)
	assert.Equal(t, 7, p.TotalInterruptions)
	assert.Len(t, p.RecentInterruptions, RecentInterruptionsLimit)
	assert.Equal(t, []Count{{"bug", 2}, {"qa", 1}}, p.FeedbackCategories)
	assert.Equal(t, 2, p.AutoTerminated)
	assert.Equal(t, []Count{{"auto_server_shutdown", 1}, {"auto_timeout", 1}}, p.EndReasons)
	assert.Equal(t, []Count{{"x", 2}, {"y", 1}}, p.TopRiskIndicators)
}

func TestPatterns_ProjectMissing(t *testing.T) {
	a, _ := newFixture(t)
	_, err := a.Patterns("ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRank_Limit(t *testing.T) {
	got := rank(map[string]int{"a": 1, "b": 3, "c": 3, "d": 2}, 3)
	assert.Equal(t, []Count{{"b", 3}, {"c", 3}, {"d", 2}}, got)
}

func TestOverview(t *testing.T) {
	a, st := newFixture(t)
	require.NoError(t, st.AppendSummary("one", summary("1", 0, true, 10, "bug")))
	require.NoError(t, st.AppendSummary("one", summary("2", 0, false, 20, "qa")))
	require.NoError(t, st.AppendSummary("two", summary("3", 0, true, 60, "bug", "docs")))
	require.NoError(t, os.MkdirAll(filepath.Join(st.BaseDir(), "project_idle"), 0o755))

	ov, err := a.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ov.Projects)
	assert.Equal(t, 2, ov.ProjectsWithSessions)
	assert.Equal(t, 3, ov.TotalSessions)
	assert.Equal(t, 2, ov.AutoTerminatedSessions)
	assert.InDelta(t, 2.0/3.0, ov.AutoTerminationRate, 1e-9)
	assert.InDelta(t, 30.0, ov.AverageDurationSeconds, 1e-9)
	assert.Equal(t, []string{"bug", "docs", "qa"}, ov.Categories)
	require.Len(t, ov.Reports, 2)
	assert.Equal(t, "one", ov.Reports[0].ProjectName)
}

func TestOverview_Empty(t *testing.T) {
	a, _ := newFixture(t)
	ov, err := a.Overview(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ov.Projects)
	assert.Zero(t, ov.AutoTerminationRate)
}
