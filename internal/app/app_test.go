package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/config"
	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
	"github.com/blackwell-systems/feedbackwatch/internal/store"
	"github.com/blackwell-systems/feedbackwatch/internal/suggest"
)

// runCLI executes the root command against logDir and returns stdout.
func runCLI(t *testing.T, logDir string, args ...string) (string, error) {
	t.Helper()
	flagJSON, flagNoColor, flagVerbose, flagLogDir = false, false, false, ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	full := append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-dir", logDir}, args...)
	rootCmd.SetArgs(full)
	err := rootCmd.Execute()
	return out.String(), err
}

func summaryFor(id string, auto bool) session.Summary {
	reason := session.ReasonUserEnded
	if auto {
		reason = "auto_timeout"
	}
	return session.Summary{
		SessionID:      id,
		StartTime:      session.Now(),
		Categories:     []string{"general"},
		AutoTerminated: auto,
		EndReason:      reason,
	}
}

func TestCLI_ListJSON(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)
	require.NoError(t, st.AppendSummary("api", summaryFor("s1", false)))
	require.NoError(t, st.AppendSummary("api", summaryFor("s2", true)))

	out, err := runCLI(t, dir, "--json", "list")
	require.NoError(t, err)

	var got struct {
		Projects []analyzer.ProjectListing `json:"projects"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Projects, 1)
	assert.Equal(t, "api", got.Projects[0].Name)
	assert.Equal(t, 2, got.Projects[0].Sessions)
}

func TestCLI_AnalyzeMissingProject(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "analyze", "-p", "ghost")
	require.NoError(t, err)
	assert.Contains(t, out, `No logs found for project "ghost"`)
}

func TestCLI_Sessions(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)
	rec := session.New("/work/api", "api", "main", time.Now().Add(-time.Minute))
	rec.UserMessagesCount = 3
	require.NoError(t, st.SaveSession(*rec))

	out, err := runCLI(t, dir, "--json", "sessions", "-p", "api")
	require.NoError(t, err)
	var rows []sessionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, rec.SessionID, rows[0].Record.SessionID)
	assert.Equal(t, 3, rows[0].Quality.Interaction.UserMessages)

	out, err = runCLI(t, dir, "sessions", "-p", "api", rec.SessionID[:6])
	require.NoError(t, err)
	assert.Contains(t, out, rec.SessionID)

	_, err = runCLI(t, dir, "sessions", "-p", "api", "zzzz")
	assert.Error(t, err)
}

func TestFindSession(t *testing.T) {
	rows := []sessionRow{
		{Record: session.Record{SessionID: "abc123"}},
		{Record: session.Record{SessionID: "abd456"}},
		{Record: session.Record{SessionID: "ab"}},
	}
	r, err := findSession(rows, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", r.Record.SessionID)

	r, err = findSession(rows, "ab")
	require.NoError(t, err)
	assert.Equal(t, "ab", r.Record.SessionID)

	_, err = findSession(rows[:2], "ab")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestBuildAnalysisContext(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)
	for i, auto := range []bool{true, true, false} {
		require.NoError(t, st.AppendSummary("api", summaryFor(string(rune('a'+i)), auto)))
	}
	an := analyzer.New(st)

	actx, err := buildAnalysisContext(context.Background(), an, filepath.Join(dir, "missing.db"))
	require.NoError(t, err)
	require.Len(t, actx.Projects, 1)
	p := actx.Projects[0]
	assert.Equal(t, "api", p.Name)
	assert.Equal(t, 3, p.Sessions)
	assert.Equal(t, 2, p.AutoTerminated)
	assert.Equal(t, 1, p.FeedbackCategories)
	assert.Empty(t, actx.MetricTrends)

	got := suggest.NewEngine().Run(actx)
	require.NotEmpty(t, got)
	assert.Equal(t, suggest.CategoryTermination, got[0].Category)
}

func TestHistoryTrends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	for _, rate := range []float64{10, 40} {
		id, err := db.CreateSnapshot("track", "test")
		require.NoError(t, err)
		require.NoError(t, db.InsertReportMetrics(id, store.AggregateProject, map[string]float64{metricAutoTermRate: rate}))
		require.NoError(t, db.InsertReportMetrics(id, "api", map[string]float64{metricAutoTermRate: 0}))
	}
	require.NoError(t, db.Close())

	trends, err := historyTrends(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{metricAutoTermRate: store.DirectionRegressed}, trends)
}

func TestFilterSuggestions(t *testing.T) {
	in := []suggest.Suggestion{
		{Category: suggest.CategoryRisk, Project: "a", Title: "1"},
		{Category: suggest.CategoryTrend, Title: "2"},
		{Category: suggest.CategoryRisk, Project: "b", Title: "3"},
	}
	assert.Len(t, filterSuggestions(in, "", ""), 3)
	assert.Len(t, filterSuggestions(in, suggest.CategoryRisk, ""), 2)
	got := filterSuggestions(in, suggest.CategoryRisk, "b")
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].Title)
}

func TestDoctorChecks(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, checkLogDir(dir).Passed)
	assert.False(t, checkLogDir(filepath.Join(dir, "missing")).Passed)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.False(t, checkLogDir(file).Passed)

	assert.True(t, checkTelemetry(config.Telemetry{}).Passed)
	assert.False(t, checkTelemetry(config.Telemetry{Enabled: true}).Passed)
	assert.True(t, checkTelemetry(config.Telemetry{Enabled: true, Endpoint: "otel:4317"}).Passed)

	dbPath := filepath.Join(dir, "fw.db")
	assert.False(t, checkDatabase(dbPath).Passed)
	db, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	c := checkDatabase(dbPath)
	assert.True(t, c.Passed)
	assert.Contains(t, c.Message, "no snapshots yet")
}

func TestDoctorLogChecks(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)
	assert.False(t, checkSessionData(st).Passed)

	require.NoError(t, st.AppendSummary("api", summaryFor("s1", false)))
	assert.True(t, checkSessionData(st).Passed)
	assert.True(t, checkLogIntegrity(st).Passed)

	f, err := os.OpenFile(st.SummaryPath("api"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := checkLogIntegrity(st)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Message, "1 malformed")
}
