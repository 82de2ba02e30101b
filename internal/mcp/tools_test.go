package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/collector"
	"github.com/blackwell-systems/feedbackwatch/internal/project"
	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
	"github.com/blackwell-systems/feedbackwatch/internal/tracker"
)

// newTestServer creates a Server over a fresh log directory. Project
// detection reports a fixed directory.
func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.New(t.TempDir(), storage.WithLogger(logger))
	col := collector.New(store, collector.WithLogger(logger))
	an := analyzer.New(store, analyzer.WithLogger(logger))
	tr := tracker.New(col, an, tracker.WithLogger(logger))
	s := NewServer(tr, col, an, WithLogger(logger), WithVersion("test"),
		WithDetector(func(string) project.Info {
			return project.Info{Path: "/work/detected", Name: "detected", Branch: "dev", Detected: true}
		}))
	return s, store
}

// callTool invokes the named tool handler and returns the typed result.
func callTool(s *Server, name string, args string) (any, error) {
	for _, tool := range s.tools {
		if tool.Name == name {
			return tool.Handler(json.RawMessage(args))
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

func mustCall(t *testing.T, s *Server, name, args string) any {
	t.Helper()
	res, err := callTool(s, name, args)
	require.NoError(t, err, name)
	return res
}

func TestStartMonitoring_ExplicitProject(t *testing.T) {
	s, _ := newTestServer(t)
	res := mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo","project_name":"demo","git_branch":"feature"}`).(StartResult)

	assert.True(t, res.Tracking)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "demo", res.ProjectName)
	assert.Equal(t, "feature", res.GitBranch)
}

func TestStartMonitoring_DetectsProject(t *testing.T) {
	s, _ := newTestServer(t)
	res := mustCall(t, s, "start_monitoring", `{}`).(StartResult)

	assert.Equal(t, "/work/detected", res.ProjectPath)
	assert.Equal(t, "detected", res.ProjectName)
	assert.Equal(t, "dev", res.GitBranch)
}

func TestRecordTools_NoSessionAreNoOps(t *testing.T) {
	s, _ := newTestServer(t)

	res := mustCall(t, s, "record_user_interaction", `{"message":"hi"}`).(RecordResult)
	assert.False(t, res.Recorded)
	res = mustCall(t, s, "record_ai_interaction", `{"response":"ok"}`).(RecordResult)
	assert.False(t, res.Recorded)
	res = mustCall(t, s, "record_feedback_call", `{}`).(RecordResult)
	assert.False(t, res.Recorded)
	res = mustCall(t, s, "record_interruption", `{}`).(RecordResult)
	assert.False(t, res.Recorded)

	end := mustCall(t, s, "end_monitoring", `{}`).(EndResult)
	assert.False(t, end.Ended)
	metrics := mustCall(t, s, "get_current_metrics", `{}`).(MetricsResult)
	assert.False(t, metrics.Active)
}

func TestSessionLifecycle(t *testing.T) {
	s, store := newTestServer(t)
	mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo","project_name":"demo"}`)

	mustCall(t, s, "record_user_interaction", `{"message":"请修复这个bug"}`)
	mustCall(t, s, "record_ai_interaction", `{"response":"任务完成, 测试通过","tool_calls":["edit_file","run_tests"]}`)
	mustCall(t, s, "record_feedback_call", `{"category":"bug","priority":5}`)

	metrics := mustCall(t, s, "get_current_metrics", `{}`).(MetricsResult)
	require.True(t, metrics.Active)
	assert.Equal(t, 1, metrics.Session.UserMessagesCount)
	assert.Equal(t, 2, metrics.Session.ToolCallsCount)
	assert.Equal(t, 1, metrics.Session.FilesOperatedCount)
	assert.Equal(t, []string{"bug"}, metrics.Session.SessionCategories)
	assert.Contains(t, metrics.Session.RiskIndicators, "technical_completion_测试通过")

	end := mustCall(t, s, "end_monitoring", `{"reason":"auto_timeout"}`).(EndResult)
	require.True(t, end.Ended)
	assert.True(t, end.Summary.AutoTerminated)
	assert.Equal(t, "auto_timeout", end.Summary.EndReason)

	sums, _, err := store.LoadSummaries("demo")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, end.Summary.SessionID, sums[0].SessionID)
}

func TestEndMonitoring_DefaultReason(t *testing.T) {
	s, _ := newTestServer(t)
	mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo"}`)
	end := mustCall(t, s, "end_monitoring", `{}`).(EndResult)
	require.True(t, end.Ended)
	assert.Equal(t, session.ReasonUserEnded, end.Summary.EndReason)
	assert.False(t, end.Summary.AutoTerminated)
}

func TestTrackInteractiveFeedback_AdoptsAndSwitchesProject(t *testing.T) {
	s, store := newTestServer(t)

	res := mustCall(t, s, "track_interactive_feedback",
		`{"message":"看一下","category":"review","project_path":"/work/alpha"}`).(MetricsResult)
	require.True(t, res.Active)
	assert.Equal(t, "alpha", res.Session.ProjectName)
	assert.Equal(t, 1, res.Session.InteractiveFeedbackCalls)

	res = mustCall(t, s, "track_interactive_feedback",
		`{"message":"继续","project_path":"/work/beta"}`).(MetricsResult)
	require.True(t, res.Active)
	assert.Equal(t, "beta", res.Session.ProjectName)

	sums, _, err := store.LoadSummaries("alpha")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, session.ReasonProjectSwitched, sums[0].EndReason)
	assert.Equal(t, 2, sums[0].InteractiveFeedbackCalls)
}

func TestGetSessionQuality(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := callTool(s, "get_session_quality", `{}`)
	assert.ErrorIs(t, err, tracker.ErrNoActiveSession)

	mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo"}`)
	q := mustCall(t, s, "get_session_quality", `{}`).(tracker.QualityReport)
	assert.NotEmpty(t, q.SessionID)
	assert.NotEmpty(t, q.Level)
}

func TestGetProjectReport(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := callTool(s, "get_project_report", `{}`)
	assert.Error(t, err)

	_, err = callTool(s, "get_project_report", `{"project":"missing"}`)
	assert.ErrorIs(t, err, analyzer.ErrNotFound)

	mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo","project_name":"demo"}`)
	mustCall(t, s, "end_monitoring", `{}`)

	report := mustCall(t, s, "get_project_report", `{}`).(analyzer.ProjectReport)
	assert.Equal(t, "demo", report.ProjectName)
	assert.Equal(t, 1, report.TotalSessions)
}

func TestListProjects(t *testing.T) {
	s, _ := newTestServer(t)
	res := mustCall(t, s, "list_projects", `{}`).(ProjectsResult)
	assert.NotNil(t, res.Projects)
	assert.Empty(t, res.Projects)

	mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo","project_name":"demo"}`)
	mustCall(t, s, "end_monitoring", `{}`)
	res = mustCall(t, s, "list_projects", `{}`).(ProjectsResult)
	require.Len(t, res.Projects, 1)
	assert.Equal(t, "demo", res.Projects[0].Name)
	assert.Equal(t, 1, res.Projects[0].Sessions)
}

func TestSetAutoTracking(t *testing.T) {
	s, _ := newTestServer(t)
	res := mustCall(t, s, "set_auto_tracking", `{"enabled":false}`).(map[string]bool)
	assert.False(t, res["auto_tracking"])

	start := mustCall(t, s, "start_monitoring", `{"project_path":"/work/demo"}`).(StartResult)
	assert.True(t, start.Tracking)
	assert.NotEmpty(t, start.SessionID)
	assert.Equal(t, "demo", start.ProjectName)
}

func TestInvalidArguments(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := callTool(s, "record_feedback_call", `{"priority":"high"}`)
	assert.Error(t, err)
}
