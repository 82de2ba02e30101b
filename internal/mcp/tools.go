package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/tracker"
)

// StartResult is returned by start_monitoring.
type StartResult struct {
	SessionID   string `json:"session_id,omitempty"`
	ProjectPath string `json:"project_path"`
	ProjectName string `json:"project_name"`
	GitBranch   string `json:"git_branch"`
	Tracking    bool   `json:"tracking"`
}

// RecordResult reports whether a call reached an open session.
type RecordResult struct {
	Recorded bool `json:"recorded"`
}

// EndResult is returned by end_monitoring.
type EndResult struct {
	Ended   bool             `json:"ended"`
	Summary *session.Summary `json:"summary,omitempty"`
}

// MetricsResult is returned by get_current_metrics.
type MetricsResult struct {
	Active  bool            `json:"active"`
	Session *session.Record `json:"session,omitempty"`
}

// ProjectsResult is returned by list_projects.
type ProjectsResult struct {
	Projects []analyzer.ProjectListing `json:"projects"`
}

var (
	noArgsSchema = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)

	startSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"project_path":{"type":"string","description":"Project directory (default: detected from the working directory)"},` +
		`"project_name":{"type":"string","description":"Display name (default: directory name)"},` +
		`"git_branch":{"type":"string","description":"Git branch (default: detected, or main)"}` +
		`},"additionalProperties":false}`)

	userSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"message":{"type":"string"},` +
		`"message_type":{"type":"string","description":"text, image, ..."}` +
		`},"required":["message"],"additionalProperties":false}`)

	aiSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"response":{"type":"string"},` +
		`"tool_calls":{"type":"array","items":{"type":"string"}}` +
		`},"required":["response"],"additionalProperties":false}`)

	feedbackSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"category":{"type":"string","description":"Feedback category (default: general)"},` +
		`"priority":{"type":"integer","description":"Priority 1-5 (default 3)"}` +
		`},"additionalProperties":false}`)

	reasonSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"reason":{"type":"string"}` +
		`},"additionalProperties":false}`)

	trackSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"message":{"type":"string"},` +
		`"category":{"type":"string"},` +
		`"priority":{"type":"integer"},` +
		`"project_path":{"type":"string","description":"Caller project directory; a different path switches projects"},` +
		`"project_name":{"type":"string"}` +
		`},"additionalProperties":false}`)

	projectSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"project":{"type":"string","description":"Project name (default: the tracked project)"}` +
		`},"additionalProperties":false}`)

	autoSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"enabled":{"type":"boolean"}` +
		`},"required":["enabled"],"additionalProperties":false}`)
)

// defaultPriority is used for feedback calls that carry none.
const defaultPriority = 3

// addTools registers every MCP tool handler on s.
func addTools(s *Server) {
	s.registerTool(toolDef{
		Name:        "start_monitoring",
		Description: "Start a monitored session for a project, ending any open one.",
		InputSchema: startSchema,
		Handler:     s.handleStartMonitoring,
	})
	s.registerTool(toolDef{
		Name:        "record_user_interaction",
		Description: "Record a user message in the open session.",
		InputSchema: userSchema,
		Handler:     s.handleRecordUser,
	})
	s.registerTool(toolDef{
		Name:        "record_ai_interaction",
		Description: "Record an assistant response and the tools it called.",
		InputSchema: aiSchema,
		Handler:     s.handleRecordAI,
	})
	s.registerTool(toolDef{
		Name:        "record_feedback_call",
		Description: "Record an interactive feedback call in the open session.",
		InputSchema: feedbackSchema,
		Handler:     s.handleRecordFeedback,
	})
	s.registerTool(toolDef{
		Name:        "record_interruption",
		Description: "Record that the open session was interrupted.",
		InputSchema: reasonSchema,
		Handler:     s.handleRecordInterruption,
	})
	s.registerTool(toolDef{
		Name:        "end_monitoring",
		Description: "End the open session and return its summary.",
		InputSchema: reasonSchema,
		Handler:     s.handleEndMonitoring,
	})
	s.registerTool(toolDef{
		Name:        "get_current_metrics",
		Description: "Counters, categories and risk indicators of the open session.",
		InputSchema: noArgsSchema,
		Handler:     s.handleCurrentMetrics,
	})
	s.registerTool(toolDef{
		Name:        "track_interactive_feedback",
		Description: "Record a feedback call with its user message, starting or switching the session as needed.",
		InputSchema: trackSchema,
		Handler:     s.handleTrackFeedback,
	})
	s.registerTool(toolDef{
		Name:        "get_session_quality",
		Description: "Quality score, level and contributing factors of the open session.",
		InputSchema: noArgsSchema,
		Handler:     s.handleSessionQuality,
	})
	s.registerTool(toolDef{
		Name:        "get_project_report",
		Description: "Aggregate report over a project's finished sessions.",
		InputSchema: projectSchema,
		Handler:     s.handleProjectReport,
	})
	s.registerTool(toolDef{
		Name:        "list_projects",
		Description: "Projects with session logs and their session counts.",
		InputSchema: noArgsSchema,
		Handler:     s.handleListProjects,
	})
	s.registerTool(toolDef{
		Name:        "set_auto_tracking",
		Description: "Enable or disable automatic session tracking.",
		InputSchema: autoSchema,
		Handler:     s.handleSetAutoTracking,
	})
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) handleStartMonitoring(args json.RawMessage) (any, error) {
	var p struct {
		ProjectPath string `json:"project_path"`
		ProjectName string `json:"project_name"`
		GitBranch   string `json:"git_branch"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}

	d := tracker.Descriptor{Path: p.ProjectPath, Name: p.ProjectName, Branch: p.GitBranch}
	if d.Path == "" {
		info := s.detect("")
		d.Path = info.Path
		if d.Name == "" {
			d.Name = info.Name
		}
		if d.Branch == "" {
			d.Branch = info.Branch
		}
	}
	if err := s.tracker.StartMonitoring(d); err != nil {
		return nil, err
	}

	desc, _ := s.tracker.Descriptor()
	res := StartResult{ProjectPath: desc.Path, ProjectName: desc.Name, GitBranch: desc.Branch}
	if rec, ok := s.collector.CurrentMetrics(); ok {
		res.SessionID = rec.SessionID
		res.Tracking = true
	}
	return res, nil
}

func (s *Server) handleRecordUser(args json.RawMessage) (any, error) {
	var p struct {
		Message     string `json:"message"`
		MessageType string `json:"message_type"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.MessageType == "" {
		p.MessageType = "text"
	}
	active := s.collector.Active()
	s.collector.RecordUserMessage(p.Message, p.MessageType)
	return RecordResult{Recorded: active}, nil
}

func (s *Server) handleRecordAI(args json.RawMessage) (any, error) {
	var p struct {
		Response  string   `json:"response"`
		ToolCalls []string `json:"tool_calls"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	active := s.collector.Active()
	s.collector.RecordAIResponse(p.Response, p.ToolCalls)
	return RecordResult{Recorded: active}, nil
}

func (s *Server) handleRecordFeedback(args json.RawMessage) (any, error) {
	var p struct {
		Category string `json:"category"`
		Priority *int   `json:"priority"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Category == "" {
		p.Category = tracker.DefaultCategory
	}
	priority := defaultPriority
	if p.Priority != nil {
		priority = *p.Priority
	}
	active := s.collector.Active()
	if err := s.collector.RecordInteractiveFeedbackCall(p.Category, priority); err != nil {
		return nil, err
	}
	return RecordResult{Recorded: active}, nil
}

func (s *Server) handleRecordInterruption(args json.RawMessage) (any, error) {
	var p struct {
		Reason string `json:"reason"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Reason == "" {
		p.Reason = "user_interrupted"
	}
	active := s.collector.Active()
	if err := s.tracker.RecordInterruption(p.Reason); err != nil {
		return nil, err
	}
	return RecordResult{Recorded: active}, nil
}

func (s *Server) handleEndMonitoring(args json.RawMessage) (any, error) {
	var p struct {
		Reason string `json:"reason"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Reason == "" {
		p.Reason = session.ReasonUserEnded
	}
	rec, err := s.tracker.EndTracking(p.Reason)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return EndResult{}, nil
	}
	sum := rec.Summary()
	return EndResult{Ended: true, Summary: &sum}, nil
}

func (s *Server) handleCurrentMetrics(_ json.RawMessage) (any, error) {
	rec, ok := s.collector.CurrentMetrics()
	if !ok {
		return MetricsResult{}, nil
	}
	return MetricsResult{Active: true, Session: &rec}, nil
}

func (s *Server) handleTrackFeedback(args json.RawMessage) (any, error) {
	var p struct {
		Message     string `json:"message"`
		Category    string `json:"category"`
		Priority    *int   `json:"priority"`
		ProjectPath string `json:"project_path"`
		ProjectName string `json:"project_name"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	priority := defaultPriority
	if p.Priority != nil {
		priority = *p.Priority
	}
	err := s.tracker.RecordInteractiveFeedbackCall(p.Message, p.Category, priority,
		tracker.FeedbackContext{ProjectPath: p.ProjectPath, ProjectName: p.ProjectName})
	if err != nil {
		return nil, err
	}
	return s.handleCurrentMetrics(nil)
}

func (s *Server) handleSessionQuality(_ json.RawMessage) (any, error) {
	return s.tracker.AnalyzeCurrentSessionQuality()
}

func (s *Server) handleProjectReport(args json.RawMessage) (any, error) {
	var p struct {
		Project string `json:"project"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Project == "" {
		desc, ok := s.tracker.Descriptor()
		if !ok {
			return nil, errors.New("no project given and none is tracked")
		}
		p.Project = desc.Name
	}
	return s.tracker.ProjectReport(p.Project)
}

func (s *Server) handleListProjects(_ json.RawMessage) (any, error) {
	listing, err := s.analyzer.ListProjectsWithCounts()
	if err != nil {
		return nil, err
	}
	if listing == nil {
		listing = []analyzer.ProjectListing{}
	}
	return ProjectsResult{Projects: listing}, nil
}

func (s *Server) handleSetAutoTracking(args json.RawMessage) (any, error) {
	var p struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	s.tracker.SetAutoTracking(p.Enabled)
	return map[string]bool{"auto_tracking": s.tracker.AutoTracking()}, nil
}
