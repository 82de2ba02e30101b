// Package tracker layers project awareness, message classification and
// session quality scoring on top of a collector.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

// DefaultCategory is used for feedback calls without a category.
const DefaultCategory = "general"

// ErrNoActiveSession is returned by operations that need an open session.
var ErrNoActiveSession = errors.New("no active session")

// State is the tracker lifecycle position.
type State int

const (
	StateNoProject State = iota
	StateProjectSet
	StateSessionOpen
)

func (s State) String() string {
	switch s {
	case StateNoProject:
		return "no_project"
	case StateProjectSet:
		return "project_set"
	case StateSessionOpen:
		return "session_open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Descriptor identifies the tracked project.
type Descriptor struct {
	Path   string `json:"project_path"`
	Name   string `json:"project_name"`
	Branch string `json:"git_branch"`
}

// FeedbackContext carries optional caller context for a feedback call.
type FeedbackContext struct {
	ProjectPath string
	ProjectName string
}

// Collector is the session recorder the tracker drives.
type Collector interface {
	StartSession(projectPath, projectName, gitBranch string) (session.Record, error)
	RecordUserMessage(message, messageType string)
	RecordAIResponse(response string, toolCalls []string)
	RecordInteractiveFeedbackCall(category string, priority int) error
	RecordSessionInterruption(reason string) error
	EndSession(reason string) (*session.Record, error)
	CurrentMetrics() (session.Record, bool)
	Active() bool
}

// Reporter produces project reports.
type Reporter interface {
	Analyze(project string) (analyzer.ProjectReport, error)
}

// BranchFunc returns the git branch of a directory.
type BranchFunc func(dir string) string

// Tracker is safe for concurrent use.
type Tracker struct {
	col    Collector
	rep    Reporter
	branch BranchFunc
	logger *slog.Logger

	mu   sync.Mutex
	desc *Descriptor
	auto bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithBranchFunc sets how the branch of a newly adopted project is found.
func WithBranchFunc(f BranchFunc) Option {
	return func(t *Tracker) {
		if f != nil {
			t.branch = f
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a Tracker with auto-tracking enabled.
func New(col Collector, rep Reporter, opts ...Option) *Tracker {
	t := &Tracker{
		col:    col,
		rep:    rep,
		branch: func(string) string { return session.DefaultBranch },
		logger: slog.Default(),
		auto:   true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tracker")
	return t
}

// State reports the current lifecycle position.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	switch {
	case t.col.Active():
		return StateSessionOpen
	case t.desc != nil:
		return StateProjectSet
	default:
		return StateNoProject
	}
}

// Descriptor returns the tracked project, if any.
func (t *Tracker) Descriptor() (Descriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.desc == nil {
		return Descriptor{}, false
	}
	return *t.desc, true
}

// AutoTracking reports whether sessions start automatically.
func (t *Tracker) AutoTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.auto
}

// SetAutoTracking enables or disables automatic tracking.
func (t *Tracker) SetAutoTracking(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.auto = enabled
	t.logger.Info("auto tracking toggled", "enabled", enabled)
}

// StartTracking sets the tracked project and, with auto-tracking on, opens
// a session for it.
func (t *Tracker) StartTracking(d Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start(d, t.auto)
}

// StartMonitoring sets the tracked project and always opens a session for
// it, whatever the auto-tracking setting.
func (t *Tracker) StartMonitoring(d Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start(d, true)
}

// start records d as the descriptor. When open is set the descriptor is only
// adopted once its session has started.
func (t *Tracker) start(d Descriptor, open bool) error {
	if d.Branch == "" {
		d.Branch = session.DefaultBranch
	}
	if d.Name == "" {
		d.Name = nameFromPath(d.Path)
	}
	if open {
		if _, err := t.col.StartSession(d.Path, d.Name, d.Branch); err != nil {
			return err
		}
	}
	t.desc = &d
	return nil
}

// RecordInteractiveFeedbackCall records a feedback call and the user message
// that came with it. A caller-supplied project path that differs from the
// tracked one switches projects after the call is recorded.
func (t *Tracker) RecordInteractiveFeedbackCall(message, category string, priority int, fc FeedbackContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.auto {
		return nil
	}
	if category == "" {
		category = DefaultCategory
	}

	if t.desc == nil && fc.ProjectPath != "" {
		t.desc = t.describe(fc)
		t.logger.Info("project adopted", "project", t.desc.Name, "path", t.desc.Path)
	}
	if !t.col.Active() && t.desc != nil {
		if _, err := t.col.StartSession(t.desc.Path, t.desc.Name, t.desc.Branch); err != nil {
			return err
		}
	}

	var errs []error
	errs = append(errs, t.col.RecordInteractiveFeedbackCall(category, priority))
	t.col.RecordUserMessage(message, Classify(message))

	if fc.ProjectPath != "" && t.desc != nil && fc.ProjectPath != t.desc.Path {
		errs = append(errs, t.switchProject(fc))
	}
	return errors.Join(errs...)
}

// RecordAIResponseWithTools records a synthetic assistant response listing
// the executed tools. It requires an open session.
func (t *Tracker) RecordAIResponseWithTools(toolNames []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.auto || !t.col.Active() {
		return
	}
	t.col.RecordAIResponse(fmt.Sprintf("已执行 %d 个工具调用", len(toolNames)), toolNames)
}

// RecordInterruption forwards an interruption to the open session.
func (t *Tracker) RecordInterruption(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.col.RecordSessionInterruption(reason)
}

// EndTracking ends the open session, if any. The descriptor is kept.
func (t *Tracker) EndTracking(reason string) (*session.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.col.EndSession(reason)
}

// ProjectReport analyzes a project's history.
func (t *Tracker) ProjectReport(name string) (analyzer.ProjectReport, error) {
	return t.rep.Analyze(name)
}

// CurrentMetrics returns a copy of the open session.
func (t *Tracker) CurrentMetrics() (session.Record, bool) {
	return t.col.CurrentMetrics()
}

func (t *Tracker) switchProject(fc FeedbackContext) error {
	from := t.desc.Name
	if t.col.Active() {
		if _, err := t.col.EndSession(session.ReasonProjectSwitched); err != nil {
			return fmt.Errorf("switching project: %w", err)
		}
	}
	t.desc = t.describe(fc)
	t.logger.Info("project switched", "from", from, "to", t.desc.Name)
	_, err := t.col.StartSession(t.desc.Path, t.desc.Name, t.desc.Branch)
	return err
}

func (t *Tracker) describe(fc FeedbackContext) *Descriptor {
	name := fc.ProjectName
	if name == "" {
		name = nameFromPath(fc.ProjectPath)
	}
	branch := t.branch(fc.ProjectPath)
	if branch == "" {
		branch = session.DefaultBranch
	}
	return &Descriptor{Path: fc.ProjectPath, Name: name, Branch: branch}
}

func nameFromPath(path string) string {
	if path == "" {
		return "unknown"
	}
	return filepath.Base(filepath.Clean(path))
}
