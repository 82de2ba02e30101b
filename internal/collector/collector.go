// Package collector maintains the one open session for a monitored project
// and turns interaction calls into counters, risk indicators and persisted
// records.
package collector

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blackwell-systems/feedbackwatch/internal/risk"
	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
)

// Default values applied to empty arguments.
const (
	DefaultMessageType       = "text"
	DefaultInterruptReason   = "unknown"
	imageMessageType         = "image"
	codeFence                = "```"
	interruptionIndicatorPre = "interruption_"
)

// fileOperationTools are tool-name prefixes that count as operating on a file.
var fileOperationTools = []string{"edit_file", "search_replace"}

// Store is the persistence the collector writes through.
type Store interface {
	AppendEvent(project string, e session.Event) error
	SaveSession(r session.Record) error
	AppendSummary(project string, s session.Summary) error
}

// Observer is notified once per successfully persisted session.
type Observer interface {
	SessionEnded(r session.Record)
}

// Collector records interactions into the current session. It is safe for
// concurrent use.
type Collector struct {
	store    Store
	matcher  *risk.Matcher
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	mu        sync.Mutex
	current   *session.Record
	startedAt time.Time // monotonic start instant of current

	// ending is the finished record once its summary line is durable. A
	// failed end leaves it set; retries finish persisting it unchanged.
	ending *session.Record
}

// Option configures a Collector.
type Option func(*Collector)

// WithMatcher replaces the default risk matcher.
func WithMatcher(m *risk.Matcher) Option {
	return func(c *Collector) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers an observer for finished sessions.
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		c.observer = o
	}
}

// New returns a Collector writing through store.
func New(store Store, opts ...Option) *Collector {
	c := &Collector{
		store:   store,
		matcher: risk.Default(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "collector")
	return c
}

// Active reports whether a session is open.
func (c *Collector) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// StartSession opens a new session, first ending any open one with reason
// new_session_started. The returned record is a copy. A project name storage
// cannot hold is rejected before anything changes. If the previous session
// cannot be persisted it stays open and the error is returned.
func (c *Collector) StartSession(projectPath, projectName, gitBranch string) (session.Record, error) {
	if err := storage.ValidateProject(projectName); err != nil {
		return session.Record{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if _, err := c.endLocked(session.ReasonNewSessionStarted); err != nil {
			return session.Record{}, err
		}
	}

	now := c.now()
	c.current = session.New(projectPath, projectName, gitBranch, now)
	c.startedAt = now
	c.ending = nil

	c.logger.Info("session started",
		"session", shortID(c.current.SessionID),
		"project", projectName,
		"branch", c.current.GitBranch)

	err := c.emit(session.StartedPayload{SessionID: c.current.SessionID})
	return c.current.Clone(), err
}

// RecordUserMessage counts a user message. Without an open session it does
// nothing.
func (c *Collector) RecordUserMessage(message, messageType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recording()
	if r == nil {
		return
	}
	if messageType == "" {
		messageType = DefaultMessageType
	}

	r.UserMessagesCount++
	r.TotalUserChars += utf8.RuneCountInString(message)
	if strings.Contains(message, codeFence) {
		r.CodeBlocksCount++
	}
	if messageType == imageMessageType {
		r.ImagesPastedCount++
	}
	session.AddUnique(&r.InteractionTypes, messageType)
	r.Touch(c.now())
}

// RecordAIResponse counts an assistant response, its tool calls and any risk
// indicators found in the response text.
func (c *Collector) RecordAIResponse(response string, toolCalls []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recording()
	if r == nil {
		return
	}

	r.AIResponsesCount++
	r.TotalAIChars += utf8.RuneCountInString(response)
	r.ToolCallsCount += len(toolCalls)
	for _, tool := range toolCalls {
		if isFileOperation(tool) {
			r.FilesOperatedCount++
		}
	}
	for _, id := range c.matcher.Scan(response) {
		if session.AddUnique(&r.RiskIndicators, id) {
			c.logger.Debug("risk indicator", "session", shortID(r.SessionID), "indicator", id)
		}
	}
	r.Touch(c.now())
}

// RecordInteractiveFeedbackCall counts a feedback call and logs an
// interactive_feedback_called event.
func (c *Collector) RecordInteractiveFeedbackCall(category string, priority int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recording()
	if r == nil {
		return nil
	}

	r.InteractiveFeedbackCalls++
	session.AddUnique(&r.SessionCategories, category)
	r.Touch(c.now())

	return c.emit(session.FeedbackPayload{
		Category:  category,
		Priority:  priority,
		CallCount: r.InteractiveFeedbackCalls,
	})
}

// RecordSessionInterruption adds an interruption indicator and logs a
// session_interrupted event.
func (c *Collector) RecordSessionInterruption(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recording()
	if r == nil {
		return nil
	}
	if reason == "" {
		reason = DefaultInterruptReason
	}

	session.AddUnique(&r.RiskIndicators, interruptionIndicatorPre+reason)
	r.Touch(c.now())
	return c.emit(session.InterruptedPayload{Reason: reason})
}

// EndSession finalizes and persists the open session. Without an open session
// it returns (nil, nil). On a persistence failure the session stays open so
// the call can be retried.
func (c *Collector) EndSession(reason string) (*session.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, nil
	}
	return c.endLocked(reason)
}

// CurrentMetrics returns a copy of the open session with its duration
// refreshed.
func (c *Collector) CurrentMetrics() (session.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return session.Record{}, false
	}
	snap := c.current.Clone()
	snap.DurationSeconds = c.elapsed().Seconds()
	return snap, true
}

func (c *Collector) endLocked(reason string) (*session.Record, error) {
	if reason == "" {
		reason = session.ReasonUserEnded
	}

	var final session.Record
	if c.ending != nil {
		final = c.ending.Clone()
	} else {
		final = c.current.Clone()
		final.Finish(reason, c.elapsed())
	}

	if err := c.store.SaveSession(final); err != nil {
		c.logger.Error("persist session failed", "session", shortID(final.SessionID), "err", err)
		return nil, err
	}
	if c.ending == nil {
		if err := c.store.AppendSummary(final.ProjectName, final.Summary()); err != nil {
			c.logger.Error("append summary failed", "session", shortID(final.SessionID), "err", err)
			return nil, err
		}
		frozen := final.Clone()
		c.ending = &frozen
	}
	ended := session.NewEvent(&final, session.Timestamp{Time: c.now()}, session.EndedPayload{
		Reason:          final.EndReason,
		DurationSeconds: final.DurationSeconds,
		AutoTerminated:  final.AutoTerminated,
	})
	if err := c.store.AppendEvent(final.ProjectName, ended); err != nil {
		c.logger.Error("append end event failed", "session", shortID(final.SessionID), "err", err)
		return nil, err
	}

	c.logger.Info("session ended",
		"session", shortID(final.SessionID),
		"reason", final.EndReason,
		"duration", time.Duration(final.DurationSeconds*float64(time.Second)).Round(100*time.Millisecond))

	if c.observer != nil {
		c.observer.SessionEnded(final.Clone())
	}
	c.current = nil
	c.ending = nil
	return &final, nil
}

// recording returns the session that recording calls may mutate: nil when
// none is open or an end is half persisted.
func (c *Collector) recording() *session.Record {
	if c.ending != nil {
		return nil
	}
	return c.current
}

// emit appends an event for the current session.
func (c *Collector) emit(p session.Payload) error {
	e := session.NewEvent(c.current, session.Timestamp{Time: c.now()}, p)
	if err := c.store.AppendEvent(c.current.ProjectName, e); err != nil {
		c.logger.Warn("event not logged", "type", p.EventType(), "err", err)
		return err
	}
	return nil
}

func (c *Collector) elapsed() time.Duration {
	d := c.now().Sub(c.startedAt)
	if d < 0 {
		return 0
	}
	return d
}

func isFileOperation(tool string) bool {
	for _, prefix := range fileOperationTools {
		if strings.HasPrefix(tool, prefix) {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
