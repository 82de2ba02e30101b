// Package session defines the session record, its summary projection, and the
// lifecycle events written to a project's event log.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AutoPrefix marks end reasons that were not explicitly requested by the user.
const AutoPrefix = "auto_"

// Well-known end reasons.
const (
	ReasonUserEnded         = "user_ended"
	ReasonNewSessionStarted = "new_session_started"
	ReasonProjectSwitched   = "project_switched"
	ReasonServerShutdown    = "auto_server_shutdown"
)

// DefaultBranch is used when no git branch is known.
const DefaultBranch = "main"

// Record is the full state of one monitored session. It is mutated only by the
// collector while open and is frozen once SessionEnded is set.
type Record struct {
	SessionID        string    `json:"session_id"`
	ProjectPath      string    `json:"project_path"`
	ProjectName      string    `json:"project_name"`
	GitBranch        string    `json:"git_branch"`
	StartTime        Timestamp `json:"start_time"`
	LastActivityTime Timestamp `json:"last_activity_time"`
	DurationSeconds  float64   `json:"duration_seconds"`

	UserMessagesCount        int `json:"user_messages_count"`
	AIResponsesCount         int `json:"ai_responses_count"`
	ToolCallsCount           int `json:"tool_calls_count"`
	InteractiveFeedbackCalls int `json:"interactive_feedback_calls"`

	TotalUserChars     int `json:"total_user_chars"`
	TotalAIChars       int `json:"total_ai_chars"`
	CodeBlocksCount    int `json:"code_blocks_count"`
	ImagesPastedCount  int `json:"images_pasted_count"`
	FilesOperatedCount int `json:"files_operated_count"`

	InteractionTypes  []string `json:"interaction_types"`
	SessionCategories []string `json:"session_categories"`
	RiskIndicators    []string `json:"risk_indicators"`

	SessionEnded   bool   `json:"session_ended"`
	EndReason      string `json:"end_reason"`
	AutoTerminated bool   `json:"auto_terminated"`
}

// New returns an open record for the given project, started at now.
func New(projectPath, projectName, gitBranch string, now time.Time) *Record {
	if gitBranch == "" {
		gitBranch = DefaultBranch
	}
	ts := Timestamp{now}
	return &Record{
		SessionID:         NewID(projectPath, now),
		ProjectPath:       projectPath,
		ProjectName:       projectName,
		GitBranch:         gitBranch,
		StartTime:         ts,
		LastActivityTime:  ts,
		InteractionTypes:  []string{},
		SessionCategories: []string{},
		RiskIndicators:    []string{},
	}
}

// NewID derives a session ID from the project path, the creation time and a
// random component.
func NewID(projectPath string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	sum := md5.Sum([]byte(idSeed(projectPath, now, random)))
	return hex.EncodeToString(sum[:])
}

// idSeed uses the zone-less persisted timestamp layout, not RFC 3339.
func idSeed(projectPath string, now time.Time, random string) string {
	return fmt.Sprintf("%s_%s_%s", projectPath, Timestamp{now}.String(), random)
}

// IsAutoReason reports whether an end reason denotes automatic termination.
func IsAutoReason(reason string) bool {
	return strings.HasPrefix(reason, AutoPrefix)
}

// Touch moves LastActivityTime forward to now. It never moves it backwards.
func (r *Record) Touch(now time.Time) {
	if now.After(r.LastActivityTime.Time) {
		r.LastActivityTime = Timestamp{now}
	}
}

// AddUnique appends v to set unless it is already present. It reports whether
// v was added.
func AddUnique(set *[]string, v string) bool {
	for _, s := range *set {
		if s == v {
			return false
		}
	}
	*set = append(*set, v)
	return true
}

// Finish freezes the record with the given end reason and final duration.
func (r *Record) Finish(reason string, duration time.Duration) {
	r.SessionEnded = true
	r.EndReason = reason
	r.AutoTerminated = IsAutoReason(reason)
	r.DurationSeconds = duration.Seconds()
}

// Clone returns a deep copy of r.
func (r *Record) Clone() Record {
	c := *r
	c.InteractionTypes = cloneStrings(r.InteractionTypes)
	c.SessionCategories = cloneStrings(r.SessionCategories)
	c.RiskIndicators = cloneStrings(r.RiskIndicators)
	return c
}

// Summary projects the record onto the one-line summary format.
func (r *Record) Summary() Summary {
	return Summary{
		SessionID:                r.SessionID,
		StartTime:                r.StartTime,
		DurationSeconds:          r.DurationSeconds,
		UserMessages:             r.UserMessagesCount,
		AIResponses:              r.AIResponsesCount,
		ToolCalls:                r.ToolCallsCount,
		InteractiveFeedbackCalls: r.InteractiveFeedbackCalls,
		Categories:               cloneStrings(r.SessionCategories),
		RiskIndicatorsCount:      len(r.RiskIndicators),
		AutoTerminated:           r.AutoTerminated,
		EndReason:                r.EndReason,
	}
}

// Summary is the durable, append-only projection of a finished session.
type Summary struct {
	SessionID                string    `json:"session_id"`
	StartTime                Timestamp `json:"start_time"`
	DurationSeconds          float64   `json:"duration_seconds"`
	UserMessages             int       `json:"user_messages"`
	AIResponses              int       `json:"ai_responses"`
	ToolCalls                int       `json:"tool_calls"`
	InteractiveFeedbackCalls int       `json:"interactive_feedback_calls"`
	Categories               []string  `json:"categories"`
	RiskIndicatorsCount      int       `json:"risk_indicators_count"`
	AutoTerminated           bool      `json:"auto_terminated"`
	EndReason                string    `json:"end_reason"`
}

// cloneStrings copies s, mapping nil to an empty slice so JSON output is [] not null.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
