package tracker

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

// Interaction types assigned by Classify.
const (
	TypeComplexQuery   = "complex_query"
	TypeQuestion       = "question"
	TypeIssueReport    = "issue_report"
	TypeFeatureRequest = "feature_request"
	TypeGeneral        = "general"
)

const complexQueryLength = 1000

var classifyRules = []struct {
	kind     string
	keywords []string
}{
	{TypeQuestion, []string{"help", "how", "what", "why"}},
	{TypeIssueReport, []string{"fix", "bug", "error", "problem"}},
	{TypeFeatureRequest, []string{"create", "add", "build", "make"}},
}

// Classify assigns an interaction type to a user message. Long messages are
// complex queries; otherwise the first matching keyword group wins.
func Classify(message string) string {
	if utf8.RuneCountInString(message) > complexQueryLength {
		return TypeComplexQuery
	}
	lower := strings.ToLower(message)
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}
	return TypeGeneral
}

// Quality levels.
const (
	LevelExcellent = "优秀"
	LevelGood      = "良好"
	LevelFair      = "一般"
	LevelNeedsWork = "需改进"
)

// InteractionSummary counts the exchanges in a session.
type InteractionSummary struct {
	UserMessages  int `json:"user_messages"`
	AIResponses   int `json:"ai_responses"`
	ToolCalls     int `json:"tool_calls"`
	FeedbackCalls int `json:"feedback_calls"`
}

// QualityReport scores the open session.
type QualityReport struct {
	SessionID       string             `json:"session_id"`
	DurationMinutes float64            `json:"duration_minutes"`
	Score           int                `json:"quality_score"`
	Level           string             `json:"quality_level"`
	Factors         []string           `json:"quality_factors"`
	Interaction     InteractionSummary `json:"interaction_summary"`
	RiskIndicators  []string           `json:"risk_indicators"`
	Categories      []string           `json:"categories"`
}

// AnalyzeCurrentSessionQuality scores the open session.
func (t *Tracker) AnalyzeCurrentSessionQuality() (QualityReport, error) {
	m, ok := t.col.CurrentMetrics()
	if !ok {
		return QualityReport{}, ErrNoActiveSession
	}
	return Score(m), nil
}

// Score computes the quality report for a session snapshot.
func Score(m session.Record) QualityReport {
	score := 0
	factors := []string{}

	if m.DurationSeconds > 0 {
		rate := float64(m.UserMessagesCount+m.AIResponsesCount) / (m.DurationSeconds / 60)
		switch {
		case rate > 2:
			score += 20
			factors = append(factors, "高交互频率")
		case rate > 1:
			score += 10
			factors = append(factors, "适中交互频率")
		}
	}

	if m.InteractiveFeedbackCalls > 0 {
		ratio := float64(m.InteractiveFeedbackCalls) / float64(max(m.AIResponsesCount, 1))
		switch {
		case ratio > 0.8:
			score += 30
			factors = append(factors, "高频反馈调用")
		case ratio > 0.5:
			score += 20
			factors = append(factors, "适量反馈调用")
		default:
			score += 10
			factors = append(factors, "低频反馈调用")
		}
	}

	if m.ToolCallsCount > 0 {
		score += 15
		factors = append(factors, "工具调用活跃")
	}

	avgLen := float64(m.TotalUserChars) / float64(max(m.UserMessagesCount, 1))
	switch {
	case avgLen > 100:
		score += 15
		factors = append(factors, "内容详细")
	case avgLen > 50:
		score += 10
		factors = append(factors, "内容适中")
	}

	switch risks := len(m.RiskIndicators); {
	case risks > 3:
		score -= 20
		factors = append(factors, "高风险模式")
	case risks > 1:
		score -= 10
		factors = append(factors, "中等风险")
	}

	score = min(max(score, 0), 100)

	id := m.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return QualityReport{
		SessionID:       id,
		DurationMinutes: math.Round(m.DurationSeconds/60*10) / 10,
		Score:           score,
		Level:           level(score),
		Factors:         factors,
		Interaction: InteractionSummary{
			UserMessages:  m.UserMessagesCount,
			AIResponses:   m.AIResponsesCount,
			ToolCalls:     m.ToolCallsCount,
			FeedbackCalls: m.InteractiveFeedbackCalls,
		},
		RiskIndicators: append([]string{}, m.RiskIndicators...),
		Categories:     append([]string{}, m.SessionCategories...),
	}
}

func level(score int) string {
	switch {
	case score >= 70:
		return LevelExcellent
	case score >= 50:
		return LevelGood
	case score >= 30:
		return LevelFair
	default:
		return LevelNeedsWork
	}
}
