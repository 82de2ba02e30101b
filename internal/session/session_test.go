package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	r := New("/work/demo", "demo", "", now)

	assert.Len(t, r.SessionID, 32)
	assert.Equal(t, DefaultBranch, r.GitBranch)
	assert.True(t, r.StartTime.Equal(now))
	assert.True(t, r.LastActivityTime.Equal(now))
	assert.NotNil(t, r.RiskIndicators)
	assert.NotNil(t, r.InteractionTypes)
	assert.NotNil(t, r.SessionCategories)
}

func TestNewID_Unique(t *testing.T) {
	now := time.Now()
	a := NewID("/p", now)
	b := NewID("/p", now)
	assert.NotEqual(t, a, b, "random component should make IDs differ")
}

func TestIDSeed_Layout(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 4, 5, 123456789, time.Local)
	assert.Equal(t, "/work/demo_2026-03-01T10:04:05.123456_0a1b2c3d", idSeed("/work/demo", now, "0a1b2c3d"))
}

func TestTouch_NeverMovesBackwards(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	r := New("/p", "p", "main", start)

	r.Touch(start.Add(time.Minute))
	r.Touch(start.Add(-time.Hour))
	assert.True(t, r.LastActivityTime.Equal(start.Add(time.Minute)))
}

func TestFinish_AutoPrefix(t *testing.T) {
	tests := []struct {
		reason string
		auto   bool
	}{
		{"auto_timeout", true},
		{"auto_", true},
		{"user_ended", false},
		{"project_switched", false},
		{"AUTO_timeout", false},
	}
	for _, tc := range tests {
		r := New("/p", "p", "main", time.Now())
		r.Finish(tc.reason, 1500*time.Millisecond)
		assert.True(t, r.SessionEnded)
		assert.Equal(t, tc.reason, r.EndReason)
		assert.Equal(t, tc.auto, r.AutoTerminated, "reason %q", tc.reason)
		assert.InDelta(t, 1.5, r.DurationSeconds, 1e-9)
	}
}

func TestAddUnique(t *testing.T) {
	var set []string
	assert.True(t, AddUnique(&set, "a"))
	assert.True(t, AddUnique(&set, "b"))
	assert.False(t, AddUnique(&set, "a"))
	assert.Equal(t, []string{"a", "b"}, set)
}

func TestClone_IsDeep(t *testing.T) {
	r := New("/p", "p", "main", time.Now())
	r.RiskIndicators = append(r.RiskIndicators, "x")
	c := r.Clone()
	c.RiskIndicators[0] = "y"
	assert.Equal(t, "x", r.RiskIndicators[0])
}

func TestSummary_Projection(t *testing.T) {
	r := New("/p", "p", "main", time.Now())
	r.UserMessagesCount = 3
	r.AIResponsesCount = 2
	r.ToolCallsCount = 7
	r.InteractiveFeedbackCalls = 1
	r.SessionCategories = []string{"bug"}
	r.RiskIndicators = []string{"a", "b"}
	r.Finish("auto_timeout", 10*time.Second)

	s := r.Summary()
	assert.Equal(t, r.SessionID, s.SessionID)
	assert.Equal(t, 3, s.UserMessages)
	assert.Equal(t, 2, s.AIResponses)
	assert.Equal(t, 7, s.ToolCalls)
	assert.Equal(t, 1, s.InteractiveFeedbackCalls)
	assert.Equal(t, []string{"bug"}, s.Categories)
	assert.Equal(t, 2, s.RiskIndicatorsCount)
	assert.True(t, s.AutoTerminated)
	assert.Equal(t, "auto_timeout", s.EndReason)
}

func TestSummary_JSONFieldSet(t *testing.T) {
	r := New("/p", "p", "main", time.Now())
	r.SessionCategories = nil
	data, err := json.Marshal(r.Summary())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	want := []string{
		"session_id", "start_time", "duration_seconds", "user_messages",
		"ai_responses", "tool_calls", "interactive_feedback_calls", "categories",
		"risk_indicators_count", "auto_terminated", "end_reason",
	}
	assert.Len(t, fields, len(want))
	for _, k := range want {
		assert.Contains(t, fields, k)
	}
	assert.Equal(t, []any{}, fields["categories"])
}

func TestTimestamp_RoundTrip(t *testing.T) {
	ts := Timestamp{time.Date(2026, 3, 1, 10, 30, 15, 123456000, time.Local)}
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T10:30:15.123456"`, string(data))

	var back Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(ts.Time))
}

func TestParseTimestamp_Layouts(t *testing.T) {
	for _, s := range []string{
		"2026-03-01T10:30:15.123456",
		"2026-03-01T10:30:15",
		"2026-03-01T10:30:15Z",
		"2026-03-01T10:30:15.5+08:00",
	} {
		_, err := ParseTimestamp(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestEvent_RoundTripTyped(t *testing.T) {
	r := New("/p", "demo", "main", time.Now())
	events := []Event{
		NewEvent(r, Now(), StartedPayload{SessionID: r.SessionID}),
		NewEvent(r, Now(), FeedbackPayload{Category: "bug", Priority: 4, CallCount: 2}),
		NewEvent(r, Now(), InterruptedPayload{Reason: "timeout"}),
		NewEvent(r, Now(), EndedPayload{Reason: "auto_timeout", DurationSeconds: 3, AutoTerminated: true}),
	}
	for _, e := range events {
		data, err := json.Marshal(e)
		require.NoError(t, err)

		var back Event
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, e.Type, back.Type)
		assert.Equal(t, e.Data, back.Data)
		assert.Equal(t, "demo", back.ProjectName)
	}
}

func TestEvent_UnknownType(t *testing.T) {
	line := `{"timestamp":"2026-03-01T10:00:00","session_id":"s","project_name":"p","event_type":"custom","data":{"k":1}}`
	var e Event
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	u, ok := e.Data.(UnknownPayload)
	require.True(t, ok)
	assert.Equal(t, EventType("custom"), u.Type)
	assert.Equal(t, float64(1), u.Fields["k"])
}

func TestEvent_MissingType(t *testing.T) {
	var e Event
	assert.Error(t, json.Unmarshal([]byte(`{"session_id":"s"}`), &e))
}
