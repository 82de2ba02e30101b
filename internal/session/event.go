package session

import (
	"encoding/json"
	"fmt"
)

// EventType names a lifecycle or business event in the event log.
type EventType string

// Event types written by the collector.
const (
	EventSessionStarted     EventType = "session_started"
	EventFeedbackCalled     EventType = "interactive_feedback_called"
	EventSessionInterrupted EventType = "session_interrupted"
	EventSessionEnded       EventType = "session_ended"
)

// Payload is the event-specific body stored under "data".
type Payload interface {
	EventType() EventType
}

// StartedPayload is the body of a session_started event.
type StartedPayload struct {
	SessionID string `json:"session_id"`
}

// FeedbackPayload is the body of an interactive_feedback_called event.
type FeedbackPayload struct {
	Category  string `json:"category"`
	Priority  int    `json:"priority"`
	CallCount int    `json:"call_count"`
}

// InterruptedPayload is the body of a session_interrupted event.
type InterruptedPayload struct {
	Reason string `json:"reason"`
}

// EndedPayload is the body of a session_ended event.
type EndedPayload struct {
	Reason          string  `json:"reason"`
	DurationSeconds float64 `json:"duration_seconds"`
	AutoTerminated  bool    `json:"auto_terminated"`
}

// UnknownPayload holds the body of an event type this version does not model.
type UnknownPayload struct {
	Type   EventType
	Fields map[string]any
}

func (StartedPayload) EventType() EventType     { return EventSessionStarted }
func (FeedbackPayload) EventType() EventType    { return EventFeedbackCalled }
func (InterruptedPayload) EventType() EventType { return EventSessionInterrupted }
func (EndedPayload) EventType() EventType       { return EventSessionEnded }
func (p UnknownPayload) EventType() EventType   { return p.Type }

// MarshalJSON writes the raw fields.
func (p UnknownPayload) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

// Event is one line of session_events.jsonl.
type Event struct {
	Timestamp   Timestamp `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	ProjectName string    `json:"project_name"`
	Type        EventType `json:"event_type"`
	Data        Payload   `json:"data"`
}

// NewEvent builds an event for the given record, typed by its payload.
func NewEvent(r *Record, at Timestamp, data Payload) Event {
	return Event{
		Timestamp:   at,
		SessionID:   r.SessionID,
		ProjectName: r.ProjectName,
		Type:        data.EventType(),
		Data:        data,
	}
}

// UnmarshalJSON decodes the envelope and dispatches the payload on event_type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp   Timestamp       `json:"timestamp"`
		SessionID   string          `json:"session_id"`
		ProjectName string          `json:"project_name"`
		Type        EventType       `json:"event_type"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Type == "" {
		return fmt.Errorf("event: missing event_type")
	}

	data, err := decodePayload(raw.Type, raw.Data)
	if err != nil {
		return fmt.Errorf("event %s: %w", raw.Type, err)
	}

	e.Timestamp = raw.Timestamp
	e.SessionID = raw.SessionID
	e.ProjectName = raw.ProjectName
	e.Type = raw.Type
	e.Data = data
	return nil
}

func decodePayload(t EventType, data json.RawMessage) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	switch t {
	case EventSessionStarted:
		var p StartedPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case EventFeedbackCalled:
		var p FeedbackPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case EventSessionInterrupted:
		var p InterruptedPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case EventSessionEnded:
		var p EndedPayload
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		p := UnknownPayload{Type: t}
		err := json.Unmarshal(data, &p.Fields)
		return p, err
	}
}
