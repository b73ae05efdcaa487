package agent

import (
	"encoding/json"

	"github.com/54b3r/agentrag-go/internal/apperr"
)

// EventType tags a streamed execution event.
type EventType string

const (
	EventMetadata EventType = "metadata"
	EventContext  EventType = "context"
	EventContent  EventType = "content"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one frame of a streamed execution. Only the fields belonging to
// Type are serialised.
type Event struct {
	Type EventType

	AgentID   string
	AgentName string
	HasRAG    bool

	Documents []ContextDocument

	Content string

	ExecutionTimeMS float64

	Err string
}

// MetadataEvent opens every stream.
func MetadataEvent(agentID, name string, hasRAG bool) Event {
	return Event{Type: EventMetadata, AgentID: agentID, AgentName: name, HasRAG: hasRAG}
}

// ContextEvent carries the retrieved chunks of a RAG execution.
func ContextEvent(docs []ContextDocument) Event {
	if docs == nil {
		docs = []ContextDocument{}
	}
	return Event{Type: EventContext, Documents: docs}
}

// ContentEvent carries one answer fragment.
func ContentEvent(s string) Event {
	return Event{Type: EventContent, Content: s}
}

// DoneEvent terminates a successful stream.
func DoneEvent(ms float64) Event {
	return Event{Type: EventDone, ExecutionTimeMS: ms}
}

// ErrorEvent terminates a failed stream.
func ErrorEvent(agentID string, err error) Event {
	return Event{Type: EventError, AgentID: agentID, Err: apperr.Message(err)}
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// MarshalJSON renders the wire shape for e.Type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventMetadata:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			AgentID   string    `json:"agent_id"`
			AgentName string    `json:"agent_name"`
			HasRAG    bool      `json:"has_rag"`
		}{e.Type, e.AgentID, e.AgentName, e.HasRAG})
	case EventContext:
		return json.Marshal(struct {
			Type      EventType         `json:"type"`
			Documents []ContextDocument `json:"documents"`
		}{e.Type, e.Documents})
	case EventContent:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	case EventDone:
		return json.Marshal(struct {
			Type            EventType `json:"type"`
			ExecutionTimeMS float64   `json:"execution_time_ms"`
		}{e.Type, e.ExecutionTimeMS})
	default:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Error   string    `json:"error"`
			AgentID string    `json:"agent_id"`
		}{EventError, e.Err, e.AgentID})
	}
}
