package message

import "time"

// EventType enumerates the kinds of ExecutionEvent the events stream mode
// emits. Grounded 1:1 on original_source's tyler/models/execution.py
// EventType values (via tyler/streaming/events.py's usage of them).
type EventType string

const (
	EventIterationStart EventType = "iteration_start"
	EventIterationLimit EventType = "iteration_limit"
	EventLLMRequest     EventType = "llm_request"
	EventLLMStreamChunk EventType = "llm_stream_chunk"
	EventLLMThinking    EventType = "llm_thinking_chunk"
	EventLLMResponse    EventType = "llm_response"
	EventToolSelected   EventType = "tool_selected"
	EventToolProgress   EventType = "tool_progress"
	EventToolResult     EventType = "tool_result"
	EventToolError      EventType = "tool_error"
	EventMessageCreated EventType = "message_created"
	EventExecutionError EventType = "execution_error"
	EventExecutionDone  EventType = "execution_complete"
)

// ExecutionEvent is the typed record the Events stream mode yields.
type ExecutionEvent struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent builds an ExecutionEvent stamped with the current time.
func NewEvent(t EventType, data map[string]any) ExecutionEvent {
	return ExecutionEvent{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// AgentResult is the non-streaming ("run"/"none" mode) return value.
type AgentResult struct {
	Thread       *Thread
	NewMessages  []Message
	Output       string
	Success      bool

	// Populated only when a response_type was requested and validation
	// succeeded.
	StructuredData     any
	ValidationRetries  int
	RetryHistory       []RetryAttempt
}
