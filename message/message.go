// Package message holds the plain value types that flow through an agent
// run: messages, threads, tool calls, attachments and the telemetry/result
// types the rest of the runtime produces and consumes.
//
// These are records, not objects with behavior: construction helpers live in
// package factory, execution behavior lives in package agentloop. A Message
// is immutable after it is appended to a Thread, except for the metrics map,
// which may be enriched in place after the fact (e.g. once a provider's
// final usage numbers are known).
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// SourceKind identifies what kind of actor produced a Message.
type SourceKind string

const (
	SourceUser  SourceKind = "user"
	SourceAgent SourceKind = "agent"
	SourceTool  SourceKind = "tool"
)

// Source stamps a Message with who produced it and any attributes worth
// keeping around (e.g. the model name for an assistant message).
type Source struct {
	Kind       SourceKind     `json:"kind"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Metrics carries timing and token-usage information for one Message.
type Metrics struct {
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	LatencyMS    int64     `json:"latency_ms"`
	PromptTokens int       `json:"prompt_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	TotalTokens  int       `json:"total_tokens,omitempty"`
}

// NewMetrics computes {started_at, ended_at, latency_ms} given a start
// instant, matching the Message Factory's timing helper (spec.md §4.4).
func NewMetrics(startedAt time.Time) Metrics {
	ended := time.Now().UTC()
	return Metrics{
		StartedAt: startedAt,
		EndedAt:   ended,
		LatencyMS: ended.Sub(startedAt).Milliseconds(),
	}
}

// ZeroMetrics returns a Metrics value with zero latency, used for
// synthetic messages (errors, max-iterations) that involve no LLM call.
func ZeroMetrics() Metrics {
	now := time.Now().UTC()
	return Metrics{StartedAt: now, EndedAt: now}
}

// Attachment is a file reference carried on a Message: either inline bytes
// or a locator understood by the storage interface's file store.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ToolCall is a value object: a stable id, the tool name, and arguments.
// Arguments are always held parsed in memory; wire (de)serialization is
// explicit via ParseToolCallArguments / MarshalArguments.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewToolCall builds a ToolCall from provider output. argsJSON may be a
// JSON-string ("already-wire-encoded") or empty/blank/null; malformed JSON
// degrades to an empty mapping rather than erroring, per spec.md §3/§8.
func NewToolCall(id, name, argsJSON string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: ParseToolCallArguments(argsJSON)}
}

// ParseToolCallArguments normalizes a wire-format argument string into a
// mapping. Blank input and malformed JSON both degrade to an empty map —
// callers never see a parse error here, matching the Tool Runner's
// "malformed JSON arguments degrade to an empty mapping" boundary behavior.
func ParseToolCallArguments(argsJSON string) map[string]any {
	if argsJSON == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// MarshalArguments serializes Arguments back to the wire JSON-string form.
// Never fails: a map of JSON-compatible values always marshals.
func (t ToolCall) MarshalArguments() string {
	if t.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(t.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Clone returns a ToolCall whose Arguments map is a fresh copy, so that
// retries (structured-output or otherwise) never share mutable state with
// the original call.
func (t ToolCall) Clone() ToolCall {
	args := make(map[string]any, len(t.Arguments))
	for k, v := range t.Arguments {
		args[k] = v
	}
	return ToolCall{ID: t.ID, Name: t.Name, Arguments: args}
}

// RetryAttempt records one structured-output validation failure, kept on
// the terminal assistant message's RetryHistory.
type RetryAttempt struct {
	Attempt int      `json:"attempt"`
	Errors  []string `json:"errors"`
}

// Message is one turn in a Thread. Immutable after Thread.Add except for
// Metrics enrichment.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool messages only.
	ToolName   string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	Attachments  []Attachment   `json:"attachments,omitempty"`
	Source       Source         `json:"source"`
	Metrics      Metrics        `json:"metrics"`
	RetryHistory []RetryAttempt `json:"retry_history,omitempty"`
}

func newID() string { return uuid.NewString() }
