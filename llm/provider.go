// Package llm is the Completion Handler (spec.md §4.3): one call to an LLM
// provider, translating the agent's abstract request into whatever shape
// the concrete provider's API wants and normalizing the answer (or chunk
// stream) back into a provider-agnostic Response/ChunkDelta.
//
// Grounded on the teacher's llms/openai.go, llms/anthropic.go and
// llms/ollama.go: same wire-format structs and three-tier retry logic, but
// collapsed behind one Provider interface instead of a bespoke
// Generate/GenerateStreaming signature per provider, and driven by the
// abstract Request/Response types this package defines rather than the
// teacher's own []Message/[]ToolDefinition pair.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ReasoningLevel is a coarse "how hard should the model think" knob,
// translated per-provider (OpenAI reasoning_effort, Anthropic thinking
// budget, ...).
type ReasoningLevel string

const (
	ReasoningLow    ReasoningLevel = "low"
	ReasoningMedium ReasoningLevel = "medium"
	ReasoningHigh   ReasoningLevel = "high"
)

// ReasoningConfig is either a coarse Level or an explicit provider-specific
// token budget; a provider implementation uses whichever it understands.
type ReasoningConfig struct {
	Level      ReasoningLevel
	MaxTokens  int
	Extra      map[string]any
}

// Message is the wire-shaped message the Completion Handler sends,
// already serialized from message.Message by the Agent Loop (spec.md §6
// "messages on the wire use role ∈ {system,user,assistant,tool}").
type Message struct {
	Role       string
	Content    string
	Reasoning  string
	ToolCalls  []ToolCallWire
	ToolCallID string
	Name       string
}

// ToolCallWire is a tool call as it appears in a provider request/response:
// arguments are always a JSON string on the wire.
type ToolCallWire struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSchema is one tool's {name, description, parameters} triple, the
// flattened form the Agent Loop hands the Completion Handler (spec.md
// §4.1's Declaration, stripped of anything not meaningful to a provider).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage is token accounting for one completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is the abstract shape every Provider implementation accepts,
// per spec.md §4.3's input list.
type Request struct {
	Model              string
	Messages           []Message
	Tools              []ToolSchema
	Temperature        float64
	Reasoning          *ReasoningConfig
	RequireJSONOutput  bool
	MaxTokens          int
	APIBase            string
	APIKey             string
	ExtraHeaders       map[string]string
	// DropParams, when true (the default), silently omits a parameter the
	// provider doesn't accept instead of failing the call.
	DropParams bool
}

// Response is the non-streaming completion result.
type Response struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCallWire
	Usage     Usage
}

// ToolCallDelta is one incremental fragment of a tool call under
// construction during streaming; Index identifies which in-progress call a
// fragment belongs to, since providers interleave fragments by position,
// not by a stable id that's only known once the first fragment arrives.
type ToolCallDelta struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// ChunkDelta is one streamed fragment. A chunk carrying Content never also
// carries Reasoning (spec.md §4.5 events mode requirement); Usage is set
// only on the terminal chunk.
type ChunkDelta struct {
	Content       string
	Reasoning     string
	ToolCallDelta *ToolCallDelta
	Usage         *Usage
	Done          bool
}

// Provider is the Completion Handler's consumed interface: "a function
// that, given a request, returns either a full response or an async chunk
// stream" (spec.md §1).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan ChunkDelta, error)
}

// ProviderError wraps a completion failure with the provider's name, so the
// Agent Loop's execution_error event and error message can name the
// offending provider without string-parsing the underlying error.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm(%s): %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrNoChoices is returned when a provider's response contains no usable
// choice, distinct from a transport or status error.
var ErrNoChoices = errors.New("llm: provider returned no response choices")
