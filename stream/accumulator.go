// Package stream is the Stream Modes component (spec.md §4.5): the shared
// ChunkAccumulator every mode uses to coalesce provider deltas into a final
// assistant message, plus the Vercel Data Stream Protocol encoder (the one
// mode whose framing is complex enough to deserve its own file rather than
// living inline in agentloop).
//
// Grounded on original_source's tyler/streaming/{events,vercel,openai}.py
// for the exact event-to-frame mappings, and on the teacher's
// channel-based agent/agent.go execute() for the Go-idiomatic shape: one
// goroutine drives the loop and writes to a channel, the caller ranges
// over it.
package stream

import (
	"sort"
	"strings"

	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/message"
)

// Kind names one of the four pluggable strategies spec.md §4.5 describes.
type Kind string

const (
	KindNone   Kind = "none"   // run to completion, no streaming surface
	KindEvents Kind = "events" // typed ExecutionEvent telemetry
	KindRaw    Kind = "raw"    // provider chunks unmodified ("openai" mode)
	KindVercel Kind = "vercel" // Vercel AI SDK Data Stream Protocol SSE
)

// Accumulator coalesces a stream of llm.ChunkDelta into final content,
// reasoning, tool-call records and usage metrics — the state every mode
// shares (spec.md §4.5: "All modes share a chunk accumulator").
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	calls     map[int]*toolCallBuilder
	order     []int
	usage     llm.Usage
}

type toolCallBuilder struct {
	id, name, args strings.Builder
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*toolCallBuilder)}
}

// Apply folds one chunk into the accumulator. Content and reasoning chunks
// never share a delta (spec.md §4.5), so the caller may route them to
// distinct events without inspecting both fields on the same value.
func (a *Accumulator) Apply(d llm.ChunkDelta) {
	if d.Content != "" {
		a.content.WriteString(d.Content)
	}
	if d.Reasoning != "" {
		a.reasoning.WriteString(d.Reasoning)
	}
	if d.ToolCallDelta != nil {
		td := d.ToolCallDelta
		b, ok := a.calls[td.Index]
		if !ok {
			b = &toolCallBuilder{}
			a.calls[td.Index] = b
			a.order = append(a.order, td.Index)
		}
		if td.ID != "" {
			b.id.Reset()
			b.id.WriteString(td.ID)
		}
		if td.Name != "" {
			b.name.Reset()
			b.name.WriteString(td.Name)
		}
		b.args.WriteString(td.ArgumentsFragment)
	}
	if d.Usage != nil {
		a.usage = *d.Usage
	}
}

// Finalize returns the accumulated content, reasoning, tool calls (sorted by
// their stream index) and usage.
func (a *Accumulator) Finalize() (content, reasoning string, calls []message.ToolCall, usage llm.Usage) {
	content = a.content.String()
	reasoning = a.reasoning.String()
	usage = a.usage

	order := append([]int(nil), a.order...)
	sort.Ints(order)
	for _, idx := range order {
		b := a.calls[idx]
		calls = append(calls, message.NewToolCall(b.id.String(), b.name.String(), b.args.String()))
	}
	return content, reasoning, calls, usage
}
