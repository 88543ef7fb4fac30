// Package factory builds Message values with consistent source stamps and
// timing metadata, so every call site in agentloop and stream constructs
// messages the same way. Grounded on agent/agent.go's inline message
// construction in the teacher (e.g. `llms.Message{Role: "assistant", ...}`
// repeated at each call site) collapsed into named constructors, and on
// original_source's tyler/streaming/events.py's `Message(role=..., source=...)`
// calls for the source-stamping convention.
package factory

import (
	"time"

	"github.com/kadirpekel/loom/message"
)

// ErrorPreamble is prefixed to error messages unless suppressed, matching
// the teacher's deterministic "I encountered an error..." convention.
const ErrorPreamble = "I encountered an error: "

// Factory stamps every message it builds with the given agent name and
// model, so assistant/tool messages carry consistent Source.Attributes.
type Factory struct {
	AgentName string
	Model     string
}

// New returns a Factory for the given agent/model pair.
func New(agentName, model string) *Factory {
	return &Factory{AgentName: agentName, Model: model}
}

// Assistant builds an assistant message. metrics may be the zero value if
// the caller will enrich it later via Thread.EnrichMetrics.
func (f *Factory) Assistant(content, reasoning string, toolCalls []message.ToolCall, metrics message.Metrics) message.Message {
	return message.Message{
		Role:      message.RoleAssistant,
		Content:   content,
		Reasoning: reasoning,
		ToolCalls: toolCalls,
		Source: message.Source{
			Kind: message.SourceAgent,
			Name: f.AgentName,
			Attributes: map[string]any{
				"model": f.Model,
			},
		},
		Metrics: metrics,
	}
}

// Tool builds a tool-result message, stamped with the owning agent in
// Source.Attributes so a tool message can be traced back to the agent that
// dispatched it.
func (f *Factory) Tool(toolName, content, toolCallID string, attachments []message.Attachment, metrics message.Metrics) message.Message {
	return message.Message{
		Role:        message.RoleTool,
		Content:     content,
		ToolName:    toolName,
		ToolCallID:  toolCallID,
		Attachments: attachments,
		Source: message.Source{
			Kind: message.SourceTool,
			Name: toolName,
			Attributes: map[string]any{
				"agent": f.AgentName,
			},
		},
		Metrics: metrics,
	}
}

// Error builds an assistant error message carrying a deterministic preamble
// unless includePreamble is false. Zero-latency timing, since no LLM call
// produced it.
func (f *Factory) Error(msg string, includePreamble bool, source string) message.Message {
	content := msg
	if includePreamble {
		content = ErrorPreamble + msg
	}
	name := source
	if name == "" {
		name = f.AgentName
	}
	return message.Message{
		Role:    message.RoleAssistant,
		Content: content,
		Source: message.Source{
			Kind: message.SourceAgent,
			Name: name,
		},
		Metrics: message.ZeroMetrics(),
	}
}

// User builds a synthetic user-role message, for content the loop itself
// injects into the conversation (e.g. a structured-output validation
// notice) rather than content an actual end user typed. Role is user, not
// system, because a thread may carry at most one system message and it
// must be first (message/thread.go's Thread.Add invariant) — by the time
// this runs the thread already has later messages.
func (f *Factory) User(content, source string) message.Message {
	name := source
	if name == "" {
		name = f.AgentName
	}
	return message.Message{
		Role:    message.RoleUser,
		Content: content,
		Source: message.Source{
			Kind: message.SourceAgent,
			Name: name,
		},
		Metrics: message.ZeroMetrics(),
	}
}

// System builds a system message.
func (f *Factory) System(content, source string) message.Message {
	name := source
	if name == "" {
		name = f.AgentName
	}
	return message.Message{
		Role:    message.RoleSystem,
		Content: content,
		Source: message.Source{
			Kind: message.SourceAgent,
			Name: name,
		},
		Metrics: message.ZeroMetrics(),
	}
}

// MaxIterations builds the designated message appended when the Agent Loop
// hits its iteration cap (spec.md §4.6 step 8).
func (f *Factory) MaxIterations(maxIterations int) message.Message {
	return f.Error(
		"I've reached the maximum number of tool iterations ("+itoa(maxIterations)+") without completing the task. "+
			"Here is my progress so far.",
		false,
		"",
	)
}

// StartTiming returns the current instant, to be passed to
// message.NewMetrics once the operation completes.
func StartTiming() time.Time { return time.Now().UTC() }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
