package agentloop

import (
	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/tool"
)

// toWireMessages flattens a Thread's messages into the Completion Handler's
// wire shape (spec.md §6, "messages on the wire use role ∈
// {system,user,assistant,tool}").
func toWireMessages(msgs []message.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		wm := llm.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			Reasoning:  m.Reasoning,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, llm.ToolCallWire{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.MarshalArguments(),
			})
		}
		out[i] = wm
	}
	return out
}

// toWireTools flattens registered tool declarations into the Completion
// Handler's ToolSchema shape, stripping attributes (Source, Tags,
// Interrupt, Timeout) the provider has no use for.
func toWireTools(decls []tool.Declaration) []llm.ToolSchema {
	out := make([]llm.ToolSchema, len(decls))
	for i, d := range decls {
		out[i] = llm.ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// wireToolCallsToMessage converts the provider's ToolCallWire list into
// message.ToolCall values, parsing each call's argument JSON (malformed
// JSON degrades to an empty map per message.NewToolCall's contract).
func wireToolCallsToMessage(calls []llm.ToolCallWire) []message.ToolCall {
	out := make([]message.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = message.NewToolCall(c.ID, c.Name, c.Arguments)
	}
	return out
}
