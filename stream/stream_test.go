package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/message"
)

func TestAccumulatorCoalescesContentAndToolCalls(t *testing.T) {
	a := NewAccumulator()
	a.Apply(llm.ChunkDelta{Content: "The "})
	a.Apply(llm.ChunkDelta{Content: "answer "})
	a.Apply(llm.ChunkDelta{Content: "is 4."})
	a.Apply(llm.ChunkDelta{ToolCallDelta: &llm.ToolCallDelta{Index: 0, ID: "call-1", Name: "search"}})
	a.Apply(llm.ChunkDelta{ToolCallDelta: &llm.ToolCallDelta{Index: 0, ArgumentsFragment: `{"q":`}})
	a.Apply(llm.ChunkDelta{ToolCallDelta: &llm.ToolCallDelta{Index: 0, ArgumentsFragment: `"go"}`}})
	a.Apply(llm.ChunkDelta{Usage: &llm.Usage{TotalTokens: 42}})

	content, reasoning, calls, usage := a.Finalize()
	assert.Equal(t, "The answer is 4.", content)
	assert.Empty(t, reasoning)
	assert.Equal(t, 42, usage.TotalTokens)
	if assert.Len(t, calls, 1) {
		assert.Equal(t, "call-1", calls[0].ID)
		assert.Equal(t, "search", calls[0].Name)
		assert.Equal(t, "go", calls[0].Arguments["q"])
	}
}

func TestAccumulatorPreservesToolCallOrderByIndex(t *testing.T) {
	a := NewAccumulator()
	a.Apply(llm.ChunkDelta{ToolCallDelta: &llm.ToolCallDelta{Index: 1, ID: "second", Name: "b"}})
	a.Apply(llm.ChunkDelta{ToolCallDelta: &llm.ToolCallDelta{Index: 0, ID: "first", Name: "a"}})

	_, _, calls, _ := a.Finalize()
	if assert.Len(t, calls, 2) {
		assert.Equal(t, "first", calls[0].ID)
		assert.Equal(t, "second", calls[1].ID)
	}
}

func TestVercelSSEFramingSimpleTextReply(t *testing.T) {
	enc := NewVercelEncoder("msg-1")
	var out strings.Builder
	out.WriteString(enc.Start())
	out.WriteString(enc.Encode(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "The "})))
	out.WriteString(enc.Encode(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "answer "})))
	out.WriteString(enc.Encode(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "is 4."})))
	out.WriteString(enc.Encode(message.NewEvent(message.EventExecutionDone, map[string]any{"finish_reason": "stop"})))

	s := out.String()
	assert.Contains(t, s, `"type":"message-start"`)
	assert.Contains(t, s, `"type":"step-start"`)
	assert.Contains(t, s, `"type":"text-start"`)
	assert.Contains(t, s, `"delta":"The "`)
	assert.Contains(t, s, `"type":"text-end"`)
	assert.Contains(t, s, `"finishReason":"stop","type":"finish"`)
	assert.Contains(t, s, "data: [DONE]")
	assert.NotContains(t, s, "reasoning-start")
	assert.NotContains(t, s, "tool-input")
}

func TestVercelSSEFramingReasoningClosesBeforeText(t *testing.T) {
	enc := NewVercelEncoder("msg-2")
	_ = enc.Start()
	out := enc.Encode(message.NewEvent(message.EventLLMThinking, map[string]any{"delta": "thinking..."}))
	out += enc.Encode(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "answer"}))

	reasonEndIdx := strings.Index(out, "reasoning-end")
	textStartIdx := strings.Index(out, "text-start")
	if assert.True(t, reasonEndIdx >= 0 && textStartIdx >= 0) {
		assert.Less(t, reasonEndIdx, textStartIdx)
	}
}
