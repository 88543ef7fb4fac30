package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/loom/message"
)

// VercelEncoder turns the Events mode's ExecutionEvent sequence into Vercel
// AI SDK Data Stream Protocol SSE frames (spec.md §4.5's Vercel mode,
// "internally composed on top of the events mode"). Grounded on
// original_source's tyler/streaming/vercel.py for the frame-kind mapping
// and part-id bracketing rules.
type VercelEncoder struct {
	messageID   string
	textOpen    bool
	textPart    string
	reasonOpen  bool
	reasonPart  string
	partSeq     int
}

// NewVercelEncoder returns an encoder for one run, stamped with messageID.
func NewVercelEncoder(messageID string) *VercelEncoder {
	return &VercelEncoder{messageID: messageID}
}

func (e *VercelEncoder) nextPartID(prefix string) string {
	e.partSeq++
	return fmt.Sprintf("%s-%d", prefix, e.partSeq)
}

// frame serializes a Vercel frame as one SSE "data: <json>\n\n" line.
func frame(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("data: ")
	sb.Write(b)
	sb.WriteString("\n\n")
	return sb.String()
}

// Start emits the message-start and step-start frames that open a run.
func (e *VercelEncoder) Start() string {
	var sb strings.Builder
	sb.WriteString(frame(map[string]any{"type": "message-start", "messageId": e.messageID}))
	sb.WriteString(frame(map[string]any{"type": "step-start"}))
	return sb.String()
}

// Encode translates one ExecutionEvent into zero or more Vercel frames, per
// the mapping spec.md §4.5 names: llm_stream_chunk → text-delta (opening a
// text part if none open, closing any open reasoning part first);
// llm_thinking_chunk → reasoning-delta with the mirror-image bracketing;
// tool_selected → tool-input-start then tool-input-available; tool_result →
// tool-output-available then step-finish; tool_error → tool-output-error;
// execution_error → error; execution_complete → finish and [DONE].
func (e *VercelEncoder) Encode(ev message.ExecutionEvent) string {
	var sb strings.Builder

	switch ev.Type {
	case message.EventLLMStreamChunk:
		if e.reasonOpen {
			sb.WriteString(frame(map[string]any{"type": "reasoning-end", "id": e.reasonPart}))
			e.reasonOpen = false
		}
		if !e.textOpen {
			e.textPart = e.nextPartID("text")
			sb.WriteString(frame(map[string]any{"type": "text-start", "id": e.textPart}))
			e.textOpen = true
		}
		delta, _ := ev.Data["delta"].(string)
		sb.WriteString(frame(map[string]any{"type": "text-delta", "id": e.textPart, "delta": delta}))

	case message.EventLLMThinking:
		if e.textOpen {
			sb.WriteString(frame(map[string]any{"type": "text-end", "id": e.textPart}))
			e.textOpen = false
		}
		if !e.reasonOpen {
			e.reasonPart = e.nextPartID("reasoning")
			sb.WriteString(frame(map[string]any{"type": "reasoning-start", "id": e.reasonPart}))
			e.reasonOpen = true
		}
		delta, _ := ev.Data["delta"].(string)
		sb.WriteString(frame(map[string]any{"type": "reasoning-delta", "id": e.reasonPart, "delta": delta}))

	case message.EventToolSelected:
		e.closeOpenParts(&sb)
		id, _ := ev.Data["call_id"].(string)
		name, _ := ev.Data["name"].(string)
		args := ev.Data["arguments"]
		sb.WriteString(frame(map[string]any{"type": "tool-input-start", "toolCallId": id, "toolName": name}))
		sb.WriteString(frame(map[string]any{"type": "tool-input-available", "toolCallId": id, "toolName": name, "input": args}))

	case message.EventToolResult:
		id, _ := ev.Data["call_id"].(string)
		output := ev.Data["content"]
		sb.WriteString(frame(map[string]any{"type": "tool-output-available", "toolCallId": id, "output": output}))
		sb.WriteString(frame(map[string]any{"type": "step-finish"}))

	case message.EventToolError:
		id, _ := ev.Data["call_id"].(string)
		msg, _ := ev.Data["message"].(string)
		sb.WriteString(frame(map[string]any{"type": "tool-output-error", "toolCallId": id, "errorText": msg}))

	case message.EventExecutionError:
		msg, _ := ev.Data["message"].(string)
		sb.WriteString(frame(map[string]any{"type": "error", "errorText": msg}))

	case message.EventExecutionDone:
		e.closeOpenParts(&sb)
		reason, _ := ev.Data["finish_reason"].(string)
		if reason == "" {
			reason = "stop"
		}
		sb.WriteString(frame(map[string]any{"type": "finish", "finishReason": reason}))
		sb.WriteString("data: [DONE]\n\n")
	}

	return sb.String()
}

func (e *VercelEncoder) closeOpenParts(sb *strings.Builder) {
	if e.textOpen {
		sb.WriteString(frame(map[string]any{"type": "text-end", "id": e.textPart}))
		e.textOpen = false
	}
	if e.reasonOpen {
		sb.WriteString(frame(map[string]any{"type": "reasoning-end", "id": e.reasonPart}))
		e.reasonOpen = false
	}
}
