package a2aserver

import (
	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/kadirpekel/loom/message"
)

// artifactStream tracks the one open artifact a task's response streams
// into, per spec.md §4.7's lifecycle: opened on the first llm_stream_chunk
// (or llm_response, for a non-streamed completion), updated on every
// subsequent chunk, closed with LastChunk=true on llm_response. Grounded
// on the teacher's pkg/server/events.go eventProcessor, whose
// responseID/terminalEvents bookkeeping this mirrors, simplified to the
// one content channel the Agent Loop's events mode actually produces
// (thinking chunks and tool_selected events are dropped; non-empty
// tool_result and tool_error text is appended to the same artifact, see
// translate below).
type artifactStream struct {
	reqCtx     *a2asrv.RequestContext
	artifactID a2a.ArtifactID
	opened     bool
}

func newArtifactStream(reqCtx *a2asrv.RequestContext) *artifactStream {
	return &artifactStream{reqCtx: reqCtx}
}

// translate maps one ExecutionEvent onto zero or one A2A wire event.
// Events with no A2A counterpart (iteration_start, tool_selected,
// tool_progress, message_created, iteration_limit) are dropped; their
// information either has no A2A field to carry it or is already implied
// by the artifact/status events that bracket them.
func (p *artifactStream) translate(ev message.ExecutionEvent) a2a.Event {
	switch ev.Type {
	case message.EventLLMStreamChunk:
		delta, _ := ev.Data["delta"].(string)
		return p.appendChunk(delta, false)

	case message.EventLLMResponse:
		content, _ := ev.Data["content"].(string)
		return p.appendChunk(content, true)

	case message.EventToolResult:
		content, _ := ev.Data["content"].(string)
		if content == "" {
			return nil
		}
		return p.appendChunk(content, false)

	case message.EventToolError:
		msg, _ := ev.Data["message"].(string)
		return p.appendChunk(msg, false)

	case message.EventExecutionDone:
		ev := a2a.NewStatusUpdateEvent(p.reqCtx, a2a.TaskStateCompleted, nil)
		ev.Final = true
		return ev

	case message.EventExecutionError:
		msg, _ := ev.Data["message"].(string)
		return toFailedStatusEvent(p.reqCtx, errString(msg), nil)

	default:
		return nil
	}
}

// appendChunk opens the response artifact on first use and appends text
// to it, or closes it with LastChunk=true when final is set.
func (p *artifactStream) appendChunk(text string, final bool) a2a.Event {
	var ev *a2a.TaskArtifactUpdateEvent
	if !p.opened {
		ev = a2a.NewArtifactEvent(p.reqCtx, a2a.TextPart{Text: text})
		p.artifactID = ev.Artifact.ID
		p.opened = true
	} else {
		parts := []a2a.Part{}
		if text != "" {
			parts = append(parts, a2a.TextPart{Text: text})
		}
		ev = a2a.NewArtifactUpdateEvent(p.reqCtx, p.artifactID, parts...)
		ev.Append = true
	}
	ev.LastChunk = final
	return ev
}

type errString string

func (e errString) Error() string { return string(e) }
