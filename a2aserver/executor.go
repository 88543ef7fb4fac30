// Package a2aserver is the A2A streaming executor surface (spec.md §4.7): a
// thin consumer that maps the Agent Loop's events-mode ExecutionEvent
// stream onto the Agent-to-Agent protocol's task/artifact wire events.
//
// Grounded on the teacher's v2/server/executor.go (the AgentExecutor
// interface shape — Execute/Cancel against an a2asrv.RequestContext and an
// eventqueue.Queue) and pkg/server/events.go (the artifact id lifecycle:
// open on first chunk, update on each subsequent one, close with
// LastChunk=true on the final one). Re-pointed at message.ExecutionEvent
// instead of the teacher's agent.Event, since this repo's Agent Loop
// already speaks ExecutionEvent natively — no separate event type exists
// to translate from.
package a2aserver

import (
	"context"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/loom/agentloop"
	"github.com/kadirpekel/loom/message"
)

// Runner is the subset of agentloop.Loop the executor depends on: enough
// to drive one task's worth of conversation either streamed through the
// events mode or, when streaming is disabled, to completion in one shot.
type Runner interface {
	StreamEvents(ctx context.Context, thread *message.Thread, opts agentloop.Options) (<-chan message.ExecutionEvent, <-chan agentloop.Final)
	Run(ctx context.Context, thread *message.Thread, opts agentloop.Options) (*message.AgentResult, error)
}

// ThreadForTask resolves the thread an incoming A2A request belongs to —
// either a brand-new one for a first message or the existing one for a
// task continuation — and appends the caller's message to it before the
// executor hands the thread to the Runner.
type ThreadForTask func(ctx context.Context, reqCtx *a2asrv.RequestContext) (*message.Thread, agentloop.Options, error)

// Executor implements a2asrv.AgentExecutor, bridging one Agent Loop to the
// A2A wire protocol (spec.md §6: "produced, surface").
type Executor struct {
	runner   Runner
	resolve  ThreadForTask
	streamed bool // false selects the "streaming-disabled variant" (spec.md §4.7)
}

// Option configures an Executor.
type Option func(*Executor)

// WithStreamingDisabled selects the non-streaming variant: Execute calls
// Run once and emits only the final artifact, per spec.md §4.7's "A
// streaming-disabled variant bypasses this and calls `run` once, emitting
// only the final artifact."
func WithStreamingDisabled() Option {
	return func(e *Executor) { e.streamed = false }
}

// NewExecutor returns an Executor streaming by default.
func NewExecutor(runner Runner, resolve ThreadForTask, opts ...Option) *Executor {
	e := &Executor{runner: runner, resolve: resolve, streamed: true}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

// Execute implements a2asrv.AgentExecutor. It emits a working-status event,
// then drives the loop, translating its event stream (or, in the
// streaming-disabled variant, its single AgentResult) into A2A wire events.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	thread, opts, err := e.resolve(ctx, reqCtx)
	if err != nil {
		return queue.Write(ctx, toFailedStatusEvent(reqCtx, fmt.Errorf("resolve thread: %w", err), nil))
	}

	working := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)
	if err := queue.Write(ctx, working); err != nil {
		return err
	}

	if !e.streamed {
		return e.executeOnce(ctx, reqCtx, thread, opts, queue)
	}
	return e.executeStreamed(ctx, reqCtx, thread, opts, queue)
}

// executeStreamed maps events one-to-one onto A2A wire events, per
// spec.md §4.7: one artifact-update per llm_stream_chunk (append=true,
// lastChunk=false), then a final artifact-update with lastChunk=true on
// llm_response, a completed-status event on execution_complete, a
// failed-status event on execution_error. Non-empty tool_result
// content and tool_error messages are appended to the same artifact as
// text, and model output resumes on it once the next completion call
// begins.
func (e *Executor) executeStreamed(ctx context.Context, reqCtx *a2asrv.RequestContext, thread *message.Thread, opts agentloop.Options, queue eventqueue.Queue) error {
	events, final := e.runner.StreamEvents(ctx, thread, opts)

	p := newArtifactStream(reqCtx)

	for ev := range events {
		wireEv := p.translate(ev)
		if wireEv == nil {
			continue
		}
		if err := queue.Write(ctx, wireEv); err != nil {
			return fmt.Errorf("a2aserver: write event: %w", err)
		}
	}

	f := <-final
	if f.Err != nil {
		return queue.Write(ctx, toFailedStatusEvent(reqCtx, f.Err, nil))
	}
	return nil
}

// executeOnce is the streaming-disabled variant: one Run call, one final
// artifact, one terminal status event.
func (e *Executor) executeOnce(ctx context.Context, reqCtx *a2asrv.RequestContext, thread *message.Thread, opts agentloop.Options, queue eventqueue.Queue) error {
	result, err := e.runner.Run(ctx, thread, opts)
	if err != nil {
		return queue.Write(ctx, toFailedStatusEvent(reqCtx, err, nil))
	}

	art := a2a.NewArtifactEvent(reqCtx, a2a.TextPart{Text: result.Output})
	art.LastChunk = true
	if err := queue.Write(ctx, art); err != nil {
		return err
	}

	state := a2a.TaskStateCompleted
	if !result.Success {
		state = a2a.TaskStateFailed
	}
	done := a2a.NewStatusUpdateEvent(reqCtx, state, nil)
	done.Final = true
	return queue.Write(ctx, done)
}

// Cancel implements a2asrv.AgentExecutor. The Agent Loop has no persistent
// background state to tear down beyond cancelling ctx, which the A2A
// request handler already does; this only needs to report the terminal
// state (spec.md §6: task state "canceled").
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func toFailedStatusEvent(reqCtx *a2asrv.RequestContext, cause error, meta map[string]any) *a2a.TaskStatusUpdateEvent {
	msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: cause.Error()})
	ev := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateFailed, msg)
	ev.Metadata = meta
	ev.Final = true
	return ev
}
