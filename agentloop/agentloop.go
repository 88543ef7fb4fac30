package agentloop

import (
	"context"

	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/stream"
)

// Run drives the thread to completion with no streaming surface ("none"
// mode, spec.md §4.6's `run` contract).
func (l *Loop) Run(ctx context.Context, thread *message.Thread, opts Options) (*message.AgentResult, error) {
	return l.execute(ctx, thread, opts, false, noopSinks())
}

// StreamEvents drives the thread to completion, emitting one
// ExecutionEvent per state-machine transition ("events" mode, spec.md
// §4.5). The returned channel is closed once the run reaches a terminal
// state; the final AgentResult (or error) arrives on the second channel
// exactly once.
func (l *Loop) StreamEvents(ctx context.Context, thread *message.Thread, opts Options) (<-chan message.ExecutionEvent, <-chan Final) {
	events := make(chan message.ExecutionEvent, 16)
	final := make(chan Final, 1)

	go func() {
		defer close(events)
		defer close(final)
		result, err := l.execute(ctx, thread, opts, true, sinks{
			emit: func(ev message.ExecutionEvent) { events <- ev },
		})
		final <- Final{Result: result, Err: err}
	}()

	return events, final
}

// StreamRaw drives the thread to completion, yielding every provider
// ChunkDelta unmodified as it streams ("raw"/"openai" mode, spec.md §4.5).
// Tool-dispatch activity between completion calls produces no values on
// this channel; it resumes once the next completion call begins streaming.
func (l *Loop) StreamRaw(ctx context.Context, thread *message.Thread, opts Options) (<-chan llm.ChunkDelta, <-chan Final) {
	chunks := make(chan llm.ChunkDelta, 16)
	final := make(chan Final, 1)

	go func() {
		defer close(chunks)
		defer close(final)
		result, err := l.execute(ctx, thread, opts, true, sinks{
			chunk: func(c llm.ChunkDelta) { chunks <- c },
		})
		final <- Final{Result: result, Err: err}
	}()

	return chunks, final
}

// StreamVercel drives the thread to completion, yielding Vercel AI SDK Data
// Stream Protocol SSE frames ("vercel" mode, spec.md §4.5), composed
// internally on top of the events mode's ExecutionEvent sequence.
func (l *Loop) StreamVercel(ctx context.Context, thread *message.Thread, opts Options, messageID string) (<-chan string, <-chan Final) {
	frames := make(chan string, 16)
	final := make(chan Final, 1)

	go func() {
		defer close(frames)
		defer close(final)
		enc := stream.NewVercelEncoder(messageID)
		frames <- enc.Start()
		result, err := l.execute(ctx, thread, opts, true, sinks{
			emit: func(ev message.ExecutionEvent) {
				if f := enc.Encode(ev); f != "" {
					frames <- f
				}
			},
		})
		final <- Final{Result: result, Err: err}
	}()

	return frames, final
}

// Final carries a streaming run's terminal AgentResult or error, sent
// exactly once on a one-slot buffered channel, just before the
// corresponding data channel closes.
type Final struct {
	Result *message.AgentResult
	Err    error
}
