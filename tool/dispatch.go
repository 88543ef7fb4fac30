package tool

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/loom/message"
)

// Outcome pairs a ToolCall with the Result it produced, so a caller can
// still associate results back to tool_call_id after concurrent dispatch
// reordered completion but not the returned slice.
type Outcome struct {
	Call   message.ToolCall
	Result Result
}

// Options carries the per-batch inputs that aren't part of the ToolCall
// itself: the caller's dependency mapping and a progress callback to
// compose with the MCP adapter's own (spec.md §3's ToolContext).
type Options struct {
	Deps     map[string]any
	Progress ProgressFunc
}

// Dispatch runs every call in calls concurrently against r, one goroutine
// per call via errgroup, and returns results in the same order as calls —
// not completion order. This is the redesign from agent/agent.go's
// sequential executeTools loop that spec.md §4.6 step 5 calls for: a slow
// tool call no longer blocks an independent fast one in the same iteration.
//
// A single call's failure never aborts its siblings: Dispatch always
// returns len(calls) outcomes, and a failing call's Result carries a
// classified *Error instead of propagating up as a Go error.
func Dispatch(ctx context.Context, r *Registry, invocationID, threadID, agentName string, calls []message.ToolCall, opts Options) []Outcome {
	outcomes := make([]Outcome, len(calls))
	for i, c := range calls {
		outcomes[i].Call = c
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			tc := ToolContext{
				ThreadID:     threadID,
				AgentName:    agentName,
				InvocationID: invocationID,
				CallID:       c.ID,
				Deps:         cloneDeps(opts.Deps),
				Progress:     opts.Progress,
			}
			outcomes[i].Result = r.callOne(gctx, c.Name, tc, c.Arguments)
			return nil // never abort siblings; failures are carried in Result
		})
	}
	_ = g.Wait() // g.Go never returns a non-nil error above

	return outcomes
}

// cloneDeps shallow-copies the dependency mapping so sibling tool calls in
// the same batch can't observe each other's mutations to the map itself;
// nested mutable values (e.g. a shared database handle) remain shared by
// design (spec.md §5's documented trade-off).
func cloneDeps(deps map[string]any) map[string]any {
	if deps == nil {
		return nil
	}
	out := make(map[string]any, len(deps))
	for k, v := range deps {
		out[k] = v
	}
	return out
}

// callOne invokes one registered tool with a per-call timeout, classifying
// the outcome per spec.md §4.1's boundary behaviors: unknown tool name,
// context-deadline timeout, or the implementation's own error all degrade
// to a Result carrying a classified *Error rather than a Go error escaping.
func (r *Registry) callOne(ctx context.Context, name string, tc ToolContext, args map[string]any) Result {
	entry, found := r.Get(name)
	if !found {
		return fail(ErrorUnknown, "no tool registered under name %q", name)
	}

	callCtx, cancel := context.WithTimeout(ctx, *entry.Timeout)
	defer cancel()

	type invokeResult struct {
		content     string
		attachments []message.Attachment
		err         error
	}
	done := make(chan invokeResult, 1)

	go func() {
		content, attachments, err := entry.invoke(callCtx, tc, args)
		done <- invokeResult{content: content, attachments: attachments, err: err}
	}()

	select {
	case <-callCtx.Done():
		// Drain done asynchronously so the tool goroutine's send never blocks
		// forever if the implementation eventually does return.
		go func() { <-done }()
		if callCtx.Err() == context.DeadlineExceeded {
			return fail(ErrorTimeout, "tool %q exceeded its timeout of %s", name, *entry.Timeout)
		}
		return fail(ErrorTimeout, "tool %q cancelled: %v", name, callCtx.Err())
	case res := <-done:
		if res.err != nil {
			if ve, isValidation := res.err.(*ValidationError); isValidation {
				return fail(ErrorValidation, "%s", ve.Message)
			}
			return fail(ErrorException, "%v", res.err)
		}
		return ok(res.content, res.attachments)
	}
}
