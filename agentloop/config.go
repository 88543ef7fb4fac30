// Package agentloop is the Agent Loop (spec.md §4.6): the state machine
// that drives a Thread from its current state to a terminal one, composing
// requests to a Completion Handler, dispatching tool calls, and handling
// structured-output validation and interrupt-typed tools.
//
// Grounded on the teacher's agent/agent.go execute() method for the overall
// iterate-until-done shape (request, accumulate, dispatch tools, repeat),
// redesigned per DESIGN.md: tool dispatch goes through tool.Dispatch instead
// of a sequential loop, and the four stream surfaces share one internal
// core instead of four bespoke generator methods.
package agentloop

import (
	"time"

	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/tool"
)

// RetryConfig bounds structured-output validation retry, per spec.md §6's
// agent configuration retry_config field.
type RetryConfig struct {
	MaxRetries         int
	BackoffBaseSeconds float64
}

// DefaultRetryConfig matches spec.md §6's defaults: no retries unless the
// caller opts in.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 0, BackoffBaseSeconds: 1}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	return time.Duration(c.BackoffBaseSeconds * float64(attempt) * float64(time.Second))
}

// PromptComposer builds a system prompt from the currently registered tool
// set. The Prompt Composer component (spec.md §4.4's sibling, package
// prompt) implements this; agentloop depends only on the interface so it
// never imports prompt directly.
type PromptComposer interface {
	Compose(tools []tool.Declaration) (string, error)
}

// ThreadStore is the subset of the storage interface (spec.md §6, package
// store) the Agent Loop needs: a place to save a thread's current state at
// iteration checkpoints (spec.md §4.6 step 3, "if persistence is
// configured, save the thread"). Loop depends only on this interface, not
// on package store directly, so a caller's own store implementation works
// without it satisfying anything beyond Save.
type ThreadStore interface {
	Save(thread *message.Thread) error
}

// Options carries the per-run inputs to Run and the Stream* methods beyond
// the thread itself.
type Options struct {
	Prompt      PromptComposer
	ResponseType any // pointer to a zero value of the target struct type
	RetryConfig RetryConfig

	Deps     map[string]any
	Progress tool.ProgressFunc

	MaxIterations int // 0 means Loop.MaxIterations
}
