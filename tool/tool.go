// Package tool is the Tool Runner (spec.md §4.1): a registry of callable
// tools plus a dispatcher that executes one iteration's tool calls in
// parallel while preserving call order in the results.
//
// Grounded on tools/registry.go's ToolRegistry/ToolRegistryError shape,
// redesigned so that executing a batch of calls runs them concurrently
// instead of agent/agent.go's executeTools loop (which ran one call at a
// time — see DESIGN.md's grounding ledger for the redesign rationale).
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/loom/message"
)

// ErrorKind classifies why a tool call failed, per spec.md §4.1's boundary
// behaviors.
type ErrorKind string

const (
	ErrorException ErrorKind = "exception" // the tool implementation returned an error
	ErrorTimeout    ErrorKind = "timeout"    // the call did not finish within its timeout
	ErrorUnknown    ErrorKind = "unknown"    // no tool registered under the called name
	ErrorValidation ErrorKind = "validation" // arguments failed schema/type decoding
)

// Error is a tool-call failure with a classification, distinct from a Go
// error so callers (the Agent Loop, the stream modes) can branch on kind
// without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Result is what one tool call produces: either content (with optional
// attachments) or a classified error, never both.
type Result struct {
	Content     string
	Attachments []message.Attachment
	Err         *Error
}

func ok(content string, attachments []message.Attachment) Result {
	return Result{Content: content, Attachments: attachments}
}

func fail(kind ErrorKind, format string, args ...any) Result {
	return Result{Err: &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// ProgressFunc reports partial progress during a long-running tool call:
// a progress value, an optional total, and a human-readable message.
type ProgressFunc func(progress float64, total *float64, msg string)

// ComposeProgress merges two ProgressFuncs into one that best-effort calls
// both, per spec.md §3's "two progress callbacks" contract: a panicking
// callback never prevents the other from being called, and never
// propagates to the tool implementation.
func ComposeProgress(a, b ProgressFunc) ProgressFunc {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(progress float64, total *float64, msg string) {
		safeCall(func() { a(progress, total, msg) })
		safeCall(func() { b(progress, total, msg) })
	}
}

func safeCall(f func()) {
	defer func() { _ = recover() }()
	f()
}

// ToolContext is injected into a ContextualFunc implementation: metadata
// about the run a tool is executing under, the caller's dependency
// mapping (shallow-copied per call so sibling tools in a batch can't step
// on each other's mutations), and an optional composed progress callback.
// A tool whose first parameter is named `ctx`/`context` in spirit receives
// this via the ContextualFunc shape; PlainFunc tools never see it.
type ToolContext struct {
	ThreadID     string
	AgentName    string
	InvocationID string
	CallID       string
	Deps         map[string]any
	Progress     ProgressFunc
}

// Timeout returns a pointer to d, for populating Declaration.Timeout inline
// (e.g. tool.Declaration{Timeout: tool.Timeout(5 * time.Second)}).
func Timeout(d time.Duration) *time.Duration { return &d }

// PlainFunc is the simplest tool shape: arguments in, content or error out.
// Most local tools (search, file read/write, shell command) are this shape.
type PlainFunc func(args map[string]any) (string, error)

// ContextualFunc is the shape for tools that need to know what thread/agent
// they're running under, or that can return attachments (e.g. a document
// reader returning the rendered text plus the original bytes).
type ContextualFunc func(ctx context.Context, tc ToolContext, args map[string]any) (string, []message.Attachment, error)

// Declaration is a tool's schema, independent of its implementation shape.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema, as sent to the provider

	// Timeout is the per-tool call timeout. nil means absent — the
	// Registry's DefaultTimeout applies. A non-nil zero or negative value is
	// a caller mistake and is rejected at Register (spec.md §4.1/§8: "zero
	// and negative rejected at registration").
	Timeout *time.Duration

	// Source identifies where this tool came from: "local", "mcp", "a2a",
	// "skills", or "structured-output" (spec.md §3's tool registration
	// entry attributes).
	Source string
	Tags   []string

	// Interrupt, when true, means the Agent Loop terminates after this
	// tool returns successfully (spec.md's interrupt-typed tool).
	Interrupt bool
}

// Entry is a registered tool: its declaration plus a normalized invoker.
// The Kind field records which signature the implementation was registered
// with, purely for introspection (e.g. diagnostics, ListTools output).
type Entry struct {
	Declaration
	Kind string // "plain" or "contextual"

	invoke func(ctx context.Context, tc ToolContext, args map[string]any) (string, []message.Attachment, error)
}

// newEntry inspects impl's concrete type to decide how to invoke it —
// the "signature inspection" spec.md §4.1 calls for, so a tool author
// writes the narrowest signature their tool needs and the runner adapts it
// uniformly, without making every tool take a ToolContext it never reads.
func newEntry(decl Declaration, impl any) (Entry, error) {
	e := Entry{Declaration: decl}
	switch fn := impl.(type) {
	case PlainFunc:
		e.Kind = "plain"
		e.invoke = func(_ context.Context, _ ToolContext, args map[string]any) (string, []message.Attachment, error) {
			content, err := fn(args)
			return content, nil, err
		}
	case func(map[string]any) (string, error):
		e.Kind = "plain"
		pf := PlainFunc(fn)
		e.invoke = func(_ context.Context, _ ToolContext, args map[string]any) (string, []message.Attachment, error) {
			content, err := pf(args)
			return content, nil, err
		}
	case ContextualFunc:
		e.Kind = "contextual"
		e.invoke = fn
	case func(context.Context, ToolContext, map[string]any) (string, []message.Attachment, error):
		e.Kind = "contextual"
		e.invoke = ContextualFunc(fn)
	default:
		return Entry{}, fmt.Errorf("tool: %q registered with unsupported implementation signature %T", decl.Name, impl)
	}
	return e, nil
}
