package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/loom/factory"
	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/stream"
	"github.com/kadirpekel/loom/tool"
)

// Loop is one agent's static configuration: the Completion Handler, the
// Tool Runner registry it dispatches against, and the request defaults
// applied to every call (spec.md §6's agent configuration record, minus
// the fields owned by config ingestion rather than execution).
type Loop struct {
	Provider llm.Provider
	Registry *tool.Registry
	Factory  *factory.Factory

	Model             string
	Temperature       float64
	MaxTokens         int
	Reasoning         *llm.ReasoningConfig
	RequireJSONOutput bool
	APIBase           string
	APIKey            string
	ExtraHeaders      map[string]string
	DropParams        bool

	// MaxIterations is the hard upper bound enforced regardless of what an
	// individual run's Options requests (spec.md §6: "upper bound enforced").
	MaxIterations int

	Persist ThreadStore
}

const hardMaxIterations = 10

// New returns a Loop with spec.md §6's default MaxIterations (10) and
// DropParams (true).
func New(provider llm.Provider, registry *tool.Registry, f *factory.Factory) *Loop {
	return &Loop{
		Provider:      provider,
		Registry:      registry,
		Factory:       f,
		MaxIterations: hardMaxIterations,
		DropParams:    true,
	}
}

func (l *Loop) maxIterations(opts Options) int {
	iterCap := l.MaxIterations
	if iterCap <= 0 || iterCap > hardMaxIterations {
		iterCap = hardMaxIterations
	}
	if opts.MaxIterations > 0 && opts.MaxIterations < iterCap {
		iterCap = opts.MaxIterations
	}
	return iterCap
}

// sinks bundles the two callbacks the internal core reports through: emit
// for typed events (events/vercel modes) and chunk for raw provider deltas
// (raw mode). Either may be nil; Run uses neither.
type sinks struct {
	emit  func(message.ExecutionEvent)
	chunk func(llm.ChunkDelta)
}

func noopSinks() sinks { return sinks{} }

func (s sinks) emitEvent(t message.EventType, data map[string]any) {
	if s.emit != nil {
		s.emit(message.NewEvent(t, data))
	}
}

// execute drives the state machine in spec.md §4.5/§4.6 to termination,
// streaming when s.chunk or s.emit is set to a meaningful sink (the caller
// decides by whether it wants per-chunk reporting at all; Run passes
// streaming=false to always use the non-streaming Complete call).
func (l *Loop) execute(ctx context.Context, thread *message.Thread, opts Options, streaming bool, s sinks) (*message.AgentResult, error) {
	if opts.RetryConfig == (RetryConfig{}) {
		opts.RetryConfig = DefaultRetryConfig()
	}

	if err := l.ensureSystemPrompt(thread, opts); err != nil {
		return nil, err
	}

	var capture *outputCapture
	if opts.ResponseType != nil {
		c, release, err := registerOutputTool(l.Registry, opts.ResponseType)
		if err != nil {
			return nil, err
		}
		capture = c
		defer release()
	}

	result := &message.AgentResult{Thread: thread}

	if thread.IsTerminal() {
		last, _ := thread.LastAssistantMessage()
		result.Success = true
		result.Output = last.Content
		s.emitEvent(message.EventExecutionDone, map[string]any{"finish_reason": "stop"})
		return result, nil
	}

	iterCap := l.maxIterations(opts)
	retryAttempt := 0

	for iteration := 1; ; iteration++ {
		s.emitEvent(message.EventIterationStart, map[string]any{"iteration": iteration})

		req := l.buildRequest(thread, opts)

		assistantMsg, err := l.requestOnce(ctx, req, streaming, s)
		if err != nil {
			errMsg := l.Factory.Error(err.Error(), true, "")
			if addErr := thread.Add(errMsg); addErr != nil {
				return nil, fmt.Errorf("agentloop: append error message: %w", addErr)
			}
			result.NewMessages = append(result.NewMessages, errMsg)
			s.emitEvent(message.EventMessageCreated, map[string]any{"role": "assistant", "id": errMsg.ID})
			s.emitEvent(message.EventExecutionError, map[string]any{"message": err.Error()})
			result.Success = false
			result.Output = errMsg.Content
			return result, nil
		}

		if err := thread.Add(assistantMsg); err != nil {
			return nil, fmt.Errorf("agentloop: append assistant message: %w", err)
		}
		l.persist(thread)
		s.emitEvent(message.EventMessageCreated, map[string]any{"role": "assistant", "id": assistantMsg.ID})
		result.NewMessages = append(result.NewMessages, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			result.Success = true
			result.Output = assistantMsg.Content
			s.emitEvent(message.EventExecutionDone, map[string]any{"finish_reason": "stop"})
			return result, nil
		}

		outcomes, interrupted, err := l.dispatchAndAppend(ctx, thread, assistantMsg, opts, s, result)
		if err != nil {
			return nil, err
		}

		if capture != nil {
			if args, got := capturedStructuredCall(outcomes, capture); got {
				value, errs := decodeStructured(opts.ResponseType, args, capture.required)
				if len(errs) == 0 {
					result.Success = true
					result.StructuredData = value
					result.ValidationRetries = retryAttempt
					s.emitEvent(message.EventExecutionDone, map[string]any{"finish_reason": "stop"})
					return result, nil
				}
				retryAttempt++
				result.RetryHistory = append(result.RetryHistory, message.RetryAttempt{Attempt: retryAttempt, Errors: errs})
				if retryAttempt > opts.RetryConfig.MaxRetries {
					return nil, &StructuredOutputError{LastResponse: assistantMsg, Errors: errs}
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(opts.RetryConfig.backoff(retryAttempt)):
				}
				notice := l.Factory.User(validationNotice(errs), "structured-output")
				if err := thread.Add(notice); err != nil {
					return nil, fmt.Errorf("agentloop: append validation notice: %w", err)
				}
				result.NewMessages = append(result.NewMessages, notice)
				s.emitEvent(message.EventMessageCreated, map[string]any{"role": "user", "id": notice.ID})
				continue
			}
		}

		if interrupted {
			result.Success = true
			result.Output = assistantMsg.Content
			s.emitEvent(message.EventExecutionDone, map[string]any{"finish_reason": "tool-calls"})
			return result, nil
		}

		if iteration >= iterCap {
			maxMsg := l.Factory.MaxIterations(iterCap)
			if err := thread.Add(maxMsg); err != nil {
				return nil, fmt.Errorf("agentloop: append max-iterations message: %w", err)
			}
			result.NewMessages = append(result.NewMessages, maxMsg)
			s.emitEvent(message.EventMessageCreated, map[string]any{"role": "assistant", "id": maxMsg.ID})
			s.emitEvent(message.EventIterationLimit, map[string]any{"max_iterations": iterCap})
			result.Success = false
			result.Output = maxMsg.Content
			s.emitEvent(message.EventExecutionDone, map[string]any{"finish_reason": "length"})
			return result, nil
		}
	}
}

func (l *Loop) ensureSystemPrompt(thread *message.Thread, opts Options) error {
	if opts.Prompt == nil || thread.Len() > 0 {
		return nil
	}
	content, err := opts.Prompt.Compose(l.Registry.Declarations())
	if err != nil {
		return fmt.Errorf("agentloop: compose system prompt: %w", err)
	}
	if content == "" {
		return nil
	}
	return thread.Add(l.Factory.System(content, ""))
}

func (l *Loop) buildRequest(thread *message.Thread, opts Options) llm.Request {
	return llm.Request{
		Model:             l.Model,
		Messages:          toWireMessages(thread.Messages()),
		Tools:             toWireTools(l.Registry.Declarations()),
		Temperature:       l.Temperature,
		Reasoning:         l.Reasoning,
		RequireJSONOutput: l.RequireJSONOutput,
		MaxTokens:         l.MaxTokens,
		APIBase:           l.APIBase,
		APIKey:            l.APIKey,
		ExtraHeaders:      l.ExtraHeaders,
		DropParams:        l.DropParams,
	}
}

// requestOnce performs step 2-3 of spec.md §4.6: one completion call,
// accumulated into a single assistant message regardless of whether it was
// streamed.
func (l *Loop) requestOnce(ctx context.Context, req llm.Request, streaming bool, s sinks) (message.Message, error) {
	started := factory.StartTiming()
	s.emitEvent(message.EventLLMRequest, map[string]any{"model": req.Model})

	if !streaming {
		resp, err := l.Provider.Complete(ctx, req)
		if err != nil {
			return message.Message{}, &llm.ProviderError{Provider: l.Provider.Name(), Err: err}
		}
		metrics := message.NewMetrics(started)
		metrics.PromptTokens = resp.Usage.PromptTokens
		metrics.OutputTokens = resp.Usage.CompletionTokens
		metrics.TotalTokens = resp.Usage.TotalTokens
		msg := l.Factory.Assistant(resp.Content, resp.Reasoning, wireToolCallsToMessage(resp.ToolCalls), metrics)
		s.emitEvent(message.EventLLMResponse, map[string]any{"content": resp.Content})
		return msg, nil
	}

	chunks, err := l.Provider.Stream(ctx, req)
	if err != nil {
		return message.Message{}, &llm.ProviderError{Provider: l.Provider.Name(), Err: err}
	}

	acc := stream.NewAccumulator()
	for chunk := range chunks {
		acc.Apply(chunk)
		if s.chunk != nil {
			s.chunk(chunk)
		}
		switch {
		case chunk.Reasoning != "":
			s.emitEvent(message.EventLLMThinking, map[string]any{"delta": chunk.Reasoning})
		case chunk.Content != "":
			s.emitEvent(message.EventLLMStreamChunk, map[string]any{"delta": chunk.Content})
		}
	}

	content, reasoning, calls, usage := acc.Finalize()
	metrics := message.NewMetrics(started)
	metrics.PromptTokens = usage.PromptTokens
	metrics.OutputTokens = usage.CompletionTokens
	metrics.TotalTokens = usage.TotalTokens
	msg := l.Factory.Assistant(content, reasoning, calls, metrics)
	s.emitEvent(message.EventLLMResponse, map[string]any{"content": content})
	return msg, nil
}

// dispatchAndAppend runs spec.md §4.6 step 5: concurrent dispatch, then
// deterministic in-order append of the resulting tool messages. Returns
// whether an interrupt-typed tool completed successfully.
func (l *Loop) dispatchAndAppend(ctx context.Context, thread *message.Thread, assistantMsg message.Message, opts Options, s sinks, result *message.AgentResult) ([]tool.Outcome, bool, error) {
	for _, c := range assistantMsg.ToolCalls {
		s.emitEvent(message.EventToolSelected, map[string]any{"call_id": c.ID, "name": c.Name, "arguments": c.Arguments})
	}

	progress := opts.Progress
	if s.emit != nil {
		progress = tool.ComposeProgress(progress, func(p float64, total *float64, msg string) {
			s.emitEvent(message.EventToolProgress, map[string]any{"progress": p, "total": total, "message": msg})
		})
	}

	outcomes := tool.Dispatch(ctx, l.Registry, assistantMsg.ID, thread.ID, l.Factory.AgentName, assistantMsg.ToolCalls, tool.Options{
		Deps:     opts.Deps,
		Progress: progress,
	})

	interrupted := false
	for _, o := range outcomes {
		started := factory.StartTiming()
		var toolMsg message.Message
		if o.Result.Err != nil {
			toolMsg = l.Factory.Tool(o.Call.Name, o.Result.Err.Message, o.Call.ID, nil, message.NewMetrics(started))
			if err := thread.Add(toolMsg); err != nil {
				return nil, false, fmt.Errorf("agentloop: append tool-error message: %w", err)
			}
			s.emitEvent(message.EventMessageCreated, map[string]any{"role": "tool", "id": toolMsg.ID})
			s.emitEvent(message.EventToolError, map[string]any{"call_id": o.Call.ID, "message": o.Result.Err.Message, "kind": string(o.Result.Err.Kind)})
		} else {
			toolMsg = l.Factory.Tool(o.Call.Name, o.Result.Content, o.Call.ID, o.Result.Attachments, message.NewMetrics(started))
			if err := thread.Add(toolMsg); err != nil {
				return nil, false, fmt.Errorf("agentloop: append tool message: %w", err)
			}
			s.emitEvent(message.EventMessageCreated, map[string]any{"role": "tool", "id": toolMsg.ID})
			s.emitEvent(message.EventToolResult, map[string]any{"call_id": o.Call.ID, "content": o.Result.Content})
			if decl, ok := l.Registry.Get(o.Call.Name); ok && decl.Interrupt {
				interrupted = true
			}
		}
		result.NewMessages = append(result.NewMessages, toolMsg)
	}
	l.persist(thread)

	return outcomes, interrupted, nil
}

func (l *Loop) persist(thread *message.Thread) {
	if l.Persist == nil {
		return
	}
	_ = l.Persist.Save(thread)
}

func capturedStructuredCall(outcomes []tool.Outcome, capture *outputCapture) (map[string]any, bool) {
	for _, o := range outcomes {
		if o.Call.Name == outputToolName && o.Result.Err == nil {
			return capture.take()
		}
	}
	return nil, false
}

func validationNotice(errs []string) string {
	msg := "Your structured output did not validate:"
	for _, e := range errs {
		msg += "\n- " + e
	}
	msg += "\nPlease call " + outputToolName + " again with corrected arguments."
	return msg
}

// StructuredOutputError is raised when structured-output validation retry
// is exhausted (spec.md §7, "raised as a structured-output error carrying
// the last response and the validation error list").
type StructuredOutputError struct {
	LastResponse message.Message
	Errors       []string
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("agentloop: structured output validation failed after retries: %v", e.Errors)
}
