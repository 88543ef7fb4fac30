package agentloop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/loom/factory"
	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/tool"
)

// scriptedProvider replays a fixed sequence of Complete responses, one per
// call, so a test can script a whole multi-iteration conversation.
type scriptedProvider struct {
	responses []llm.Response
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if p.calls >= len(p.responses) {
		return &llm.Response{Content: "done"}, nil
	}
	r := p.responses[p.calls]
	p.calls++
	return &r, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.ChunkDelta, error) {
	resp, _ := p.Complete(ctx, req)
	ch := make(chan llm.ChunkDelta, 1+len(resp.ToolCalls))
	go func() {
		defer close(ch)
		for i, tc := range resp.ToolCalls {
			ch <- llm.ChunkDelta{ToolCallDelta: &llm.ToolCallDelta{Index: i, ID: tc.ID, Name: tc.Name, ArgumentsFragment: tc.Arguments}}
		}
		ch <- llm.ChunkDelta{Content: resp.Content, Done: true}
	}()
	return ch, nil
}

func newTestLoop(provider llm.Provider) (*Loop, *tool.Registry) {
	r := tool.NewRegistry(time.Second)
	l := New(provider, r, factory.New("test-agent", "test-model"))
	return l, r
}

func TestRunTerminatesWithNoToolCalls(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{{Content: "hello there"}}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))

	result, err := l.Run(context.Background(), thread, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello there", result.Output)
	assert.Equal(t, 2, thread.Len()) // user + assistant
}

func TestRunDispatchesToolsAndAppendsInOrder(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{
		{Content: "", ToolCalls: []llm.ToolCallWire{
			{ID: "1", Name: "slow", Arguments: "{}"},
			{ID: "2", Name: "fast", Arguments: "{}"},
		}},
		{Content: "final answer"},
	}}
	l, r := newTestLoop(p)
	require.NoError(t, r.Register(tool.Declaration{Name: "slow"}, tool.PlainFunc(func(args map[string]any) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "slow-done", nil
	})))
	require.NoError(t, r.Register(tool.Declaration{Name: "fast"}, tool.PlainFunc(func(args map[string]any) (string, error) {
		return "fast-done", nil
	})))

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "go"}))

	result, err := l.Run(context.Background(), thread, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "final answer", result.Output)

	msgs := thread.Messages()
	require.Len(t, msgs, 5) // user, assistant(tool calls), tool(slow), tool(fast), assistant(final)
	assert.Equal(t, "slow", msgs[2].ToolName)
	assert.Equal(t, "fast", msgs[3].ToolName)
}

func TestRunHitsIterationCap(t *testing.T) {
	p := &scriptedProvider{}
	// Every response carries a tool call, forcing the loop to iterate until
	// the cap rather than terminate naturally.
	for i := 0; i < 20; i++ {
		p.responses = append(p.responses, llm.Response{
			ToolCalls: []llm.ToolCallWire{{ID: fmt.Sprintf("x%d", i), Name: "noop", Arguments: "{}"}},
		})
	}
	l, r := newTestLoop(p)
	require.NoError(t, r.Register(tool.Declaration{Name: "noop"}, tool.PlainFunc(func(args map[string]any) (string, error) {
		return "ok", nil
	})))
	l.MaxIterations = 3

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "go"}))

	result, err := l.Run(context.Background(), thread, Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Output, "maximum number of tool iterations")
}

func TestRunOnProviderErrorMarksUnsuccessful(t *testing.T) {
	l, _ := newTestLoop(&erroringProvider{})

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))

	result, err := l.Run(context.Background(), thread, Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Output, "I encountered an error")
}

type erroringProvider struct{}

func (erroringProvider) Name() string { return "erroring" }
func (erroringProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return nil, assertError{}
}
func (erroringProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.ChunkDelta, error) {
	return nil, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "provider unavailable" }

func TestRunAgainstTerminalThreadIsNoOp(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{{Content: "a fresh reply"}}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))
	require.NoError(t, thread.Add(message.Message{Role: message.RoleAssistant, Content: "already done"}))
	require.True(t, thread.IsTerminal())

	result, err := l.Run(context.Background(), thread, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "already done", result.Output)
	assert.Empty(t, result.NewMessages)
	assert.Equal(t, 0, p.calls)
	assert.Equal(t, 2, thread.Len())
}

type structuredAnswer struct {
	Answer string `json:"answer"`
}

func TestStructuredOutputSuccess(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallWire{{ID: "1", Name: outputToolName, Arguments: `{"answer":"42"}`}}},
	}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "what is the answer"}))

	result, err := l.Run(context.Background(), thread, Options{ResponseType: &structuredAnswer{}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	got, ok := result.StructuredData.(*structuredAnswer)
	require.True(t, ok)
	assert.Equal(t, "42", got.Answer)
}

func TestStructuredOutputExhaustsRetries(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallWire{{ID: "1", Name: outputToolName, Arguments: `{"wrong_field":"x"}`}}},
	}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "go"}))

	_, err := l.Run(context.Background(), thread, Options{
		ResponseType: &structuredAnswer{},
		RetryConfig:  RetryConfig{MaxRetries: 0, BackoffBaseSeconds: 0},
	})
	require.Error(t, err)
	var soErr *StructuredOutputError
	require.ErrorAs(t, err, &soErr)
}

type invoice struct {
	InvoiceID string   `json:"invoice_id"`
	Total     float64  `json:"total"`
	Items     []string `json:"items"`
	Paid      bool     `json:"paid"`
}

// TestStructuredOutputRetriesOnMissingFieldsThenSucceeds is spec.md §8's
// end-to-end scenario 4 verbatim: a first output-tool call missing fields
// retries once, and the eventual successful call reports
// validation_retries == 1 with one retry-history entry.
func TestStructuredOutputRetriesOnMissingFieldsThenSucceeds(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallWire{{ID: "1", Name: outputToolName, Arguments: `{"invoice_id":"INV-001"}`}}},
		{ToolCalls: []llm.ToolCallWire{{ID: "2", Name: outputToolName, Arguments: `{"invoice_id":"INV-001","total":42.5,"items":["widget"],"paid":true}`}}},
	}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "send the invoice"}))

	result, err := l.Run(context.Background(), thread, Options{
		ResponseType: &invoice{},
		RetryConfig:  RetryConfig{MaxRetries: 2, BackoffBaseSeconds: 0.01},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	got, ok := result.StructuredData.(*invoice)
	require.True(t, ok)
	assert.Equal(t, "INV-001", got.InvoiceID)
	assert.Equal(t, 1, result.ValidationRetries)
	require.Len(t, result.RetryHistory, 1)

	// The validation notice must actually land in the thread as a user
	// message (Thread.Add rejects a second system message, since the
	// thread already carries the user message plus the first attempt's
	// assistant/tool messages by the time the retry notice is built).
	var notices []message.Message
	for _, m := range thread.Messages() {
		if m.Role == message.RoleUser && m.Content != "send the invoice" {
			notices = append(notices, m)
		}
	}
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Content, "did not validate")
}

func TestStreamEventsEmitsExpectedSequence(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{{Content: "hi there"}}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))

	events, final := l.StreamEvents(context.Background(), thread, Options{})
	var types []message.EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	f := <-final
	require.NoError(t, f.Err)
	assert.True(t, f.Result.Success)
	assert.Contains(t, types, message.EventIterationStart)
	assert.Contains(t, types, message.EventLLMRequest)
	assert.Contains(t, types, message.EventMessageCreated)
	assert.Contains(t, types, message.EventExecutionDone)
}

func TestStreamEventsEmitsMessageCreatedForToolMessages(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallWire{{ID: "1", Name: "noop", Arguments: "{}"}}},
		{Content: "done"},
	}}
	l, r := newTestLoop(p)
	require.NoError(t, r.Register(tool.Declaration{Name: "noop"}, tool.PlainFunc(func(args map[string]any) (string, error) {
		return "ok", nil
	})))

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "go"}))

	events, final := l.StreamEvents(context.Background(), thread, Options{})
	createdRoles := map[string]int{}
	for ev := range events {
		if ev.Type == message.EventMessageCreated {
			role, _ := ev.Data["role"].(string)
			createdRoles[role]++
		}
	}
	f := <-final
	require.NoError(t, f.Err)
	assert.True(t, f.Result.Success)
	assert.Equal(t, 2, createdRoles["assistant"]) // tool-call turn + final answer
	assert.Equal(t, 1, createdRoles["tool"])
}

func TestStreamRawYieldsChunks(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{{Content: "streamed"}}}
	l, _ := newTestLoop(p)

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))

	chunks, final := l.StreamRaw(context.Background(), thread, Options{})
	var total string
	for c := range chunks {
		total += c.Content
	}
	f := <-final
	require.NoError(t, f.Err)
	assert.Equal(t, "streamed", total)
}

func TestInterruptToolTerminatesLoop(t *testing.T) {
	p := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallWire{{ID: "1", Name: "stop", Arguments: "{}"}}},
		{Content: "should never be reached"},
	}}
	l, r := newTestLoop(p)
	require.NoError(t, r.Register(tool.Declaration{Name: "stop", Interrupt: true}, tool.PlainFunc(func(args map[string]any) (string, error) {
		return "stopped", nil
	})))

	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "go"}))

	result, err := l.Run(context.Background(), thread, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, p.calls)
}
