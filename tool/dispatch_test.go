package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/loom/message"
)

func TestDispatchPreservesCallOrder(t *testing.T) {
	r := NewRegistry(time.Second)
	require.NoError(t, r.Register(Declaration{Name: "slow"}, PlainFunc(func(args map[string]any) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow-done", nil
	})))
	require.NoError(t, r.Register(Declaration{Name: "fast"}, PlainFunc(func(args map[string]any) (string, error) {
		return "fast-done", nil
	})))

	calls := []message.ToolCall{
		{ID: "1", Name: "slow", Arguments: map[string]any{}},
		{ID: "2", Name: "fast", Arguments: map[string]any{}},
	}

	outcomes := Dispatch(context.Background(), r, "inv-1", "thread-1", "agent-1", calls, Options{})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "1", outcomes[0].Call.ID)
	assert.Equal(t, "slow-done", outcomes[0].Result.Content)
	assert.Equal(t, "2", outcomes[1].Call.ID)
	assert.Equal(t, "fast-done", outcomes[1].Result.Content)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(time.Second)
	outcomes := Dispatch(context.Background(), r, "inv-1", "thread-1", "agent-1", []message.ToolCall{
		{ID: "1", Name: "does-not-exist", Arguments: map[string]any{}},
	}, Options{})
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Result.Err)
	assert.Equal(t, ErrorUnknown, outcomes[0].Result.Err.Kind)
}

func TestDispatchTimeout(t *testing.T) {
	r := NewRegistry(time.Second)
	require.NoError(t, r.Register(Declaration{Name: "hang", Timeout: Timeout(10 * time.Millisecond)}, PlainFunc(func(args map[string]any) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "too-late", nil
	})))
	outcomes := Dispatch(context.Background(), r, "inv-1", "thread-1", "agent-1", []message.ToolCall{
		{ID: "1", Name: "hang", Arguments: map[string]any{}},
	}, Options{})
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Result.Err)
	assert.Equal(t, ErrorTimeout, outcomes[0].Result.Err.Kind)
}

func TestDispatchContextualFunc(t *testing.T) {
	r := NewRegistry(time.Second)
	var gotThreadID string
	require.NoError(t, r.Register(Declaration{Name: "ctx-tool"}, ContextualFunc(
		func(ctx context.Context, tc ToolContext, args map[string]any) (string, []message.Attachment, error) {
			gotThreadID = tc.ThreadID
			return "ok", nil, nil
		},
	)))
	outcomes := Dispatch(context.Background(), r, "inv-1", "thread-42", "agent-1", []message.ToolCall{
		{ID: "1", Name: "ctx-tool", Arguments: map[string]any{}},
	}, Options{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "thread-42", gotThreadID)
	assert.Equal(t, "ok", outcomes[0].Result.Content)
}

func TestDispatchMalformedArgumentsDegradeToEmptyMap(t *testing.T) {
	tc := message.NewToolCall("1", "whatever", "not json")
	assert.Equal(t, map[string]any{}, tc.Arguments)
}

func TestRegisterRejectsUnsupportedSignature(t *testing.T) {
	r := NewRegistry(time.Second)
	err := r.Register(Declaration{Name: "bad"}, func() string { return "nope" })
	assert.Error(t, err)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry(time.Second)
	err := r.Register(Declaration{Name: ""}, PlainFunc(func(args map[string]any) (string, error) { return "", nil }))
	assert.Error(t, err)
}
