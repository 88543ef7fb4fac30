package a2aserver

import (
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/loom/message"
)

func testReqCtx() *a2asrv.RequestContext {
	return &a2asrv.RequestContext{TaskID: a2a.TaskID("task-1"), ContextID: "ctx-1"}
}

func TestArtifactStreamOpensOnFirstChunk(t *testing.T) {
	p := newArtifactStream(testReqCtx())

	ev := p.translate(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "hel"}))
	require.NotNil(t, ev)
	art, ok := ev.(*a2a.TaskArtifactUpdateEvent)
	require.True(t, ok)
	assert.False(t, art.LastChunk)
	assert.True(t, p.opened)

	second := p.translate(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "lo"}))
	require.NotNil(t, second)
	art2, ok := second.(*a2a.TaskArtifactUpdateEvent)
	require.True(t, ok)
	assert.True(t, art2.Append)
	assert.Equal(t, p.artifactID, art2.Artifact.ID)
}

func TestArtifactStreamFinalChunkMarksLastChunk(t *testing.T) {
	p := newArtifactStream(testReqCtx())
	p.translate(message.NewEvent(message.EventLLMStreamChunk, map[string]any{"delta": "hi"}))

	ev := p.translate(message.NewEvent(message.EventLLMResponse, map[string]any{"content": "hi there"}))
	require.NotNil(t, ev)
	art, ok := ev.(*a2a.TaskArtifactUpdateEvent)
	require.True(t, ok)
	assert.True(t, art.LastChunk)
}

func TestArtifactStreamExecutionDoneIsTerminal(t *testing.T) {
	p := newArtifactStream(testReqCtx())

	ev := p.translate(message.NewEvent(message.EventExecutionDone, nil))
	require.NotNil(t, ev)
	status, ok := ev.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, status.Final)
}

func TestArtifactStreamExecutionErrorFails(t *testing.T) {
	p := newArtifactStream(testReqCtx())

	ev := p.translate(message.NewEvent(message.EventExecutionError, map[string]any{"message": "boom"}))
	require.NotNil(t, ev)
	status, ok := ev.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, status.Final)
}

func TestArtifactStreamEmptyToolResultIgnored(t *testing.T) {
	p := newArtifactStream(testReqCtx())
	ev := p.translate(message.NewEvent(message.EventToolResult, map[string]any{"content": ""}))
	assert.Nil(t, ev)
}

func TestArtifactStreamIterationStartIgnored(t *testing.T) {
	p := newArtifactStream(testReqCtx())
	ev := p.translate(message.NewEvent(message.EventIterationStart, nil))
	assert.Nil(t, ev)
}
