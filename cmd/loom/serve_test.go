package main

import (
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/loom/agentconfig"
)

func TestExtractTextJoinsParts(t *testing.T) {
	msg := &a2a.Message{Parts: []a2a.Part{
		a2a.TextPart{Text: "hello"},
		a2a.TextPart{Text: "world"},
	}}
	assert.Equal(t, "hello\nworld", extractText(msg))
}

func TestExtractTextIgnoresNonTextParts(t *testing.T) {
	msg := &a2a.Message{Parts: []a2a.Part{
		a2a.DataPart{Data: map[string]any{"k": "v"}},
		a2a.TextPart{Text: "only this"},
	}}
	assert.Equal(t, "only this", extractText(msg))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "fallback", orDefault("", "fallback"))
	assert.Equal(t, "set", orDefault("set", "fallback"))
}

func TestBuildAgentCard(t *testing.T) {
	cfg := &agentconfig.Config{Name: "helper", Purpose: "answers questions"}
	card := buildAgentCard(cfg, "http://localhost:8080")

	assert.Equal(t, "helper", card.Name)
	assert.Equal(t, "http://localhost:8080/a2a", card.URL)
	assert.Equal(t, "0.1.0", card.Version)
	assert.True(t, card.Capabilities.Streaming)
	assert.Len(t, card.Skills, 1)
}
