package agentconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromStringDefaults(t *testing.T) {
	cfg, err := LoadConfigFromString(`
name: assistant
model_name: gpt-5
purpose: help the user
`)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxToolIterations)
	assert.Equal(t, "none", cfg.ResponseFormat)
	assert.Equal(t, float64(1), cfg.Retry.BackoffBaseSeconds)
}

func TestLoadConfigFromStringExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_AGENTCONFIG_API_KEY", "sk-real-key")
	cfg, err := LoadConfigFromString(`
name: assistant
model_name: gpt-5
purpose: help the user
api_key: ${TEST_AGENTCONFIG_API_KEY}
`)
	require.NoError(t, err)
	assert.Equal(t, "sk-real-key", cfg.APIKey)
}

func TestLoadConfigFromStringEnvVarDefault(t *testing.T) {
	os.Unsetenv("TEST_AGENTCONFIG_UNSET")
	cfg, err := LoadConfigFromString(`
name: assistant
model_name: gpt-5
purpose: help the user
notes: "${TEST_AGENTCONFIG_UNSET:-fallback value}"
`)
	require.NoError(t, err)
	assert.Equal(t, "fallback value", cfg.Notes)
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg.Name = "assistant"
	assert.Error(t, cfg.Validate())

	cfg.ModelName = "gpt-5"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadResponseFormat(t *testing.T) {
	cfg := &Config{Name: "a", ModelName: "m", ResponseFormat: "xml"}
	assert.Error(t, cfg.Validate())
}

func TestSetDefaultsCapsMaxToolIterations(t *testing.T) {
	cfg := &Config{MaxToolIterations: 999}
	cfg.SetDefaults()
	assert.Equal(t, hardMaxIterations, cfg.MaxToolIterations)
}

func TestMCPServerConfigValidation(t *testing.T) {
	m := MCPServerConfig{Name: "docs", Transport: "stdio"}
	assert.Error(t, m.Validate(), "stdio transport requires a command")

	m.Command = "docs-server"
	assert.NoError(t, m.Validate())

	sse := MCPServerConfig{Name: "remote", Transport: "sse"}
	assert.Error(t, sse.Validate(), "sse transport requires a url")
}
