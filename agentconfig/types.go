// Package agentconfig is the Agent configuration ingestion surface (spec.md
// §6): a YAML record with environment-variable interpolation that
// Validate()s and SetDefaults()s per sub-type the way the teacher's
// config/config.go and config/types.go do, then Build()s the wired runtime
// (agentloop.Loop, prompt.Composer, registered tools) a caller runs.
//
// Grounded on config/types.go's per-type Validate/SetDefaults convention and
// config/config.go's top-level Config.Validate/SetDefaults delegation.
package agentconfig

import (
	"fmt"
	"time"
)

// Config is spec.md §6's agent configuration record.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`

	ModelName   string  `yaml:"model_name"`
	Purpose     string  `yaml:"purpose"`
	Notes       string  `yaml:"notes,omitempty"`
	Temperature float64 `yaml:"temperature"`

	// Provider selects the Completion Handler implementation ("openai",
	// "anthropic", "ollama"), defaulting to "openai". Not named in spec.md's
	// field list directly — api_base/api_key are, which only resolve to a
	// concrete llm.Provider once something picks which wire format to
	// speak, the way the teacher's LLMProviderConfig.Type does.
	Provider string `yaml:"provider,omitempty"`

	// MaxToolIterations defaults to 10 and is capped at hardMaxIterations
	// regardless of what a config file requests (spec.md §6: "upper bound
	// enforced").
	MaxToolIterations int `yaml:"max_tool_iterations"`

	// Tools names locally-registered tools (by the names a caller already
	// passed to tool.Registry.Register) this agent is allowed to use. An
	// empty list means every tool currently in the registry is available —
	// Go has no dynamic module-loading equivalent of the teacher's
	// string-module-name/filesystem-path tool sources, so this is a filter
	// over tools the host program registered in Go code, not a loader.
	Tools []string `yaml:"tools,omitempty"`

	// Agents names sibling agent configurations (by their own Name) exposed
	// as in-process delegation tools, distinct from A2A remote delegation.
	Agents []string `yaml:"agents,omitempty"`

	MCP    []MCPServerConfig `yaml:"mcp,omitempty"`
	Skills []string          `yaml:"skills,omitempty"`

	// AgentsMD mirrors spec.md §6's "true for auto-discovery | false | path
	// | list of paths" union; yaml.v3 decodes it into whichever of these an
	// `any` naturally holds, and prompt.LoadAgentsMD interprets it the same
	// way.
	AgentsMD any `yaml:"agents_md,omitempty"`

	ResponseType   string `yaml:"response_type,omitempty"`
	ResponseFormat string `yaml:"response_format,omitempty"` // "json" | "none"

	Retry RetryConfig `yaml:"retry_config,omitempty"`

	Reasoning *ReasoningConfig `yaml:"reasoning,omitempty"`

	APIBase         string            `yaml:"api_base,omitempty"`
	APIKey          string            `yaml:"api_key,omitempty"`
	ExtraHeaders    map[string]string `yaml:"extra_headers,omitempty"`
	DropParams      bool              `yaml:"drop_params"`
	StepErrorsRaise bool              `yaml:"step_errors_raise,omitempty"`
}

const hardMaxIterations = 10

// Validate implements the teacher's per-type Validate() convention.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxToolIterations < 0 {
		return fmt.Errorf("max_tool_iterations must be non-negative")
	}
	if c.ResponseFormat != "" && c.ResponseFormat != "json" && c.ResponseFormat != "none" {
		return fmt.Errorf("response_format must be \"json\" or \"none\", got %q", c.ResponseFormat)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry_config validation failed: %w", err)
	}
	for i := range c.MCP {
		if err := c.MCP[i].Validate(); err != nil {
			return fmt.Errorf("mcp[%d] (%s) validation failed: %w", i, c.MCP[i].Name, err)
		}
	}
	return nil
}

// SetDefaults implements the teacher's per-type SetDefaults() convention.
func (c *Config) SetDefaults() {
	if c.MaxToolIterations == 0 {
		c.MaxToolIterations = hardMaxIterations
	}
	if c.MaxToolIterations > hardMaxIterations {
		c.MaxToolIterations = hardMaxIterations
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = "none"
	}
	c.Retry.SetDefaults()
	for i := range c.MCP {
		c.MCP[i].SetDefaults()
	}
}

// RetryConfig is spec.md §6's retry_config record: {max_retries 0..10,
// retry_on_validation_error, backoff_base_seconds}.
type RetryConfig struct {
	MaxRetries             int     `yaml:"max_retries"`
	RetryOnValidationError bool    `yaml:"retry_on_validation_error"`
	BackoffBaseSeconds     float64 `yaml:"backoff_base_seconds"`
}

func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10")
	}
	if c.BackoffBaseSeconds < 0 {
		return fmt.Errorf("backoff_base_seconds must be non-negative")
	}
	return nil
}

func (c *RetryConfig) SetDefaults() {
	if c.BackoffBaseSeconds == 0 {
		c.BackoffBaseSeconds = 1
	}
}

// ReasoningConfig mirrors llm.ReasoningConfig in a YAML-friendly shape
// (llm.ReasoningConfig's Extra map and Level string translate directly).
type ReasoningConfig struct {
	Level     string         `yaml:"level,omitempty"` // "low" | "medium" | "high"
	MaxTokens int            `yaml:"max_tokens,omitempty"`
	Extra     map[string]any `yaml:"extra,omitempty"`
}

// MCPServerConfig is spec.md §4.2's server entry in YAML-friendly shape:
// mcp.ServerConfig's time.Duration fields become plain seconds here since
// yaml.v3 has no default Duration codec, matching the teacher's own
// int-seconds convention in config/types.go's provider configs.
type MCPServerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"` // "stdio" | "sse" | "streamable-http"

	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`

	Prefix  string   `yaml:"prefix,omitempty"`
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	FailSilent bool `yaml:"fail_silent,omitempty"`
	MaxRetries int  `yaml:"max_retries,omitempty"`
	TimeoutSec int  `yaml:"timeout_seconds,omitempty"`
}

func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch c.Transport {
	case "stdio":
		if c.Command == "" {
			return fmt.Errorf("stdio transport requires command")
		}
	case "sse", "streamable-http":
		if c.URL == "" {
			return fmt.Errorf("%s transport requires url", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

func (c *MCPServerConfig) SetDefaults() {
	if c.Transport == "" {
		c.Transport = "stdio"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 300
	}
}

func (c *MCPServerConfig) timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
