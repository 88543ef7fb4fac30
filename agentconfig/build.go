package agentconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/loom/agentloop"
	"github.com/kadirpekel/loom/factory"
	"github.com/kadirpekel/loom/llm"
	"github.com/kadirpekel/loom/mcp"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/prompt"
	"github.com/kadirpekel/loom/tool"
)

// BuildOptions carries the collaborators Build needs beyond the Config
// itself: the shared registry tools register into, the directory AGENTS.md
// discovery walks from, already-built sibling agents this one may delegate
// to, and an optional persistence layer.
type BuildOptions struct {
	Registry *tool.Registry
	BaseDir  string
	Siblings map[string]*agentloop.Loop
	Store    agentloop.ThreadStore
}

// Built is everything Build wires up for one agent configuration: the Agent
// Loop ready to Run/Stream, the prompt composer it was given, and a cleanup
// closure that tears down MCP connections.
type Built struct {
	Loop    *agentloop.Loop
	Prompt  *prompt.Composer
	Cleanup func()
}

// Build constructs a fully wired Agent Loop from c: a Completion Handler
// provider, the registered tool set (filtered by c.Tools and extended with
// delegation tools for c.Agents, MCP-discovered tools, and skill-activation
// tools), and a Prompt Composer carrying AGENTS.md and skill metadata.
//
// Grounded on the teacher's wiring being spread across cmd/hector's startup
// code (not itself portable, since it targets the competing pkg/ Session
// architecture) restructured here as one explicit constructor per spec.md
// §6's "agent configuration ingested, then built" framing.
func (c *Config) Build(ctx context.Context, opts BuildOptions) (*Built, error) {
	registry := opts.Registry
	if registry == nil {
		registry = tool.NewRegistry(30 * time.Second)
	}

	if len(c.Tools) > 0 {
		filterRegistryTo(registry, c.Tools)
	}

	for _, name := range c.Agents {
		sibling, ok := opts.Siblings[name]
		if !ok {
			return nil, fmt.Errorf("agentconfig: agent %q delegates to unknown sibling agent %q", c.Name, name)
		}
		if err := registerDelegationTool(registry, name, sibling); err != nil {
			return nil, fmt.Errorf("agentconfig: agent %q: %w", c.Name, err)
		}
	}

	var cleanup func()
	if len(c.MCP) > 0 {
		cfgs := make([]mcp.ServerConfig, len(c.MCP))
		for i, m := range c.MCP {
			cfgs[i] = mcp.ServerConfig{
				Name:       m.Name,
				Transport:  mcp.Transport(m.Transport),
				Command:    m.Command,
				Args:       m.Args,
				Env:        m.Env,
				URL:        m.URL,
				Headers:    m.Headers,
				Prefix:     m.Prefix,
				Include:    m.Include,
				Exclude:    m.Exclude,
				FailSilent: m.FailSilent,
				MaxRetries: m.MaxRetries,
				Timeout:    m.timeout(),
			}
		}
		adapter, err := mcp.NewAdapter(registry, cfgs)
		if err != nil {
			return nil, fmt.Errorf("agentconfig: agent %q: %w", c.Name, err)
		}
		cleanup, err = adapter.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("agentconfig: agent %q: %w", c.Name, err)
		}
	}
	if cleanup == nil {
		cleanup = func() {}
	}

	skills, err := prompt.LoadSkills(c.Skills)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("agentconfig: agent %q: %w", c.Name, err)
	}
	if err := prompt.RegisterActivateSkill(registry, skills); err != nil {
		cleanup()
		return nil, fmt.Errorf("agentconfig: agent %q: %w", c.Name, err)
	}

	composer := prompt.New(c.Name, c.ModelName, c.Purpose, c.Notes)
	composer.ProjectInstructions = prompt.LoadAgentsMD(c.AgentsMD, opts.BaseDir)
	composer.SkillsBlock = prompt.FormatSkillsBlock(skills)

	providerType := c.Provider
	if providerType == "" {
		providerType = "openai"
	}
	provider, err := llm.New(llm.Config{
		Type:       providerType,
		APIBase:    c.APIBase,
		APIKey:     c.APIKey,
		MaxRetries: c.Retry.MaxRetries,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("agentconfig: agent %q: %w", c.Name, err)
	}

	loop := agentloop.New(provider, registry, factory.New(c.Name, c.ModelName))
	loop.Model = c.ModelName
	loop.Temperature = c.Temperature
	loop.RequireJSONOutput = c.ResponseFormat == "json"
	loop.APIBase = c.APIBase
	loop.APIKey = c.APIKey
	loop.ExtraHeaders = c.ExtraHeaders
	loop.DropParams = c.DropParams
	loop.MaxIterations = c.MaxToolIterations
	loop.Persist = opts.Store
	if c.Reasoning != nil {
		loop.Reasoning = &llm.ReasoningConfig{
			Level:     llm.ReasoningLevel(c.Reasoning.Level),
			MaxTokens: c.Reasoning.MaxTokens,
			Extra:     c.Reasoning.Extra,
		}
	}

	return &Built{Loop: loop, Prompt: composer, Cleanup: cleanup}, nil
}

// filterRegistryTo removes every registered tool not named in keep, so a
// Config's Tools allow-list can narrow a shared registry per agent (spec.md
// §6's "tools" field scopes what one agent may call, even when several
// agents share one process-wide registry).
func filterRegistryTo(registry *tool.Registry, keep []string) {
	allowed := make(map[string]bool, len(keep))
	for _, name := range keep {
		allowed[name] = true
	}
	for _, decl := range registry.Declarations() {
		if !allowed[decl.Name] {
			registry.Remove(decl.Name)
		}
	}
}

// registerDelegationTool exposes sibling as a callable tool named
// "delegate_<name>", matching spec.md §6's "agents (sub-agents exposed as
// delegation tools)": the delegating agent sends its own prompt text to the
// sibling's loop and gets back its final answer.
func registerDelegationTool(registry *tool.Registry, name string, sibling *agentloop.Loop) error {
	decl := tool.Declaration{
		Name:        "delegate_" + name,
		Description: fmt.Sprintf("Delegate a task to the %q agent and return its final answer.", name),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{"type": "string", "description": "The task to delegate"},
			},
			"required": []string{"task"},
		},
		Source: "agents",
	}
	return registry.Register(decl, tool.ContextualFunc(func(ctx context.Context, tc tool.ToolContext, args map[string]any) (string, []message.Attachment, error) {
		task, _ := args["task"].(string)

		thread := message.NewThread()
		if err := thread.Add(message.Message{
			Role:    message.RoleUser,
			Content: task,
			Source:  message.Source{Kind: message.SourceUser, Name: tc.AgentName},
			Metrics: message.ZeroMetrics(),
		}); err != nil {
			return "", nil, fmt.Errorf("agentconfig: delegate_%s: %w", name, err)
		}

		result, err := sibling.Run(ctx, thread, agentloop.Options{Deps: tc.Deps})
		if err != nil {
			return "", nil, fmt.Errorf("agentconfig: delegate_%s: %w", name, err)
		}
		return result.Output, nil, nil
	}))
}
