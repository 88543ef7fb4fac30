// Package mcp is the MCP Adapter (spec.md §4.2): connects to remote Model
// Context Protocol servers over stdio, SSE, or streamable-HTTP, and
// registers their discovered tools into a tool.Registry so the Agent Loop
// dispatches them exactly like a local tool.
//
// Grounded on the teacher's pkg/tool/mcptoolset/mcptoolset.go for the
// stdio-via-mcp-go / HTTP-via-hand-rolled-JSON-RPC split, and pkg/tools/mcp.go
// for the SSE response-framing details; redesigned to register directly
// into a shared tool.Registry instead of returning a parallel Toolset type,
// and to bridge progress notifications into tool.ProgressFunc.
package mcp

import "time"

// Transport names one of spec.md §4.2's three transports.
type Transport string

const (
	TransportStdio           Transport = "stdio"
	TransportSSE             Transport = "sse"
	TransportStreamableHTTP  Transport = "streamable-http"
)

// ServerConfig is one entry in the MCP configuration surface (spec.md
// §4.2's "ordered list of server entries").
type ServerConfig struct {
	Name      string
	Transport Transport

	// stdio transport.
	Command string
	Args    []string
	Env     map[string]string

	// sse / streamable-http transport.
	URL     string
	Headers map[string]string

	// Prefix defaults to Name + "_" and is applied to every tool name
	// discovered from this server.
	Prefix string

	// Include, when non-empty, takes precedence over Exclude: only these
	// tool names (pre-prefix) survive. Exclude is then subtracted from
	// whatever Include left (or from the full set if Include is empty).
	Include []string
	Exclude []string

	// FailSilent servers that fail to connect log a warning and are
	// skipped rather than propagating the error to the caller.
	FailSilent bool

	MaxRetries int
	Timeout    time.Duration
}

func (c *ServerConfig) prefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return c.Name + "_"
}

func (c *ServerConfig) setDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
}

func (c *ServerConfig) validate() error {
	if c.Name == "" {
		return &ConfigError{Message: "server name cannot be empty"}
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return &ConfigError{Message: c.Name + ": stdio transport requires command"}
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.URL == "" {
			return &ConfigError{Message: c.Name + ": " + string(c.Transport) + " transport requires url"}
		}
	default:
		return &ConfigError{Message: c.Name + ": unknown transport " + string(c.Transport)}
	}
	return nil
}

func filterName(name string, include, exclude []string) bool {
	if len(include) > 0 && !contains(include, name) {
		return false
	}
	if contains(exclude, name) {
		return false
	}
	return true
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// ConfigError marks a configuration problem caught at agent construction or
// connect time — spec.md §7's "Configuration" error kind: "fail fast, never
// reach a run".
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "mcp: " + e.Message }
