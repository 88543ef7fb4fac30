package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/loom/internal/httpclient"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/tool"
)

// clientInfo identifies this runtime to every MCP server it connects to,
// mirroring mcptoolset.go's hardcoded ClientInfo.
var clientInfo = mcp.Implementation{Name: "loom", Version: "0.1.0"}

const protocolVersion = "2024-11-05"

// Adapter owns every connected MCP server for one agent: it discovers their
// tools and registers forwarding entries into a shared tool.Registry so the
// Agent Loop dispatches them exactly like a local tool (spec.md §4.2).
type Adapter struct {
	registry *tool.Registry
	servers  []*serverConn
}

// NewAdapter validates cfgs eagerly (spec.md §4.2: "schema validation of the
// configuration happens eagerly when the agent is constructed") and returns
// an Adapter that has not yet connected to anything.
func NewAdapter(registry *tool.Registry, cfgs []ServerConfig) (*Adapter, error) {
	seen := make(map[string]bool, len(cfgs))
	for i := range cfgs {
		cfgs[i].setDefaults()
		if err := cfgs[i].validate(); err != nil {
			return nil, err
		}
		if seen[cfgs[i].Name] {
			return nil, &ConfigError{Message: "duplicate server name " + cfgs[i].Name}
		}
		seen[cfgs[i].Name] = true
	}
	a := &Adapter{registry: registry}
	for _, c := range cfgs {
		a.servers = append(a.servers, &serverConn{cfg: c})
	}
	return a, nil
}

// Connect establishes every configured server's transport, enumerates its
// tools, applies the include/exclude filter, and registers the survivors
// into the registry under "<prefix><name>". A server with FailSilent=true
// that fails to connect is logged and skipped rather than aborting the
// others (spec.md §4.2). On success, returns a cleanup closure that tears
// down every session that connected; if Connect fails partway through, it
// tears those sessions down itself and returns a nil closure.
func (a *Adapter) Connect(ctx context.Context) (func(), error) {
	var connected []*serverConn

	cleanup := func() {
		for _, s := range connected {
			s.close()
		}
	}

	for _, s := range a.servers {
		names, err := s.connect(ctx)
		if err != nil {
			if s.cfg.FailSilent {
				slog.Warn("mcp: server failed to connect, skipping", "server", s.cfg.Name, "error", err)
				continue
			}
			cleanup()
			return nil, fmt.Errorf("mcp: connect %s: %w", s.cfg.Name, err)
		}
		connected = append(connected, s)

		for _, decl := range s.declarations(names) {
			impl := s.invokerFor(decl.Name)
			if err := a.registry.Register(decl, impl); err != nil {
				cleanup()
				return nil, fmt.Errorf("mcp: register %s: %w", decl.Name, err)
			}
		}
	}

	return cleanup, nil
}

// serverConn is one configured MCP server's live connection state.
type serverConn struct {
	cfg ServerConfig

	mu        sync.Mutex
	stdio     *mcpclient.Client
	http      *httpclient.Client
	sessionID string

	// originalName maps a registry entry's prefixed name back to the name
	// the server knows the tool by.
	originalName map[string]string
	schema       map[string]map[string]any
	descByName   map[string]string

	progress progressWaiter
}

// connect performs the MCP handshake and tool discovery for one server,
// returning the filtered list of original (unprefixed) tool names that
// survived ServerConfig's Include/Exclude filter.
func (s *serverConn) connect(ctx context.Context) ([]string, error) {
	s.originalName = make(map[string]string)
	s.schema = make(map[string]map[string]any)
	s.descByName = make(map[string]string)

	if s.cfg.Transport == TransportStdio {
		return s.connectStdio(ctx)
	}
	return s.connectHTTP(ctx)
}

func (s *serverConn) connectStdio(ctx context.Context) ([]string, error) {
	env := make([]string, 0, len(s.cfg.Env))
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}

	c, err := mcpclient.NewStdioMCPClient(s.cfg.Command, env, s.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("create stdio client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start stdio client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = clientInfo
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	c.OnNotification(func(n mcp.JSONRPCNotification) {
		s.handleProgressNotification(n)
	})

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	s.mu.Lock()
	s.stdio = c
	s.mu.Unlock()

	var names []string
	for _, t := range listResp.Tools {
		if !filterName(t.Name, s.cfg.Include, s.cfg.Exclude) {
			continue
		}
		names = append(names, t.Name)
		s.schema[t.Name] = convertSchema(t.InputSchema)
		s.descByName[t.Name] = t.Description
	}

	slog.Info("mcp: connected (stdio)", "server", s.cfg.Name, "command", s.cfg.Command, "tools", len(names))
	return names, nil
}

// progressWaiter is keyed by progress token so handleProgressNotification
// (invoked from the stdio client's own read loop) can route a notification
// to the ToolContext.Progress of the call that is waiting on it.
type progressWaiter struct {
	mu    sync.Mutex
	byTok map[string]tool.ProgressFunc
}

func (s *serverConn) handleProgressNotification(n mcp.JSONRPCNotification) {
	if n.Method != "notifications/progress" {
		return
	}
	raw, err := json.Marshal(n.Params)
	if err != nil {
		return
	}
	var params struct {
		ProgressToken any     `json:"progressToken"`
		Progress      float64 `json:"progress"`
		Total         *float64 `json:"total"`
		Message       string  `json:"message"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	tok := fmt.Sprintf("%v", params.ProgressToken)

	s.progress.mu.Lock()
	cb, ok := s.progress.byTok[tok]
	s.progress.mu.Unlock()
	if ok && cb != nil {
		cb(params.Progress, params.Total, params.Message)
	}
}

func (s *serverConn) connectHTTP(ctx context.Context) ([]string, error) {
	s.http = httpclient.New(s.cfg.Timeout, s.cfg.MaxRetries, 2*time.Second, nil)

	initResp, err := s.rpc(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": clientInfo.Name, "version": clientInfo.Version},
		"capabilities":    map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if initResp.Error != nil {
		return nil, fmt.Errorf("initialize: %s", initResp.Error.Message)
	}

	listResp, err := s.rpc(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	if listResp.Error != nil {
		return nil, fmt.Errorf("list tools: %s", listResp.Error.Message)
	}

	resultMap, ok := listResp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from tools/list")
	}
	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing tools in tools/list response")
	}

	var names []string
	for _, raw := range toolsList {
		tm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := tm["name"].(string)
		if name == "" || !filterName(name, s.cfg.Include, s.cfg.Exclude) {
			continue
		}
		desc, _ := tm["description"].(string)
		schema, _ := tm["inputSchema"].(map[string]any)
		names = append(names, name)
		s.schema[name] = schema
		s.descByName[name] = desc
	}

	slog.Info("mcp: connected", "server", s.cfg.Name, "transport", s.cfg.Transport, "url", s.cfg.URL, "tools", len(names))
	return names, nil
}

// declarations builds tool.Declaration values for the given original tool
// names, recording the prefixed->original mapping the invoker needs.
func (s *serverConn) declarations(names []string) []tool.Declaration {
	prefix := s.cfg.prefix()
	decls := make([]tool.Declaration, 0, len(names))
	for _, name := range names {
		prefixed := prefix + name
		s.originalName[prefixed] = name
		decls = append(decls, tool.Declaration{
			Name:        prefixed,
			Description: s.descByName[name],
			Parameters:  s.schema[name],
			Source:      "mcp",
			Tags:        []string{s.cfg.Name},
		})
	}
	return decls
}

// invokerFor returns a tool.ContextualFunc that forwards a call to the
// original tool name on this server, translating the result and bridging
// progress notifications into the ToolContext's composed callback.
func (s *serverConn) invokerFor(prefixedName string) tool.ContextualFunc {
	return func(ctx context.Context, tc tool.ToolContext, args map[string]any) (string, []message.Attachment, error) {
		original := s.originalName[prefixedName]

		if tc.Progress != nil {
			s.progress.mu.Lock()
			if s.progress.byTok == nil {
				s.progress.byTok = make(map[string]tool.ProgressFunc)
			}
			s.progress.byTok[tc.CallID] = tc.Progress
			s.progress.mu.Unlock()
			defer func() {
				s.progress.mu.Lock()
				delete(s.progress.byTok, tc.CallID)
				s.progress.mu.Unlock()
			}()
		}

		s.mu.Lock()
		stdio := s.stdio
		s.mu.Unlock()

		if stdio != nil {
			return s.callStdio(ctx, stdio, original, args)
		}
		return s.callHTTP(ctx, original, args)
	}
}

func (s *serverConn) callStdio(ctx context.Context, c *mcpclient.Client, name string, args map[string]any) (string, []message.Attachment, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("mcp call %s: %w", name, err)
	}

	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")
	if resp.IsError {
		return "", nil, fmt.Errorf("mcp tool %s: %s", name, text)
	}
	return text, nil, nil
}

func (s *serverConn) callHTTP(ctx context.Context, name string, args map[string]any) (string, []message.Attachment, error) {
	resp, err := s.rpc(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return "", nil, fmt.Errorf("mcp call %s: %w", name, err)
	}
	if resp.Error != nil {
		return "", nil, fmt.Errorf("mcp tool %s: %s", name, resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return fmt.Sprintf("%v", resp.Result), nil, nil
	}
	if isErr, _ := resultMap["isError"].(bool); isErr {
		return "", nil, fmt.Errorf("mcp tool %s: %s", name, extractText(resultMap))
	}
	return extractText(resultMap), nil, nil
}

func extractText(resultMap map[string]any) string {
	content, ok := resultMap["content"].([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, c := range content {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if cm["type"] == "text" {
			if text, ok := cm["text"].(string); ok {
				texts = append(texts, text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// jsonRPCRequest/jsonRPCResponse are the hand-rolled JSON-RPC envelope used
// for the sse / streamable-http transports, grounded on
// pkg/tools/mcp.go's wire shape (mark3labs/mcp-go itself does not expose an
// HTTP transport client in the version this adapter targets).
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *serverConn) rpc(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json, text/event-stream")
	for k, v := range s.cfg.Headers {
		headers.Set(k, v)
	}
	s.mu.Lock()
	if s.sessionID != "" {
		headers.Set("mcp-session-id", s.sessionID)
	}
	s.mu.Unlock()

	respBody, contentType, sessionID, err := s.doRaw(ctx, headers, body)
	if err != nil {
		return nil, err
	}
	if sessionID != "" {
		s.mu.Lock()
		s.sessionID = sessionID
		s.mu.Unlock()
	}

	if strings.Contains(contentType, "text/event-stream") {
		return parseSSEResponse(respBody, s.cfg.Timeout)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// doRaw performs the underlying HTTP POST directly (bypassing
// httpclient.Client.Do's JSON-only retry contract) because it needs the
// response Content-Type and mcp-session-id header, not just the body;
// it makes a single attempt through s.http's *http.Client and does not retry.
func (s *serverConn) doRaw(ctx context.Context, headers http.Header, body []byte) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, "", "", err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.http.HTTP.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, resp.Header.Get("Content-Type"), resp.Header.Get("mcp-session-id"), nil
}

// parseSSEResponse reads the first complete JSON-RPC event off an SSE body,
// grounded on mcptoolset.go's readSSEResponse.
func parseSSEResponse(body []byte, timeout time.Duration) (*jsonRPCResponse, error) {
	reader := bufio.NewReader(strings.NewReader(string(body)))
	var data strings.Builder

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		lineStr := strings.TrimSpace(string(line))
		if lineStr == "" {
			if data.Len() > 0 {
				var resp jsonRPCResponse
				if err := json.Unmarshal([]byte(data.String()), &resp); err == nil {
					return &resp, nil
				}
				data.Reset()
			}
			continue
		}
		if strings.HasPrefix(lineStr, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(lineStr, "data:")))
		}
	}
	if data.Len() > 0 {
		var resp jsonRPCResponse
		if err := json.Unmarshal([]byte(data.String()), &resp); err == nil {
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("sse stream ended without complete message")
}

func (s *serverConn) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdio != nil {
		s.stdio.Close()
		s.stdio = nil
	}
	s.http = nil
}

// convertSchema normalizes mcp.ToolInputSchema into a plain map, grounded on
// mcptoolset.go's marshal-then-unmarshal round trip.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
