package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/loom/internal/httpclient"
)

// AnthropicProvider speaks the Anthropic Messages API, grounded on the
// teacher's llms/anthropic.go: a separate top-level `system` string (rather
// than a system message in the array), content as a list of typed blocks,
// and server-sent `event:`/`data:` pairs for streaming rather than bare
// `data:` lines.
type AnthropicProvider struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

func NewAnthropicProvider(baseURL, apiKey string, timeout time.Duration, maxRetries int) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpclient.New(timeout, maxRetries, time.Second, httpclient.ParseAnthropicRateLimitHeaders),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anMessage struct {
	Role    string      `json:"role"`
	Content []anContent `json:"content"`
}

type anContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type anRequest struct {
	Model       string      `json:"model"`
	System      string      `json:"system,omitempty"`
	Messages    []anMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
	Stream      bool        `json:"stream"`
	Tools       []anTool    `json:"tools,omitempty"`
	Thinking    *anThinking `json:"thinking,omitempty"`
}

type anUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anResponse struct {
	Content []anContent `json:"content"`
	Usage   anUsage     `json:"usage"`
	Error   *anError    `json:"error,omitempty"`
}

type anError struct {
	Message string `json:"message"`
}

func (p *AnthropicProvider) buildRequest(req Request) anRequest {
	out := anRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if out.System != "" {
				out.System += "\n\n"
			}
			out.System += m.Content
			continue
		}
		role := m.Role
		if role == "tool" {
			out.Messages = append(out.Messages, anMessage{
				Role: "user",
				Content: []anContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}
		am := anMessage{Role: role}
		if m.Content != "" {
			am.Content = append(am.Content, anContent{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &input)
			am.Content = append(am.Content, anContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
		}
		out.Messages = append(out.Messages, am)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	if req.Reasoning != nil {
		budget := req.Reasoning.MaxTokens
		if budget == 0 {
			switch req.Reasoning.Level {
			case ReasoningHigh:
				budget = 16000
			case ReasoningMedium:
				budget = 8000
			default:
				budget = 2000
			}
		}
		out.Thinking = &anThinking{Type: "enabled", BudgetTokens: budget}
	}
	return out
}

func (p *AnthropicProvider) headers(req Request) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	h.Set("x-api-key", key)
	h.Set("anthropic-version", "2023-06-01")
	for k, v := range req.ExtraHeaders {
		h.Set(k, v)
	}
	return h
}

func (p *AnthropicProvider) endpoint(req Request) string {
	base := p.baseURL
	if req.APIBase != "" {
		base = strings.TrimRight(req.APIBase, "/")
	}
	return base + "/messages"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	body := p.buildRequest(req)
	body.Stream = false

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}

	respBody, err := p.client.Do(ctx, http.MethodPost, p.endpoint(req), p.headers(req), payload)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}

	var parsed anResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}
	if parsed.Error != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: fmt.Errorf("%s", parsed.Error.Message)}
	}

	resp := &Response{
		Usage: Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "thinking":
			resp.Reasoning += block.Text
		case "tool_use":
			argsJSON, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolCallWire{ID: block.ID, Name: block.Name, Arguments: string(argsJSON)})
		}
	}
	return resp, nil
}

// anStreamEvent covers the handful of Anthropic SSE event shapes this
// provider cares about; unrecognized fields are left zero and ignored.
type anStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Index int `json:"index"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Stream translates Anthropic's `event: .../data: {...}` SSE pairs into
// ChunkDelta, keyed by content-block index for the same reason the OpenAI
// provider keys tool-call fragments by index.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan ChunkDelta, error) {
	body := p.buildRequest(req)
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req), bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}
	for k, vs := range p.headers(req) {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := p.client.HTTP.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &ProviderError{Provider: "anthropic", Err: &httpclient.StatusError{StatusCode: resp.StatusCode}}
	}

	out := make(chan ChunkDelta, 64)
	go func() {
		defer resp.Body.Close()
		defer close(out)

		blockKind := map[int]string{}
		blockTool := map[int]*ToolCallDelta{}
		usage := Usage{}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev anStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "content_block_start":
				blockKind[ev.Index] = ev.ContentBlock.Type
				if ev.ContentBlock.Type == "tool_use" {
					blockTool[ev.Index] = &ToolCallDelta{Index: ev.Index, ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
				}
			case "content_block_delta":
				switch blockKind[ev.Index] {
				case "text":
					out <- ChunkDelta{Content: ev.Delta.Text}
				case "thinking":
					out <- ChunkDelta{Reasoning: ev.Delta.Thinking}
				case "tool_use":
					td := *blockTool[ev.Index]
					td.ArgumentsFragment = ev.Delta.PartialJSON
					out <- ChunkDelta{ToolCallDelta: &td}
				}
			case "message_delta":
				if ev.Usage.OutputTokens > 0 {
					usage.CompletionTokens = ev.Usage.OutputTokens
					usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				}
			case "message_start":
				usage.PromptTokens = ev.Usage.InputTokens
			}
		}
		out <- ChunkDelta{Done: true, Usage: &usage}
	}()

	return out, nil
}
