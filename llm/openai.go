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

// OpenAIProvider speaks the OpenAI chat-completions wire format, grounded
// on the teacher's llms/openai.go (request/response types, the o1-/o3-
// max_completion_tokens special case, three-tier retry for non-streaming
// calls).
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

// NewOpenAIProvider returns a Provider for the OpenAI chat-completions API
// (or any OpenAI-compatible endpoint reached via baseURL).
func NewOpenAIProvider(baseURL, apiKey string, timeout time.Duration, maxRetries int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpclient.New(timeout, maxRetries, time.Second, httpclient.ParseOpenAIRateLimitHeaders),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type oaMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []oaToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string       `json:"type"`
	Function oaToolSchema `json:"function"`
}

type oaToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaRequest struct {
	Model               string      `json:"model"`
	Messages            []oaMessage `json:"messages"`
	MaxTokens           int         `json:"max_tokens,omitempty"`
	MaxCompletionTokens int         `json:"max_completion_tokens,omitempty"`
	Temperature         float64     `json:"temperature"`
	Stream              bool        `json:"stream"`
	Tools               []oaTool    `json:"tools,omitempty"`
	ToolChoice          string      `json:"tool_choice,omitempty"`
	ReasoningEffort     string      `json:"reasoning_effort,omitempty"`
	ResponseFormat      *oaFormat   `json:"response_format,omitempty"`
}

type oaFormat struct {
	Type string `json:"type"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaResponse struct {
	Choices []oaChoice `json:"choices"`
	Usage   oaUsage    `json:"usage"`
	Error   *oaError   `json:"error,omitempty"`
}

type oaChoice struct {
	Message      oaMessage `json:"message"`
	FinishReason string    `json:"finish_reason"`
}

type oaError struct {
	Message string `json:"message"`
}

type oaStreamChunk struct {
	Choices []oaStreamChoice `json:"choices"`
	Usage   *oaUsage         `json:"usage,omitempty"`
	Error   *oaError         `json:"error,omitempty"`
}

type oaStreamChoice struct {
	Delta        oaDelta `json:"delta"`
	FinishReason string  `json:"finish_reason"`
}

type oaDelta struct {
	Content          string             `json:"content,omitempty"`
	ReasoningContent string             `json:"reasoning_content,omitempty"`
	ToolCalls        []oaStreamToolCall `json:"tool_calls,omitempty"`
}

type oaStreamToolCall struct {
	Index    int            `json:"index"`
	ID       string         `json:"id,omitempty"`
	Function oaFunctionCall `json:"function"`
}

func (p *OpenAIProvider) buildRequest(req Request) oaRequest {
	out := oaRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    make([]oaMessage, len(req.Messages)),
	}
	for i, m := range req.Messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages[i] = om
	}

	if strings.HasPrefix(req.Model, "o1-") || strings.HasPrefix(req.Model, "o3-") {
		out.MaxCompletionTokens = req.MaxTokens
	} else {
		out.MaxTokens = req.MaxTokens
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, oaTool{
			Type: "function",
			Function: oaToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}

	if req.Reasoning != nil {
		out.ReasoningEffort = string(req.Reasoning.Level)
	}
	if req.RequireJSONOutput {
		out.ResponseFormat = &oaFormat{Type: "json_object"}
	}
	return out
}

func (p *OpenAIProvider) headers(req Request) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	h.Set("Authorization", "Bearer "+key)
	for k, v := range req.ExtraHeaders {
		h.Set(k, v)
	}
	return h
}

func (p *OpenAIProvider) endpoint(req Request) string {
	base := p.baseURL
	if req.APIBase != "" {
		base = strings.TrimRight(req.APIBase, "/")
	}
	return base + "/chat/completions"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	body := p.buildRequest(req)
	body.Stream = false

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}

	respBody, err := p.client.Do(ctx, http.MethodPost, p.endpoint(req), p.headers(req), payload)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}

	var parsed oaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}
	if parsed.Error != nil {
		return nil, &ProviderError{Provider: "openai", Err: fmt.Errorf("%s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Err: ErrNoChoices}
	}

	choice := parsed.Choices[0]
	resp := &Response{
		Content: choice.Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCallWire{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return resp, nil
}

// Stream issues a streaming request and translates OpenAI's SSE chunk
// format into ChunkDelta values, accumulating tool-call fragments by
// stream index (grounded on the teacher's makeStreamingRequest, redesigned
// to key by the index OpenAI actually sends instead of assuming
// append-order, which the teacher's version got wrong for multi-tool-call
// turns).
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan ChunkDelta, error) {
	body := p.buildRequest(req)
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req), bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}
	for k, vs := range p.headers(req) {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := p.client.HTTP.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &ProviderError{Provider: "openai", Err: &httpclient.StatusError{StatusCode: resp.StatusCode}}
	}

	out := make(chan ChunkDelta, 64)
	go func() {
		defer resp.Body.Close()
		defer close(out)

		type pendingCall struct {
			id, name, args string
		}
		pending := map[int]*pendingCall{}
		var order []int
		totalTokens := Usage{}

		emitToolCall := func(idx int, fragment string) {
			c := pending[idx]
			out <- ChunkDelta{ToolCallDelta: &ToolCallDelta{Index: idx, ID: c.id, Name: c.name, ArgumentsFragment: fragment}}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}
			var chunk oaStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				out <- ChunkDelta{Done: true}
				return
			}
			if chunk.Usage != nil {
				totalTokens = Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				out <- ChunkDelta{Content: delta.Content}
			}
			if delta.ReasoningContent != "" {
				out <- ChunkDelta{Reasoning: delta.ReasoningContent}
			}
			for _, tc := range delta.ToolCalls {
				c, seen := pending[tc.Index]
				if !seen {
					c = &pendingCall{}
					pending[tc.Index] = c
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					c.id = tc.ID
				}
				if tc.Function.Name != "" {
					c.name = tc.Function.Name
				}
				c.args += tc.Function.Arguments
				emitToolCall(tc.Index, tc.Function.Arguments)
			}
		}
		out <- ChunkDelta{Done: true, Usage: &totalTokens}
	}()

	return out, nil
}
