package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/loom/internal/httpclient"
)

// OllamaProvider speaks Ollama's /api/chat endpoint, grounded on the
// teacher's llms/ollama.go: newline-delimited JSON objects rather than SSE
// `data:` lines, and a `done` boolean instead of a `[DONE]` sentinel.
type OllamaProvider struct {
	baseURL string
	client  *httpclient.Client
}

func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpclient.New(timeout, 0, time.Second, nil),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type olMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []olToolCall `json:"tool_calls,omitempty"`
}

type olToolCall struct {
	Function olFunctionCall `json:"function"`
}

type olFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type olTool struct {
	Type     string       `json:"type"`
	Function olToolSchema `json:"function"`
}

type olToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type olRequest struct {
	Model    string      `json:"model"`
	Messages []olMessage `json:"messages"`
	Stream   bool        `json:"stream"`
	Tools    []olTool    `json:"tools,omitempty"`
	Options  olOptions   `json:"options,omitempty"`
}

type olOptions struct {
	Temperature float64 `json:"temperature"`
}

type olResponse struct {
	Message olMessage `json:"message"`
	Done    bool      `json:"done"`
	EvalCount       int `json:"eval_count"`
	PromptEvalCount int `json:"prompt_eval_count"`
}

func (p *OllamaProvider) buildRequest(req Request) olRequest {
	out := olRequest{Model: req.Model, Options: olOptions{Temperature: req.Temperature}}
	for _, m := range req.Messages {
		om := olMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			om.ToolCalls = append(om.ToolCalls, olToolCall{Function: olFunctionCall{Name: tc.Name, Arguments: args}})
		}
		out.Messages = append(out.Messages, om)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, olTool{Type: "function", Function: olToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	return out
}

func (p *OllamaProvider) endpoint(req Request) string {
	base := p.baseURL
	if req.APIBase != "" {
		base = strings.TrimRight(req.APIBase, "/")
	}
	return base + "/api/chat"
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	body := p.buildRequest(req)
	body.Stream = false

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}

	h := http.Header{"Content-Type": []string{"application/json"}}
	respBody, err := p.client.Do(ctx, http.MethodPost, p.endpoint(req), h, payload)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}

	var parsed olResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}

	resp := &Response{
		Content: parsed.Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}
	for i, tc := range parsed.Message.ToolCalls {
		argsJSON, _ := json.Marshal(tc.Function.Arguments)
		resp.ToolCalls = append(resp.ToolCalls, ToolCallWire{ID: syntheticID(i), Name: tc.Function.Name, Arguments: string(argsJSON)})
	}
	return resp, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan ChunkDelta, error) {
	body := p.buildRequest(req)
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req), bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.HTTP.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &ProviderError{Provider: "ollama", Err: &httpclient.StatusError{StatusCode: resp.StatusCode}}
	}

	out := make(chan ChunkDelta, 64)
	go func() {
		defer resp.Body.Close()
		defer close(out)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		idx := 0
		usage := Usage{}
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk olResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				out <- ChunkDelta{Content: chunk.Message.Content}
			}
			for _, tc := range chunk.Message.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Function.Arguments)
				out <- ChunkDelta{ToolCallDelta: &ToolCallDelta{Index: idx, ID: syntheticID(idx), Name: tc.Function.Name, ArgumentsFragment: string(argsJSON)}}
				idx++
			}
			if chunk.Done {
				usage = Usage{PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount, TotalTokens: chunk.PromptEvalCount + chunk.EvalCount}
				break
			}
		}
		out <- ChunkDelta{Done: true, Usage: &usage}
	}()

	return out, nil
}

func syntheticID(i int) string {
	return "call_" + itoa(i)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
