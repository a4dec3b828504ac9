package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/flemzord/writenow/internal/provider"
)

// Chat completions wire format, reduced to what a summary call needs.

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stop        []string     `json:"stop,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// oaiErrorBody covers both the OpenAI shape {"error":{"message":..}} and
// the bare {"error":"..."} some local servers send.
type oaiErrorBody struct {
	Error json.RawMessage `json:"error"`
}

type oaiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func newRequest(model string, fallbackMaxTokens int, req provider.CompletionRequest) oaiRequest {
	out := oaiRequest{
		Model:       model,
		Messages:    make([]oaiMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = fallbackMaxTokens
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, oaiMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// reasoningBlock matches the <think> preamble reasoning models served by
// Ollama or llama.cpp put before their answer.
var reasoningBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>`)

func (r oaiResponse) completion() provider.CompletionResponse {
	out := provider.CompletionResponse{
		Usage: provider.TokenUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}
	if len(r.Choices) == 0 {
		return out
	}
	first := r.Choices[0]
	out.Content = strings.TrimSpace(reasoningBlock.ReplaceAllString(first.Message.Content, ""))
	out.FinishReason = finishReason(first.FinishReason)
	return out
}

func finishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop", "eos":
		return provider.FinishStop
	case "length":
		return provider.FinishLength
	case "content_filter":
		return provider.FinishFiltered
	}
	return provider.FinishReason(reason)
}

// postJSON sends body to path under the base URL and decodes a 200 answer
// into out. Transport failures are ErrProviderDown unless the caller's
// context ended first.
func (p *Provider) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// maxErrorBodySize bounds how much of a failed response is read.
const maxErrorBodySize = 4096

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	code, message := parseErrorBody(raw)
	return provider.NewAPIError(resp.StatusCode, code, message, mentionsContextLength(code+" "+message))
}

func parseErrorBody(raw []byte) (code, message string) {
	var body oaiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var detail oaiErrorDetail
		if err := json.Unmarshal(body.Error, &detail); err == nil {
			code = detail.Type
			if detail.Code != nil {
				code = fmt.Sprint(detail.Code)
			}
			return code, detail.Message
		}
		var plain string
		if err := json.Unmarshal(body.Error, &plain); err == nil {
			return "", plain
		}
	}
	return "", strings.TrimSpace(string(raw))
}

func mentionsContextLength(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"context_length_exceeded", "context length", "maximum context", "context window", "token limit"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
