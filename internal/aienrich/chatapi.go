package aienrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/httpkit"
)

// chatAPIResponseHeaderTimeout follows the donor's llm client practice
// of widening the default transport timeout for LLM calls, which can
// take longer than ordinary API requests to start streaming a response.
const chatAPIResponseHeaderTimeout = 60 * time.Second

// ChatApiV1 calls an OpenAI-style chat-completions endpoint, extracting
// the response from choices[0].message.content.
type ChatApiV1 struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// ChatApiV2 calls an Anthropic-style messages endpoint, extracting the
// response from content[0].text.
type ChatApiV2 struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewChatApiV1 builds a ChatApiV1 enricher posting to
// "<baseURL>/chat/completions". Returns nil if apiKey is empty, per the
// "missing credentials => return null" policy.
func NewChatApiV1(apiKey, baseURL, model string, logger *slog.Logger) *ChatApiV1 {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = chatAPIResponseHeaderTimeout
	return &ChatApiV1{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t)),
		logger:  logger.With("provider", "chat_v1"),
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze posts a system+user prompt built from a and returns the
// trimmed response text, or ("", false) on any failure. Errors are
// logged, never propagated.
func (c *ChatApiV1) Analyze(ctx context.Context, a alert.Alert) (string, bool) {
	system, user := buildPrompt(a)

	reqBody, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: promptTemperature,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		c.logger.Error("marshal chat_v1 request", "error", err)
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		c.logger.Error("build chat_v1 request", "error", err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("chat_v1 request failed", "error", err)
		return "", false
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("chat_v1 responded with error status", "status", resp.StatusCode, "body", httpkit.ReadErrorBody(resp.Body, 2048))
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Warn("read chat_v1 response failed", "error", err)
		return "", false
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("parse chat_v1 response failed", "error", err)
		return "", false
	}
	if len(parsed.Choices) == 0 {
		return "", false
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", false
	}
	return text, true
}

// NewChatApiV2 builds a ChatApiV2 enricher posting to
// "<baseURL>/v1/messages" (Anthropic Messages API shape). Returns nil
// if apiKey is empty.
func NewChatApiV2(apiKey, baseURL, model string, logger *slog.Logger) *ChatApiV2 {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = chatAPIResponseHeaderTimeout
	return &ChatApiV2{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t)),
		logger:  logger.With("provider", "chat_v2"),
	}
}

type anthropicMessagesRequest struct {
	Model       string                     `json:"model"`
	System      string                     `json:"system,omitempty"`
	Messages    []anthropicMessagesMessage `json:"messages"`
	Temperature float64                    `json:"temperature"`
	MaxTokens   int                        `json:"max_tokens"`
}

type anthropicMessagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Analyze posts a system+user prompt built from a to the Anthropic
// Messages API and returns the trimmed response text, or ("", false) on
// any failure.
func (c *ChatApiV2) Analyze(ctx context.Context, a alert.Alert) (string, bool) {
	system, user := buildPrompt(a)

	reqBody, err := json.Marshal(anthropicMessagesRequest{
		Model:       c.model,
		System:      system,
		Messages:    []anthropicMessagesMessage{{Role: "user", Content: user}},
		Temperature: promptTemperature,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		c.logger.Error("marshal chat_v2 request", "error", err)
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		c.logger.Error("build chat_v2 request", "error", err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("chat_v2 request failed", "error", err)
		return "", false
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("chat_v2 responded with error status", "status", resp.StatusCode, "body", httpkit.ReadErrorBody(resp.Body, 2048))
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Warn("read chat_v2 response failed", "error", err)
		return "", false
	}

	var parsed anthropicMessagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("parse chat_v2 response failed", "error", err)
		return "", false
	}
	if len(parsed.Content) == 0 {
		return "", false
	}

	text := strings.TrimSpace(parsed.Content[0].Text)
	if text == "" {
		return "", false
	}
	return text, true
}
