package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/httpkit"
)

// chatAPIBaseURL is the default chat-bot API origin. Overridable for
// tests via WithChatBotBaseURL.
const chatAPIBaseURL = "https://api.telegram.org"

// ChatBotNotifier delivers alerts as Markdown messages to a chat-bot
// sendMessage endpoint.
type ChatBotNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// ChatBotOption configures a ChatBotNotifier built by NewChatBotNotifier.
type ChatBotOption func(*ChatBotNotifier)

// WithChatBotBaseURL overrides the API origin (used by tests).
func WithChatBotBaseURL(url string) ChatBotOption {
	return func(c *ChatBotNotifier) { c.baseURL = url }
}

// WithChatBotLogger attaches a logger.
func WithChatBotLogger(l *slog.Logger) ChatBotOption {
	return func(c *ChatBotNotifier) { c.logger = l }
}

// NewChatBotNotifier builds a notifier posting to
// "<baseURL>/bot<token>/sendMessage". Returns nil if token or chatID is
// empty, per the donor's "disable at startup, never crash" policy for
// missing credentials.
func NewChatBotNotifier(token, chatID string, opts ...ChatBotOption) *ChatBotNotifier {
	if token == "" || chatID == "" {
		return nil
	}
	c := &ChatBotNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: chatAPIBaseURL,
		client:  httpkit.NewClient(),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *ChatBotNotifier) Name() string { return "chatbot" }

// Send renders a as a Markdown chat message and POSTs it to the bot's
// sendMessage endpoint.
func (c *ChatBotNotifier) Send(ctx context.Context, a alert.Alert, aiSuggestion string) error {
	text := RenderChatMessage(a, aiSuggestion)

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": false,
	})
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<16)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat bot responded %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}
	return nil
}
