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

// WebhookFormat selects the wire schema a WebhookNotifier POSTs.
type WebhookFormat string

const (
	WebhookFormatDiscord WebhookFormat = "discord"
	WebhookFormatSlack   WebhookFormat = "slack"
	WebhookFormatJSON    WebhookFormat = "json"
	WebhookFormatFeishu  WebhookFormat = "feishu"
)

// WebhookNotifier POSTs an alert to a single webhook URL, rendered in
// one of the supported schemas.
type WebhookNotifier struct {
	url    string
	format WebhookFormat
	client *http.Client
	logger *slog.Logger
}

// WebhookOption configures a WebhookNotifier built by NewWebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithWebhookLogger attaches a logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *WebhookNotifier) { w.logger = l }
}

// NewWebhookNotifier builds a notifier for url in format. Returns nil if
// url is empty or format is unrecognized.
func NewWebhookNotifier(url string, format WebhookFormat, opts ...WebhookOption) *WebhookNotifier {
	if url == "" {
		return nil
	}
	switch format {
	case WebhookFormatDiscord, WebhookFormatSlack, WebhookFormatJSON, WebhookFormatFeishu:
	default:
		return nil
	}
	w := &WebhookNotifier{
		url:    url,
		format: format,
		client: httpkit.NewClient(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *WebhookNotifier) Name() string { return "webhook_" + string(w.format) }

// Send renders a per the configured format and POSTs the resulting
// JSON body to the webhook URL.
func (w *WebhookNotifier) Send(ctx context.Context, a alert.Alert, aiSuggestion string) error {
	body, err := w.render(a, aiSuggestion)
	if err != nil {
		return fmt.Errorf("render webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<16)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}
	return nil
}

func (w *WebhookNotifier) render(a alert.Alert, aiSuggestion string) ([]byte, error) {
	switch w.format {
	case WebhookFormatDiscord:
		return RenderDiscordEmbed(a)
	case WebhookFormatSlack:
		return RenderSlackBlocks(a, aiSuggestion)
	case WebhookFormatFeishu:
		return RenderFeishuCard(TemplateFromAlert(a, aiSuggestion))
	default:
		return json.Marshal(a)
	}
}
