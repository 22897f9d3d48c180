package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/httpkit"
)

// RichCardNotifier POSTs a colored interactive card payload (header
// color by level, body text, key/value field list, action button to the
// source URL) to a configured webhook URL.
type RichCardNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// RichCardOption configures a RichCardNotifier.
type RichCardOption func(*RichCardNotifier)

// WithRichCardLogger attaches a logger.
func WithRichCardLogger(l *slog.Logger) RichCardOption {
	return func(r *RichCardNotifier) { r.logger = l }
}

// NewRichCardNotifier builds a notifier posting to url. Returns nil if
// url is empty.
func NewRichCardNotifier(url string, opts ...RichCardOption) *RichCardNotifier {
	if url == "" {
		return nil
	}
	r := &RichCardNotifier{
		url:    url,
		client: httpkit.NewClient(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *RichCardNotifier) Name() string { return "rich_card" }

func (r *RichCardNotifier) Send(ctx context.Context, a alert.Alert, aiSuggestion string) error {
	body, err := RenderRichCard(TemplateFromAlert(a, aiSuggestion))
	if err != nil {
		return fmt.Errorf("render rich card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rich card request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post rich card: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<16)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("rich card webhook responded %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}
	return nil
}
