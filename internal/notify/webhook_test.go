package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

func TestNewWebhookNotifier_Validation(t *testing.T) {
	if NewWebhookNotifier("", WebhookFormatDiscord) != nil {
		t.Fatal("expected nil with empty URL")
	}
	if NewWebhookNotifier("https://example.test/hook", "bogus") != nil {
		t.Fatal("expected nil with unrecognized format")
	}
}

func TestWebhookNotifier_DiscordSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WebhookFormatDiscord)
	if err := n.Send(t.Context(), alert.Alert{ID: "a1", Title: "ACME merger", Company: "ACME"}, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := got["embeds"]; !ok {
		t.Errorf("expected a top-level embeds key, got %v", got)
	}
}

func TestWebhookNotifier_SlackSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WebhookFormatSlack)
	if err := n.Send(t.Context(), alert.Alert{ID: "a1", Title: "ACME merger"}, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := got["blocks"]; !ok {
		t.Errorf("expected a top-level blocks key, got %v", got)
	}
}

func TestWebhookNotifier_JSONSchemaIsRawAlert(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WebhookFormatJSON)
	if err := n.Send(t.Context(), alert.Alert{ID: "raw1", Title: "Raw passthrough"}, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["id"] != "raw1" {
		t.Errorf("expected raw alert JSON with id field, got %v", got)
	}
}

func TestRichCardNotifier_Schema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewRichCardNotifier(srv.URL)
	if err := n.Send(t.Context(), alert.Alert{ID: "a1", Title: "ACME 8-K", URL: "https://example.test/a1"}, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	card, ok := got["card"].(map[string]any)
	if !ok {
		t.Fatalf("expected a top-level card object, got %v", got)
	}
	if _, ok := card["action"]; !ok {
		t.Errorf("expected an action button since the alert has a URL")
	}
}
