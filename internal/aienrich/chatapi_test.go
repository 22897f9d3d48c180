package aienrich

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

func TestChatApiV1_MissingCredentialsReturnsNil(t *testing.T) {
	if NewChatApiV1("", "", "", nil) != nil {
		t.Fatal("expected nil provider when apiKey is empty")
	}
}

func TestChatApiV2_MissingCredentialsReturnsNil(t *testing.T) {
	if NewChatApiV2("", "", "", nil) != nil {
		t.Fatal("expected nil provider when apiKey is empty")
	}
}

func TestChatApiV1_ExtractsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  Bullish on catalyst.  "}},
			},
		})
	}))
	defer srv.Close()

	c := NewChatApiV1("test-key", srv.URL, "gpt-test", nil)
	text, ok := c.Analyze(t.Context(), alert.Alert{Title: "ACME merger", Company: "ACME"})
	if !ok {
		t.Fatal("expected a successful analysis")
	}
	if text != "Bullish on catalyst." {
		t.Errorf("got %q, want trimmed content", text)
	}
}

func TestChatApiV1_NetworkErrorReturnsFalse(t *testing.T) {
	c := NewChatApiV1("test-key", "http://127.0.0.1:0", "gpt-test", nil)
	_, ok := c.Analyze(t.Context(), alert.Alert{})
	if ok {
		t.Fatal("expected false on unreachable endpoint")
	}
}

func TestChatApiV2_ExtractsContentText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"text": "Bearish outlook."},
			},
		})
	}))
	defer srv.Close()

	c := NewChatApiV2("test-key", srv.URL, "claude-test", nil)
	text, ok := c.Analyze(t.Context(), alert.Alert{Title: "ACME bankruptcy"})
	if !ok {
		t.Fatal("expected a successful analysis")
	}
	if text != "Bearish outlook." {
		t.Errorf("got %q, want %q", text, "Bearish outlook.")
	}
}

func TestChatApiV2_EmptyContentReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewChatApiV2("test-key", srv.URL, "claude-test", nil)
	_, ok := c.Analyze(t.Context(), alert.Alert{})
	if ok {
		t.Fatal("expected false when content is empty")
	}
}
