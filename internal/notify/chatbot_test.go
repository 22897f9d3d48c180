package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

func TestNewChatBotNotifier_MissingCredentials(t *testing.T) {
	if NewChatBotNotifier("", "chat1") != nil {
		t.Fatal("expected nil notifier with empty token")
	}
	if NewChatBotNotifier("token", "") != nil {
		t.Fatal("expected nil notifier with empty chat id")
	}
}

func TestChatBotNotifier_Send(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewChatBotNotifier("abc123", "chat1", WithChatBotBaseURL(srv.URL))
	err := n.Send(t.Context(), alert.Alert{ID: "a1", Title: "ACME 8-K", Company: "ACME"}, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPath != "/botabc123/sendMessage" {
		t.Errorf("path = %q, want bot-scoped sendMessage path", gotPath)
	}
	if gotBody["chat_id"] != "chat1" {
		t.Errorf("chat_id = %v, want chat1", gotBody["chat_id"])
	}
	if text, _ := gotBody["text"].(string); !strings.Contains(text, "ACME 8-K") {
		t.Errorf("text missing alert title: %q", text)
	}
}

func TestChatBotNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewChatBotNotifier("abc123", "chat1", WithChatBotBaseURL(srv.URL))
	if err := n.Send(t.Context(), alert.Alert{ID: "a1"}, ""); err == nil {
		t.Fatal("expected an error on non-2xx status")
	}
}
