package notify

import (
	"strings"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

func TestNewEmailNotifier_Validation(t *testing.T) {
	if NewEmailNotifier("", 465, "", "", "from@test", []string{"to@test"}) != nil {
		t.Fatal("expected nil with empty host")
	}
	if NewEmailNotifier("smtp.test", 465, "", "", "", []string{"to@test"}) != nil {
		t.Fatal("expected nil with empty from")
	}
	if NewEmailNotifier("smtp.test", 465, "", "", "from@test", nil) != nil {
		t.Fatal("expected nil with no recipients")
	}
}

func TestComposeMessage_ContainsHeadersAndBothParts(t *testing.T) {
	a := alert.Alert{ID: "a1", Priority: alert.PriorityHigh, Ticker: "ACME", Title: "Merger announced", Company: "ACME Corp", Summary: "ACME merges with Beta."}

	msg, err := composeMessage("alerts@duetto.test", []string{"trader@test"}, a, "")
	if err != nil {
		t.Fatalf("composeMessage: %v", err)
	}
	s := string(msg)

	if !strings.Contains(s, "From: alerts@duetto.test") {
		t.Error("missing From header")
	}
	if !strings.Contains(s, "To: trader@test") {
		t.Error("missing To header")
	}
	if !strings.Contains(s, "multipart/alternative") {
		t.Error("expected multipart/alternative content type")
	}
	if !strings.Contains(s, "text/plain") || !strings.Contains(s, "text/html") {
		t.Error("expected both a text/plain and text/html part")
	}
	if !strings.Contains(s, "Merger announced") {
		t.Error("expected alert title in the body")
	}
}

func TestEmailSubject_IncludesPriorityAndTicker(t *testing.T) {
	a := alert.Alert{Priority: alert.PriorityHigh, Ticker: "ACME", Title: "Merger announced"}
	subj := emailSubject(a)
	if !strings.Contains(subj, "HIGH") || !strings.Contains(subj, "ACME") {
		t.Errorf("subject %q missing priority/ticker", subj)
	}
}
