package collector

import (
	"context"
	"strings"
	"testing"
)

// TestQuoteStream_ThresholdGating exercises spec boundary scenario 2:
// a +5.0% move is below a 10% threshold and dropped, a following +25.0%
// move crosses it and is emitted as High priority, direction UP.
func TestQuoteStream_ThresholdGating(t *testing.T) {
	q := NewQuoteStream("wss://example.test/quote_stream", "token", []string{"NASDAQ:AAPL"}, 10, nil)
	ctx := context.Background()

	q.processQuote(ctx, "NASDAQ:AAPL", map[string]any{"chp": 5.0, "lp": 190.0})
	select {
	case a := <-q.out:
		t.Fatalf("expected +5.0%% move below threshold to be dropped, got %+v", a)
	default:
	}

	q.processQuote(ctx, "NASDAQ:AAPL", map[string]any{"chp": 25.0, "lp": 210.0})
	select {
	case a := <-q.out:
		if a.Ticker != "AAPL" {
			t.Errorf("ticker = %q, want AAPL", a.Ticker)
		}
		if !strings.HasSuffix(a.Title, "UP 25.00%") {
			t.Errorf("title = %q, want suffix %q", a.Title, "UP 25.00%")
		}
		if a.Priority != 2 { // alert.PriorityHigh
			t.Errorf("priority = %v, want High", a.Priority)
		}
	default:
		t.Fatal("expected a PriceMove alert for the +25%% move")
	}
}

func TestQuoteStream_NegativeMoveIsDown(t *testing.T) {
	q := NewQuoteStream("wss://example.test/quote_stream", "token", []string{"NASDAQ:AAPL"}, 10, nil)
	ctx := context.Background()

	q.processQuote(ctx, "NASDAQ:AAPL", map[string]any{"chp": -15.0})
	select {
	case a := <-q.out:
		if !strings.Contains(a.Title, "DOWN") {
			t.Errorf("expected DOWN direction in title, got %q", a.Title)
		}
		if a.Priority != 1 { // alert.PriorityMedium (<=20% magnitude)
			t.Errorf("priority = %v, want Medium", a.Priority)
		}
	default:
		t.Fatal("expected a PriceMove alert for the -15%% move")
	}
}

func TestSplitFrames(t *testing.T) {
	raw := `~m~12~m~{"a":"b"}~m~8~m~{"c":1}`
	parts := splitFrames(raw)
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) != 2 {
		t.Fatalf("expected 2 frame payloads, got %d: %v", len(nonEmpty), nonEmpty)
	}
}

func TestHeartbeatPattern(t *testing.T) {
	if !heartbeatPattern.MatchString("~h~42") {
		t.Error("expected ~h~42 to match the heartbeat pattern")
	}
	if heartbeatPattern.MatchString(`{"m":"qsd"}`) {
		t.Error("did not expect a JSON payload to match the heartbeat pattern")
	}
}

func TestRandomLowercase(t *testing.T) {
	s := randomLowercase(12)
	if len(s) != 12 {
		t.Fatalf("expected length 12, got %d", len(s))
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			t.Fatalf("expected only lowercase letters, got %q", s)
		}
	}
}
