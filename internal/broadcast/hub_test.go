package broadcast

import (
	"fmt"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

type fakeSink struct {
	fail     bool
	received [][]byte
}

func (f *fakeSink) Send(payload []byte) error {
	if f.fail {
		return fmt.Errorf("send failed")
	}
	f.received = append(f.received, payload)
	return nil
}

func TestHub_BroadcastDeliversToAllSubscribers(t *testing.T) {
	h := NewHub(nil)
	a := &fakeSink{}
	b := &fakeSink{}
	h.Attach(a)
	h.Attach(b)

	h.Broadcast(alert.Alert{ID: "1"})

	if len(a.received) != 1 || len(b.received) != 1 {
		t.Fatalf("expected both subscribers to receive one message, got %d and %d", len(a.received), len(b.received))
	}
}

func TestHub_BroadcastDropsFailingSubscriber(t *testing.T) {
	h := NewHub(nil)
	good := &fakeSink{}
	bad := &fakeSink{fail: true}
	h.Attach(good)
	badHandle := h.Attach(bad)

	h.Broadcast(alert.Alert{ID: "1"})

	if h.Count() != 1 {
		t.Fatalf("expected failing subscriber to be removed, count=%d", h.Count())
	}
	h.Detach(badHandle) // idempotent even though already removed
}

func TestHub_RecentKeepsNewestFirstBoundedHistory(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < historyCapacity+10; i++ {
		h.Broadcast(alert.Alert{ID: fmt.Sprintf("%d", i)})
	}

	recent := h.Recent()
	if len(recent) != historyCapacity {
		t.Fatalf("expected history capped at %d, got %d", historyCapacity, len(recent))
	}
	if recent[0].ID != fmt.Sprintf("%d", historyCapacity+9) {
		t.Fatalf("expected newest alert first, got %s", recent[0].ID)
	}
}

func TestHub_DetachIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	handle := h.Attach(&fakeSink{})
	h.Detach(handle)
	h.Detach(handle)
	if h.Count() != 0 {
		t.Fatalf("expected count 0 after detach, got %d", h.Count())
	}
}
