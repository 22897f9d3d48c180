package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/broadcast"
	"github.com/duetto/duetto/internal/collector"
	"github.com/duetto/duetto/internal/processor"
)

// fakeCollector emits from a channel the test controls directly and
// tracks Start/Stop calls.
type fakeCollector struct {
	name     string
	out      chan alert.Alert
	starts   int32
	stops    int32
	startErr error
}

func newFakeCollector(name string) *fakeCollector {
	return &fakeCollector{name: name, out: make(chan alert.Alert, 8)}
}

func (f *fakeCollector) Name() string { return f.name }
func (f *fakeCollector) Start(ctx context.Context) error {
	atomic.AddInt32(&f.starts, 1)
	return f.startErr
}
func (f *fakeCollector) Stop()                      { atomic.AddInt32(&f.stops, 1) }
func (f *fakeCollector) Produce() <-chan alert.Alert { return f.out }

var _ collector.Collector = (*fakeCollector)(nil)

type recordingFanout struct {
	mu   sync.Mutex
	sent []alert.Alert
}

func (r *recordingFanout) Send(ctx context.Context, a alert.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a)
}

func (r *recordingFanout) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSupervisor_PumpsAlertsThroughPipeline(t *testing.T) {
	c := newFakeCollector("test_collector")
	chain := processor.NewChain()
	hub := broadcast.NewHub(nil)
	fo := &recordingFanout{}

	sup := New(nil, []collector.Collector{c}, chain, hub, fo)
	if err := sup.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	c.out <- alert.Alert{ID: "a1", Priority: alert.PriorityHigh}

	waitFor(t, time.Second, func() bool { return fo.count() == 1 })

	if got := sup.Status().RecentAlertCount; got != 1 {
		t.Errorf("RecentAlertCount = %d, want 1", got)
	}
}

func TestSupervisor_DropsAlertsRejectedByChain(t *testing.T) {
	c := newFakeCollector("test_collector")
	chain := processor.NewChain(processor.NewPriorityFilter(alert.PriorityHigh, nil, nil))
	hub := broadcast.NewHub(nil)
	fo := &recordingFanout{}

	sup := New(nil, []collector.Collector{c}, chain, hub, fo)
	if err := sup.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	c.out <- alert.Alert{ID: "low", Priority: alert.PriorityLow}
	c.out <- alert.Alert{ID: "high", Priority: alert.PriorityHigh}

	waitFor(t, time.Second, func() bool { return fo.count() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := fo.count(); got != 1 {
		t.Errorf("fanout received %d alerts, want exactly 1 (low priority should be dropped)", got)
	}
}

func TestSupervisor_RestartsCollectorWhenChannelCloses(t *testing.T) {
	c := newFakeCollector("flaky")
	chain := processor.NewChain()
	hub := broadcast.NewHub(nil)
	fo := &recordingFanout{}

	sup := New(nil, []collector.Collector{c}, chain, hub, fo)
	if err := sup.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	close(c.out)

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&c.starts) >= 2 })
}

func TestSupervisor_StartStopIdempotent(t *testing.T) {
	c := newFakeCollector("c1")
	sup := New(nil, []collector.Collector{c}, processor.NewChain(), broadcast.NewHub(nil), &recordingFanout{})

	ctx := t.Context()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if atomic.LoadInt32(&c.starts) != 1 {
		t.Errorf("expected exactly one Start call, got %d", c.starts)
	}

	sup.Stop()
	sup.Stop() // must not panic or block
}

func TestSupervisor_StatusReflectsRunningState(t *testing.T) {
	c := newFakeCollector("c1")
	sup := New(nil, []collector.Collector{c}, processor.NewChain(), broadcast.NewHub(nil), &recordingFanout{})

	if sup.Status().Running {
		t.Fatal("expected Running=false before Start")
	}
	sup.Start(t.Context())
	if !sup.Status().Running {
		t.Fatal("expected Running=true after Start")
	}
	sup.Stop()
	if sup.Status().Running {
		t.Fatal("expected Running=false after Stop")
	}
}
