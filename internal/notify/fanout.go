package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/duetto/duetto/internal/alert"
)

// sendGrace is the timeout given to each notifier's Send. Sends run on
// a context detached from the caller's cancellation, so every delivery
// gets this full window whether or not the fanout's context is cancelled.
const sendGrace = 5 * time.Second

// Enricher is the AIEnricher contract: analyze an alert and return a
// short assessment, or ("", false) if no suggestion is available
// (missing credentials, network error, or the alert didn't merit one).
// Analyze must never propagate an error to the caller.
type Enricher interface {
	Analyze(ctx context.Context, a alert.Alert) (string, bool)
}

// Fanout dispatches each alert in parallel to every configured Notifier,
// gated by a minimum priority. It renders no shared template: each
// notifier builds its own payload from the alert. One notifier's failure
// never affects the others.
type Fanout struct {
	notifiers   []Notifier
	minPriority alert.Priority
	enricher    Enricher
	logger      *slog.Logger
}

// FanoutOption configures a Fanout built by NewFanout.
type FanoutOption func(*Fanout)

// WithEnricher attaches the AI enrichment stage. Called at most once
// per alert; its result is passed to every notifier.
func WithEnricher(e Enricher) FanoutOption {
	return func(f *Fanout) { f.enricher = e }
}

// WithFanoutLogger attaches a logger.
func WithFanoutLogger(l *slog.Logger) FanoutOption {
	return func(f *Fanout) { f.logger = l }
}

// NewFanout builds a Fanout over notifiers (nil entries are skipped,
// matching the "disable at startup" pattern of the New*Notifier
// constructors that return nil on missing credentials), gated at minPriority.
func NewFanout(minPriority alert.Priority, notifiers []Notifier, opts ...FanoutOption) *Fanout {
	live := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			live = append(live, n)
		}
	}
	f := &Fanout{
		notifiers:   live,
		minPriority: minPriority,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Send gates a on the configured minimum priority, calls the enricher
// at most once, then dispatches to every notifier in parallel. It
// returns once all notifiers have completed (success, logged failure,
// or timeout).
func (f *Fanout) Send(ctx context.Context, a alert.Alert) {
	if a.Priority < f.minPriority {
		return
	}
	if len(f.notifiers) == 0 {
		return
	}

	var suggestion string
	if f.enricher != nil {
		suggestion, _ = f.enricher.Analyze(ctx, a)
	}

	var wg sync.WaitGroup
	for _, n := range f.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendGrace)
			defer cancel()
			if err := n.Send(sendCtx, a, suggestion); err != nil {
				f.logger.Warn("notifier delivery failed", "notifier", n.Name(), "alert_id", a.ID, "error", err)
			}
		}(n)
	}
	wg.Wait()
}
