// Package engine wires the collectors, processor chain, broadcast hub,
// and notifier fanout into a supervised pipeline: one driver goroutine
// per collector, restarted with exponential backoff on failure.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/broadcast"
	"github.com/duetto/duetto/internal/collector"
	"github.com/duetto/duetto/internal/notify"
	"github.com/duetto/duetto/internal/processor"
)

const (
	restartInitialDelay = 1 * time.Second
	restartMaxDelay      = 30 * time.Second
	restartMultiplier    = 2.0
	shutdownGrace        = 5 * time.Second
)

// Fanout is the subset of *notify.Fanout the Supervisor depends on.
// Declared as an interface so tests can substitute a recording double.
type Fanout interface {
	Send(ctx context.Context, a alert.Alert)
}

var _ Fanout = (*notify.Fanout)(nil)

// CollectorStatus reports the health of one supervised collector.
type CollectorStatus struct {
	LastSuccess time.Time
	Restarts    int
}

// Status is a point-in-time snapshot exposed on the /status endpoint.
type Status struct {
	Running          bool
	StartedAt        time.Time
	SubscriberCount  int
	RecentAlertCount int
	Collectors       map[string]CollectorStatus
}

// Supervisor runs the collector -> processor chain -> broadcast hub ->
// notifier fanout pipeline and keeps each collector's driver goroutine
// alive across transient failures.
type Supervisor struct {
	logger     *slog.Logger
	collectors []collector.Collector
	chain      *processor.Chain
	hub        *broadcast.Hub
	fanout     Fanout

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	statusMu sync.Mutex
	status   map[string]CollectorStatus
}

// New builds a Supervisor over the given collectors, sharing one
// processor chain, broadcast hub, and notifier fanout across all of
// them.
func New(logger *slog.Logger, collectors []collector.Collector, chain *processor.Chain, hub *broadcast.Hub, fanout Fanout) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:     logger,
		collectors: collectors,
		chain:      chain,
		hub:        hub,
		fanout:     fanout,
		status:     make(map[string]CollectorStatus, len(collectors)),
	}
}

// Start brings up every collector and spawns its supervised driver
// goroutine. Idempotent: a second call while already running is a
// no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, c := range s.collectors {
		if err := c.Start(runCtx); err != nil {
			s.logger.Error("collector failed to start", "collector", c.Name(), "error", err)
			continue
		}
		s.wg.Add(1)
		go s.drive(runCtx, c)
	}

	s.running = true
	s.startedAt = time.Now()
	s.logger.Info("engine started", "collectors", len(s.collectors))
	return nil
}

// Stop cancels every driver, waits up to shutdownGrace for them to
// finish, then stops collectors in reverse start order.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.logger.Warn("engine shutdown grace period exceeded, stopping collectors anyway")
	}

	for i := len(s.collectors) - 1; i >= 0; i-- {
		s.collectors[i].Stop()
	}

	s.running = false
	s.logger.Info("engine stopped")
}

// Status reports a snapshot of the running pipeline.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	running := s.running
	startedAt := s.startedAt
	s.mu.Unlock()

	s.statusMu.Lock()
	collectors := make(map[string]CollectorStatus, len(s.status))
	for k, v := range s.status {
		collectors[k] = v
	}
	s.statusMu.Unlock()

	st := Status{
		Running:    running,
		StartedAt:  startedAt,
		Collectors: collectors,
	}
	if s.hub != nil {
		st.SubscriberCount = s.hub.Count()
		st.RecentAlertCount = len(s.hub.Recent())
	}
	return st
}

// drive pumps c's alerts through the pipeline until ctx is cancelled.
// If c's Produce channel closes (source signaled permanent failure),
// drive restarts c with exponential backoff, resetting the delay after
// each successful restart.
func (s *Supervisor) drive(ctx context.Context, c collector.Collector) {
	defer s.wg.Done()

	delay := restartInitialDelay
	for {
		if ctx.Err() != nil {
			return
		}

		s.pump(ctx, c)

		if ctx.Err() != nil {
			return
		}

		s.bumpRestarts(c.Name())
		s.logger.Warn("collector stream ended, restarting", "collector", c.Name(), "delay", delay)
		if !sleepCtx(ctx, delay) {
			return
		}

		if err := c.Start(ctx); err != nil {
			s.logger.Error("collector restart failed", "collector", c.Name(), "error", err)
			delay = time.Duration(float64(delay) * restartMultiplier)
			if delay > restartMaxDelay {
				delay = restartMaxDelay
			}
			continue
		}
		delay = restartInitialDelay
	}
}

// pump drains c's Produce channel, feeding each alert through the
// processor chain, broadcast hub, and notifier fanout, until the
// channel closes or ctx is cancelled.
func (s *Supervisor) pump(ctx context.Context, c collector.Collector) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-c.Produce():
			if !ok {
				return
			}
			s.recordSuccess(c.Name())

			out, keep := s.chain.Process(ctx, a)
			if !keep {
				continue
			}
			if s.hub != nil {
				s.hub.Broadcast(out)
			}
			if s.fanout != nil {
				s.fanout.Send(ctx, out)
			}
		}
	}
}

func (s *Supervisor) recordSuccess(name string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[name]
	st.LastSuccess = time.Now()
	s.status[name] = st
}

func (s *Supervisor) bumpRestarts(name string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[name]
	st.Restarts++
	s.status[name] = st
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes
// first. Returns false if ctx was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
