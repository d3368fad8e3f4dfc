package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/metrics"
	"github.com/edma-uni/reporter/internal/storage"
)

// ErrRefreshInProgress is returned when an on-demand trigger arrives while
// a refresh cycle is already running.
var ErrRefreshInProgress = errors.New("refresh in progress")

// Scheduler keeps the aggregate views fresh. It owns a periodic tick and an
// on-demand trigger that both funnel through the same serialized refresh
// cycle; the views themselves swap atomically, so readers are never blocked.
type Scheduler struct {
	views    storage.ViewStore
	interval time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger

	// mu serializes refresh cycles across the tick and external triggers.
	mu sync.Mutex
}

// NewScheduler constructs a Scheduler over the given view store.
func NewScheduler(views storage.ViewStore, interval time.Duration, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	return &Scheduler{
		views:    views,
		interval: interval,
		metrics:  m,
		log:      log,
	}
}

// Run refreshes the views once immediately and then on every tick until the
// context is canceled. A tick that lands while a refresh is still running is
// skipped; the next tick retries.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("view refresh scheduler started", zap.Duration("interval", s.interval))

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("view refresh scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.mu.TryLock() {
		s.log.Debug("refresh already running, skipping tick")
		return
	}
	defer s.mu.Unlock()

	// Per-view failures were already logged; the next tick retries.
	_ = s.refreshAll(ctx, "tick")
}

// Trigger runs one on-demand refresh cycle synchronously and reports its
// outcome. A trigger racing a running refresh is rejected with
// ErrRefreshInProgress rather than queued.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrRefreshInProgress
	}
	defer s.mu.Unlock()

	return s.refreshAll(ctx, "manual")
}

// refreshAll recomputes the four views independently and sequentially.
// Failure of one view does not abort the rest.
func (s *Scheduler) refreshAll(ctx context.Context, trigger string) error {
	views := []struct {
		name    string
		refresh func(context.Context) error
	}{
		{"hourly_event_stats", s.views.RefreshHourlyEventStats},
		{"hourly_revenue", s.views.RefreshHourlyRevenue},
		{"daily_facebook_demographics", s.views.RefreshFacebookDemographics},
		{"daily_tiktok_demographics", s.views.RefreshTiktokDemographics},
	}

	var errs []error
	for _, v := range views {
		start := time.Now()
		err := v.refresh(ctx)
		s.metrics.RecordRefresh(v.name, time.Since(start), err)

		if err != nil {
			s.log.Error("view refresh failed",
				zap.String("view", v.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", v.name, err))
			continue
		}
		s.log.Debug("view refreshed",
			zap.String("view", v.name),
			zap.Duration("took", time.Since(start)),
		)
	}

	s.metrics.RecordRefreshCycle(trigger)
	return errors.Join(errs...)
}
