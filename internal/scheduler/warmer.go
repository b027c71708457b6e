// Package scheduler keeps station summaries warm in the cache.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/summary"
)

const (
	defaultInterval = 5 * time.Minute
	maxParallel     = 4
)

// SummaryRefresher recomputes station summaries.
type SummaryRefresher interface {
	GetStationSummary(ctx context.Context, stationID string, opts summary.Options) domain.Summary
}

// Warmer periodically force-refreshes the summaries of configured stations.
type Warmer struct {
	scheduler *gocron.Scheduler
	summaries SummaryRefresher
	stations  []string
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewWarmer creates a Warmer. timeout bounds each station's refresh.
func NewWarmer(stations []string, interval, timeout time.Duration, summaries SummaryRefresher, logger *slog.Logger) *Warmer {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &Warmer{
		scheduler: gocron.NewScheduler(time.UTC),
		summaries: summaries,
		stations:  stations,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the warm-up job, running it once immediately.
func (w *Warmer) Start() error {
	if len(w.stations) == 0 {
		w.logger.Info("summary warmer disabled: no stations configured")
		return nil
	}

	w.scheduler.SingletonModeAll()
	_, err := w.scheduler.Every(w.interval).Do(func() {
		w.WarmOnce(context.Background())
	})
	if err != nil {
		return err
	}

	w.scheduler.StartAsync()
	w.logger.Info("summary warmer started", "stations", len(w.stations), "interval", w.interval)
	return nil
}

// WarmOnce refreshes every configured station and returns the number of
// summaries that came back degraded.
func (w *Warmer) WarmOnce(ctx context.Context) int {
	start := time.Now()
	degraded := make([]bool, len(w.stations))

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, id := range w.stations {
		g.Go(func() error {
			stationCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()
			s := w.summaries.GetStationSummary(stationCtx, id, summary.Options{ForceRefresh: true})
			degraded[i] = s.Degraded
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, d := range degraded {
		if d {
			n++
		}
	}
	w.logger.Info("summary warm-up complete",
		"stations", len(w.stations),
		"degraded", n,
		"duration", time.Since(start),
	)
	return n
}

// Stop stops the scheduler and cancels any future runs.
func (w *Warmer) Stop() {
	w.scheduler.Stop()
}
