package meteo

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

// Observation tiers, from narrowest to coarsest.
const (
	TierRecent   = "recent"
	TierExtended = "extended"
	TierHistory  = "history"
)

const (
	recentWindow   = "now-6h/now"
	extendedWindow = "now-24h/now"
	historyDays    = 7
)

// ObservationClient resolves the latest reading per element for a station.
type ObservationClient struct {
	backend Backend
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewObservationClient creates an ObservationClient.
func NewObservationClient(backend Backend, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *ObservationClient {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ObservationClient{
		backend: backend,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// GetLatest returns the newest reading per element. It never fails: an empty
// map means no tier produced data.
func (c *ObservationClient) GetLatest(ctx context.Context, stationID string) map[string]domain.ObservationPoint {
	tiers := []Strategy[map[string]domain.ObservationPoint]{
		{Name: TierRecent, Run: func(ctx context.Context) (map[string]domain.ObservationPoint, bool, error) {
			return c.latestWithin(ctx, stationID, recentWindow, nil)
		}},
		{Name: TierExtended, Run: func(ctx context.Context) (map[string]domain.ObservationPoint, bool, error) {
			return c.latestWithin(ctx, stationID, extendedWindow, ExtendedElements)
		}},
		{Name: TierHistory, Run: func(ctx context.Context) (map[string]domain.ObservationPoint, bool, error) {
			return c.latestFromHistory(ctx, stationID)
		}},
	}

	latest, ok := FirstSuccess(ctx, tiers, func(tier string, o Outcome, err error) {
		c.metrics.ObservationTiers.WithLabelValues(tier, string(o)).Inc()
		switch o {
		case OutcomeError:
			c.logger.Warn("observation tier failed", "station_id", stationID, "tier", tier, "error", err)
		case OutcomeEmpty:
			c.logger.Debug("observation tier empty", "station_id", stationID, "tier", tier)
		}
	})
	if !ok {
		c.logger.Info("no observations available", "station_id", stationID)
		return map[string]domain.ObservationPoint{}
	}
	return latest
}

func (c *ObservationClient) latestWithin(ctx context.Context, stationID, window string, elements []string) (map[string]domain.ObservationPoint, bool, error) {
	resp, err := c.backend.FetchLatest(ctx, stationID, window, elements)
	if err != nil {
		return nil, false, err
	}
	latest := withReadings(resp.Latest)
	return latest, len(latest) > 0, nil
}

func (c *ObservationClient) latestFromHistory(ctx context.Context, stationID string) (map[string]domain.ObservationPoint, bool, error) {
	end := utcDate(c.clock.Now())
	resp, err := c.backend.FetchHistory(ctx, stationID, HistoryQuery{
		Start:     end.AddDate(0, 0, -historyDays),
		End:       end,
		Elements:  ExtendedElements,
		ChunkDays: DefaultChunkDays,
	})
	if err != nil {
		return nil, false, err
	}

	latest := make(map[string]domain.ObservationPoint, len(resp.Series))
	for element, series := range resp.Series {
		if p, ok := newestPoint(series); ok {
			latest[element] = p
		}
	}
	return latest, len(latest) > 0, nil
}

// withReadings drops elements the backend listed without a value.
func withReadings(latest map[string]domain.ObservationPoint) map[string]domain.ObservationPoint {
	out := make(map[string]domain.ObservationPoint, len(latest))
	for element, p := range latest {
		if _, ok := p.Reading(); ok {
			out[element] = p
		}
	}
	return out
}

// newestPoint picks the reading with the greatest timestamp, ignoring points
// without a value. Ties keep the earlier entry.
func newestPoint(series []domain.ObservationPoint) (domain.ObservationPoint, bool) {
	var newest domain.ObservationPoint
	found := false
	for _, p := range series {
		if _, ok := p.Reading(); !ok {
			continue
		}
		if !found || p.Time.After(newest.Time) {
			newest, found = p, true
		}
	}
	return newest, found
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
