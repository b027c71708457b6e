// Package summary builds the compact current-vs-normal view of a station.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/glacier-melt-service/internal/cache"
	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

// DefaultTimeout bounds a single uncached summary computation.
const DefaultTimeout = 8 * time.Second

// Placeholder is shown for any value that could not be determined.
const Placeholder = "—"

// Display field names.
const (
	FieldCurrentTemp   = "current_temp"
	FieldCurrentPrecip = "current_precip"
	FieldNormalTemp    = "normal_temp_this_month"
	FieldNormalPrecip  = "normal_precip_this_month"
	FieldNormalsBasis  = "normals_basis"
)

// Observations resolves a station's latest readings.
type Observations interface {
	GetLatest(ctx context.Context, stationID string) map[string]domain.ObservationPoint
}

// Normals resolves a station's monthly climate normals.
type Normals interface {
	GetNormals(ctx context.Context, stationID string, month int) domain.ClimateNormal
}

// Options tunes a single summary request.
type Options struct {
	// ForceRefresh skips the cached value and recomputes it.
	ForceRefresh bool
}

// Service computes and caches station summaries.
type Service struct {
	observations Observations
	normals      Normals
	cache        cache.Cache[domain.Summary]
	clock        clockwork.Clock
	timeout      time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics

	flights singleflight.Group

	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64 // key -> sequence of the newest fetch in flight
}

// NewService creates a Service. A non-positive timeout uses DefaultTimeout.
func NewService(
	observations Observations,
	normals Normals,
	c cache.Cache[domain.Summary],
	clock clockwork.Clock,
	timeout time.Duration,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		observations: observations,
		normals:      normals,
		cache:        c,
		clock:        clock,
		timeout:      timeout,
		logger:       logger,
		metrics:      metrics,
		latest:       make(map[string]uint64),
	}
}

// Key returns the cache key for a station in the month containing t.
func Key(stationID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("summary|%s|%d-%d", stationID, t.Year(), int(t.Month()))
}

// GetStationSummary returns the summary for stationID in the current UTC
// month. It never fails: when nothing could be computed in time the result
// is a placeholder with Degraded set, which is not cached.
func (s *Service) GetStationSummary(ctx context.Context, stationID string, opts Options) domain.Summary {
	now := s.clock.Now().UTC()
	key := Key(stationID, now)
	month := int(now.Month())

	if opts.ForceRefresh {
		s.metrics.SummaryCache.WithLabelValues("bypass").Inc()
		// Later non-forced callers must not join a flight started before the refresh.
		s.flights.Forget(key)
		return s.refresh(ctx, stationID, key, month)
	}

	if v, ok := s.cache.Get(key); ok {
		s.metrics.SummaryCache.WithLabelValues("hit").Inc()
		return v
	}
	s.metrics.SummaryCache.WithLabelValues("miss").Inc()

	v, _, _ := s.flights.Do(key, func() (any, error) {
		// The flight is shared, so one caller leaving must not cancel it for the rest.
		return s.refresh(context.WithoutCancel(ctx), stationID, key, month), nil
	})
	return v.(domain.Summary)
}

func (s *Service) refresh(ctx context.Context, stationID, key string, month int) domain.Summary {
	seq := s.begin(key)
	start := time.Now()

	summary, err := s.compute(ctx, stationID, month)
	s.metrics.SummaryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.abandon(key, seq)
		s.metrics.SummaryDegraded.Inc()
		s.logger.Warn("station summary degraded", "station_id", stationID, "error", err)
		return Degraded(stationID)
	}

	if !s.commit(key, seq, summary) {
		s.logger.Debug("discarding superseded summary", "station_id", stationID)
	}
	return summary
}

type computeResult struct {
	summary domain.Summary
	err     error
}

// compute gathers observations and normals under the service deadline.
// Panics in collaborators are recovered and reported as errors.
func (s *Service) compute(ctx context.Context, stationID string, month int) (domain.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan computeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- computeResult{err: fmt.Errorf("summary panic: %v", r)}
			}
		}()
		latest := s.observations.GetLatest(ctx, stationID)
		normal := s.normals.GetNormals(ctx, stationID, month)
		done <- computeResult{summary: Build(stationID, latest, normal)}
	}()

	select {
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			// Collaborators gave up early; their partial answer is not trustworthy.
			return domain.Summary{}, fmt.Errorf("station %s: %w", stationID, domain.ErrTimeout)
		}
		return res.summary, res.err
	case <-ctx.Done():
		return domain.Summary{}, fmt.Errorf("station %s: %w", stationID, domain.ErrTimeout)
	}
}

// begin registers a new fetch for key and returns its sequence number.
func (s *Service) begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latest[key] = s.seq
	return s.seq
}

// commit stores v only if seq is still the newest fetch for key.
func (s *Service) commit(key string, seq uint64, v domain.Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[key] != seq {
		return false
	}
	delete(s.latest, key)
	s.cache.Set(key, v)
	return true
}

func (s *Service) abandon(key string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[key] == seq {
		delete(s.latest, key)
	}
}

// Build assembles a summary from resolved observations and normals.
func Build(stationID string, latest map[string]domain.ObservationPoint, normal domain.ClimateNormal) domain.Summary {
	currentTemp := valueOf(latest, domain.ElementAirTemperature)
	currentPrecip := valueOf(latest, domain.ElementPrecipitation)

	// A basis with no values behind it is not worth labelling.
	var basis string
	if normal.Temperature != nil || normal.Precipitation != nil {
		basis = normal.Basis.Label()
	}
	display := map[string]string{
		FieldCurrentTemp:   formatValue(currentTemp, "°C"),
		FieldCurrentPrecip: formatValue(currentPrecip, "mm"),
		FieldNormalTemp:    formatValue(normal.Temperature, "°C"),
		FieldNormalPrecip:  formatValue(normal.Precipitation, "mm"),
		FieldNormalsBasis:  Placeholder,
	}
	if basis != "" {
		display[FieldNormalsBasis] = basis
	}

	return domain.Summary{
		StationID:             stationID,
		CurrentTemp:           currentTemp,
		CurrentPrecip:         currentPrecip,
		NormalTempThisMonth:   normal.Temperature,
		NormalPrecipThisMonth: normal.Precipitation,
		NormalsBasis:          basis,
		Display:               display,
	}
}

// Degraded returns the all-placeholder summary for stationID.
func Degraded(stationID string) domain.Summary {
	return domain.Summary{
		StationID: stationID,
		Display: map[string]string{
			FieldCurrentTemp:   Placeholder,
			FieldCurrentPrecip: Placeholder,
			FieldNormalTemp:    Placeholder,
			FieldNormalPrecip:  Placeholder,
			FieldNormalsBasis:  Placeholder,
		},
		Degraded: true,
	}
}

func valueOf(latest map[string]domain.ObservationPoint, element string) *float64 {
	v, ok := latest[element].Reading()
	if !ok {
		return nil
	}
	return &v
}

func formatValue(v *float64, unit string) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.1f %s", *v, unit)
}
