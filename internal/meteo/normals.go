package meteo

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

// FallbackYears is how many preceding calendar years the historical average
// covers.
const FallbackYears = 5

const unknownPeriod = "?"

// NormalsResolver resolves a station's monthly climate normals, computing a
// historical average when official normals are unavailable.
type NormalsResolver struct {
	backend Backend
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewNormalsResolver creates a NormalsResolver.
func NewNormalsResolver(backend Backend, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *NormalsResolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NormalsResolver{
		backend: backend,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// GetNormals returns normals for month (1-12). It never fails; values that
// could not be determined are nil.
func (r *NormalsResolver) GetNormals(ctx context.Context, stationID string, month int) domain.ClimateNormal {
	resp, err := r.backend.FetchNormals(ctx, stationID, month, []string{ExprMeanTemperature, ExprSumPrecip})
	if err == nil {
		temp, precip := resp.First(ExprMeanTemperature), resp.First(ExprSumPrecip)
		if temp != nil || precip != nil {
			period := resp.Period
			if period == "" {
				period = unknownPeriod
			}
			r.metrics.NormalsResolved.WithLabelValues(string(domain.BasisOfficialPeriod)).Inc()
			return domain.ClimateNormal{
				Temperature:   temp,
				Precipitation: precip,
				Basis:         domain.NormalsBasis{Kind: domain.BasisOfficialPeriod, Period: period},
			}
		}
		r.logger.Info("official normals empty, using historical average", "station_id", stationID, "month", month)
	} else {
		r.logger.Warn("official normals unavailable, using historical average", "station_id", stationID, "month", month, "error", err)
	}

	normal := r.historicalAverage(ctx, stationID, month)
	r.metrics.NormalsResolved.WithLabelValues(string(domain.BasisHistoricalAverage)).Inc()
	return normal
}

// yearStats holds one year's monthly mean temperature and precipitation sum.
// A nil field means the year had no usable readings for that metric.
type yearStats struct {
	temp   *float64
	precip *float64
}

func (r *NormalsResolver) historicalAverage(ctx context.Context, stationID string, month int) domain.ClimateNormal {
	year := r.clock.Now().UTC().Year()
	stats := make([]yearStats, FallbackYears)

	var g errgroup.Group
	for i := range FallbackYears {
		y := year - 1 - i
		g.Go(func() error {
			s, err := r.yearStats(ctx, stationID, y, month)
			switch {
			case err != nil:
				r.metrics.FallbackYears.WithLabelValues("error").Inc()
				r.logger.Warn("historical year unavailable", "station_id", stationID, "year", y, "month", month, "error", err)
			case s.temp == nil && s.precip == nil:
				r.metrics.FallbackYears.WithLabelValues("empty").Inc()
			default:
				r.metrics.FallbackYears.WithLabelValues("used").Inc()
				stats[i] = s
			}
			// A failed year is excluded, it never cancels its siblings.
			return nil
		})
	}
	_ = g.Wait()

	var temps, precips []float64
	for _, s := range stats {
		if s.temp != nil {
			temps = append(temps, *s.temp)
		}
		if s.precip != nil {
			precips = append(precips, *s.precip)
		}
	}

	return domain.ClimateNormal{
		Temperature:   meanOrNil(temps),
		Precipitation: meanOrNil(precips),
		Basis:         domain.NormalsBasis{Kind: domain.BasisHistoricalAverage},
	}
}

func (r *NormalsResolver) yearStats(ctx context.Context, stationID string, year, month int) (yearStats, error) {
	start, end := monthRange(year, month)
	resp, err := r.backend.FetchHistory(ctx, stationID, HistoryQuery{
		Start:     start,
		End:       end,
		Elements:  ClimateElements,
		ChunkDays: DefaultChunkDays,
	})
	if err != nil {
		return yearStats{}, err
	}

	var s yearStats
	s.temp = meanOrNil(finiteValues(resp.Series[domain.ElementAirTemperature]))
	if p := finiteValues(resp.Series[domain.ElementPrecipitation]); len(p) > 0 {
		sum := floats.Sum(p)
		s.precip = &sum
	}
	return s, nil
}

// monthRange returns the UTC half-open range [first of month, first of next month).
func monthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func finiteValues(series []domain.ObservationPoint) []float64 {
	out := make([]float64, 0, len(series))
	for _, p := range series {
		if v, ok := p.Reading(); ok {
			out = append(out, v)
		}
	}
	return out
}

func meanOrNil(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	return &m
}
