package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/meteo"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

// HistoryFetcher is the part of meteo.Backend the transformer needs.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, stationID string, q meteo.HistoryQuery) (meteo.HistoryResponse, error)
}

// SimulationTransformer implements Transformer by fetching the station's
// recent history and running the glacier processor over it.
type SimulationTransformer struct {
	history   HistoryFetcher
	processor *domain.Processor
	validate  *validator.Validate
	clock     clockwork.Clock
	newRunID  func() string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewTransformer creates a SimulationTransformer.
func NewTransformer(history HistoryFetcher, processor *domain.Processor, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *SimulationTransformer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SimulationTransformer{
		history:   history,
		processor: processor,
		validate:  validator.New(),
		clock:     clock,
		newRunID:  uuid.NewString,
		logger:    logger,
		metrics:   metrics,
	}
}

// Transform parses a job, fetches the history it covers, and simulates it.
func (t *SimulationTransformer) Transform(ctx context.Context, raw domain.RawJob) (domain.SimulationEnvelope, error) {
	job, err := domain.ParseSimulationJob(raw)
	if err != nil {
		return domain.SimulationEnvelope{}, err
	}
	if err := t.validate.Struct(job); err != nil {
		return domain.SimulationEnvelope{}, fmt.Errorf("invalid simulation job %q: %w", job.JobID, err)
	}

	now := t.clock.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	resp, err := t.history.FetchHistory(ctx, job.Station.ID, meteo.HistoryQuery{
		Start:     end.AddDate(0, 0, -job.Days),
		End:       end,
		Elements:  meteo.ClimateElements,
		ChunkDays: meteo.DefaultChunkDays,
	})
	if err != nil {
		return domain.SimulationEnvelope{}, fmt.Errorf("fetch history for job %q: %w", job.JobID, err)
	}

	series := meteo.SamplesFromHistory(resp)
	result := t.processor.Process(job.Glacier, job.Station, series)
	t.metrics.SimulationsRun.WithLabelValues(string(result.DataQuality)).Inc()
	t.metrics.SimulationSteps.Observe(float64(len(series)))

	env := domain.SimulationEnvelope{
		RunID:       t.newRunID(),
		JobID:       job.JobID,
		ProcessedAt: now,
		Result:      result,
	}
	t.logger.Debug("simulation job complete",
		"job_id", job.JobID,
		"run_id", env.RunID,
		"glacier_id", job.Glacier.ID,
		"samples", len(series),
	)
	return env, nil
}
