package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

// BatchExtractor reads up to batchSize simulation jobs from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawJob, error)
}

// Transformer runs the simulation a job asks for.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawJob) (domain.SimulationEnvelope, error)
}

// BatchLoader writes multiple results to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, results []domain.SimulationEnvelope) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// maxTransformAttempts bounds how often a job is retried while the
	// backend is unavailable before it is skipped.
	maxTransformAttempts = 3
)

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has processed a batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any jobs yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	jobs, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(jobs) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.JobsConsumed.Add(float64(len(jobs)))
	p.metrics.BatchSize.Observe(float64(len(jobs)))
	*backoff = initialBackoff

	if !p.transformAndLoad(ctx, jobs, backoff) {
		return false
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return true
}

// transformAndLoad simulates each job, loads the results, and commits
// offsets. A job whose backend fetch fails transiently is retried in place;
// any other failure, or one that outlasts the retries, is skipped and
// committed so a poison message cannot stall the partition. Returns false if
// the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, jobs []domain.RawJob, backoff *time.Duration) bool {
	results := make([]domain.SimulationEnvelope, 0, len(jobs))
	succeeded := make([]domain.RawJob, 0, len(jobs))

	for _, raw := range jobs {
		out, err := p.transform(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Warn("transform failed, skipping job",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		results = append(results, out)
		succeeded = append(succeeded, raw)
	}

	if len(results) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, results); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(results))
		return p.backoffOrStop(ctx, backoff)
	}

	p.metrics.ResultsProduced.Add(float64(len(results)))

	for _, raw := range succeeded {
		p.commitOffset(ctx, raw)
	}
	return true
}

// transform runs the transformer, retrying transient backend failures with
// exponential backoff.
func (p *Pipeline) transform(ctx context.Context, raw domain.RawJob) (domain.SimulationEnvelope, error) {
	delay := initialBackoff
	for attempt := 1; ; attempt++ {
		out, err := p.transformer.Transform(ctx, raw)
		if err == nil || ctx.Err() != nil || !domain.IsTransient(err) || attempt == maxTransformAttempts {
			return out, err
		}

		p.metrics.TransformRetries.Inc()
		p.logger.Warn("backend unavailable, retrying job",
			"error", err,
			"attempt", attempt,
			"offset", raw.Offset,
		)
		if !sleepWithContext(ctx, delay) {
			return out, err
		}
		delay = nextBackoff(delay, maxBackoff)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawJob) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
