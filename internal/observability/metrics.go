package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "glacier_melt"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Retrieval metrics.
	ObservationTiers *prometheus.CounterVec   // labels: tier={recent,extended,history}, outcome={hit,empty,error}
	NormalsResolved  *prometheus.CounterVec   // labels: basis={official_period,historical_average}
	FallbackYears    *prometheus.CounterVec   // labels: outcome={used,empty,error}
	BackendDuration  *prometheus.HistogramVec // labels: endpoint={latest,history,normals}
	BackendErrors    *prometheus.CounterVec   // labels: endpoint, kind={network,backend,breaker}

	// Summary metrics.
	SummaryCache    *prometheus.CounterVec // labels: result={hit,miss,bypass}
	SummaryDegraded prometheus.Counter
	SummaryDuration prometheus.Histogram

	// Simulation metrics.
	SimulationsRun  *prometheus.CounterVec // labels: quality={full,temperature_only}
	SimulationSteps prometheus.Histogram

	// Pipeline metrics.
	JobsConsumed            prometheus.Counter
	ResultsProduced         prometheus.Counter
	TransformErrors         prometheus.Counter
	TransformRetries        prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ObservationTiers,
		m.NormalsResolved,
		m.FallbackYears,
		m.BackendDuration,
		m.BackendErrors,
		m.SummaryCache,
		m.SummaryDegraded,
		m.SummaryDuration,
		m.SimulationsRun,
		m.SimulationSteps,
		m.JobsConsumed,
		m.ResultsProduced,
		m.TransformErrors,
		m.TransformRetries,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics that are never exported, for
// one-shot tools that have no /metrics endpoint.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observation_tier_total",
			Help:      "Latest-observation retrieval attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		NormalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normals_resolved_total",
			Help:      "Climate normals resolved by basis.",
		}, []string{"basis"}),
		FallbackYears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normals_fallback_years_total",
			Help:      "Historical fallback years by outcome.",
		}, []string{"outcome"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request duration in seconds, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend request failures by endpoint and kind.",
		}, []string{"endpoint", "kind"}),
		SummaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_total",
			Help:      "Station summary cache lookups by result.",
		}, []string{"result"}),
		SummaryDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_degraded_total",
			Help:      "Station summaries replaced by placeholders after a failure or timeout.",
		}),
		SummaryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "Duration of an uncached station summary computation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
		SimulationsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Glacier simulations by data quality.",
		}, []string{"quality"}),
		SimulationSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_steps",
			Help:      "Input samples per glacier simulation.",
			Buckets:   []float64{1, 24, 168, 336, 720, 2160, 8760},
		}),
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Total simulation jobs read from the source topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_produced_total",
			Help:      "Total simulation results written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total simulation jobs that could not be processed.",
		}),
		TransformRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_retries_total",
			Help:      "Total simulation job retries after a transient backend failure.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the simulation pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
