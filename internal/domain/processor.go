package domain

import (
	"math"
	"slices"
	"time"
)

const (
	// AggregateSamples is the trailing sample count summarized in Aggregates.
	AggregateSamples = 24

	// DefaultHistoryWindow is the trailing period retained in a result.
	DefaultHistoryWindow = 14 * 24 * time.Hour

	// DefaultHistorySamples is the retained sample count when the input
	// resolution is unknown. It assumes hourly input.
	DefaultHistorySamples = 14 * 24
)

// ProcessorOptions tunes history retention.
type ProcessorOptions struct {
	// HistoryWindow is the trailing period to keep. Zero means DefaultHistoryWindow.
	HistoryWindow time.Duration

	// Resolution is the spacing between samples. Zero means infer it from the
	// sample timestamps, falling back to DefaultHistorySamples.
	Resolution time.Duration
}

// Processor runs glacier simulations. It holds no mutable state and is safe
// for concurrent use.
type Processor struct {
	opts ProcessorOptions
}

// NewProcessor creates a Processor with the given options.
func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	return &Processor{opts: opts}
}

// WithResolution returns a Processor that assumes samples are spaced res
// apart. A non-positive res infers the spacing from the series.
func (p *Processor) WithResolution(res time.Duration) *Processor {
	opts := p.opts
	opts.Resolution = res
	return &Processor{opts: opts}
}

// Process simulates the snowpack at the glacier's elevation from the
// station's series and packages the trailing history and 24-sample aggregates.
func (p *Processor) Process(glacier GlacierMeta, station StationMeta, series []Sample) SimulationResult {
	series = finiteSamples(series)
	states := SimulateSnowpack(series, glacier.Elevation, station.Elevation)

	window := p.historySamples(series)

	result := SimulationResult{
		Glacier:       glacier,
		Station:       station,
		History:       trailing(states, window),
		Aggregates24h: aggregate(trailing(states, AggregateSamples)),
		DataQuality:   assessQuality(series),
		HistoryWindow: window,
	}
	if len(states) > 0 {
		today := states[len(states)-1]
		result.Today = &today
	}
	return result
}

// historySamples converts the history window into a sample count for the
// series' resolution.
func (p *Processor) historySamples(series []Sample) int {
	res := p.opts.Resolution
	if res <= 0 {
		res = InferResolution(series)
	}
	if res <= 0 {
		return DefaultHistorySamples
	}
	n := int(p.opts.HistoryWindow / res)
	if n < 1 {
		n = 1
	}
	return n
}

// InferResolution returns the median spacing between consecutive sample
// timestamps, or zero when it cannot be determined.
func InferResolution(series []Sample) time.Duration {
	gaps := make([]time.Duration, 0, len(series))
	for i := 1; i < len(series); i++ {
		a, b := series[i-1].Time, series[i].Time
		if a.IsZero() || b.IsZero() {
			continue
		}
		if d := b.Sub(a); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	slices.Sort(gaps)
	return gaps[len(gaps)/2]
}

func assessQuality(series []Sample) DataQuality {
	for _, s := range series {
		if _, ok := s.Precipitation(); ok {
			return DataQualityFull
		}
	}
	return DataQualityTemperatureOnly
}

func aggregate(states []DailyState) Aggregates {
	var agg Aggregates
	for _, s := range states {
		agg.Melt24h += s.Melt
		agg.Runoff24h += s.Runoff
		agg.ROSMax24h = math.Max(agg.ROSMax24h, s.ROSSeverity)
	}
	return agg
}

// trailing returns a copy of the last n states.
func trailing(states []DailyState, n int) []DailyState {
	if len(states) > n {
		states = states[len(states)-n:]
	}
	return slices.Clone(states)
}

// finiteSamples drops samples whose temperature cannot drive the model.
func finiteSamples(series []Sample) []Sample {
	out := make([]Sample, 0, len(series))
	for _, s := range series {
		if math.IsNaN(s.Temperature) || math.IsInf(s.Temperature, 0) {
			continue
		}
		out = append(out, s)
	}
	return out
}
