package domain

import "math"

// Model constants for the degree-day bucket model.
const (
	LapseRate        = -0.0065 // °C per meter
	MeltThreshold    = 0.0     // °C
	DDFSnow          = 3.0     // mm w.e. per °C per day
	DDFIce           = 7.0     // mm w.e. per °C per day
	SnowThreshold    = 0.5     // °C
	SnowCoverMinSWE  = 1.0     // mm; above this the surface melts as snow
	RefreezeCap      = 2.0     // mm per step
	ROSMinPrecip     = 5.0     // mm
	ROSMinSWE        = 20.0    // mm
	rosPrecipDivisor = 10.0
)

// DegreeDayMelt returns melt in mm w.e. for a corrected temperature. Melt is
// zero at or below the melt threshold.
func DegreeDayMelt(tcorr float64, snowCovered bool) float64 {
	ddf := DDFIce
	if snowCovered {
		ddf = DDFSnow
	}
	return math.Max(tcorr-MeltThreshold, 0) * ddf
}

// SimulateSnowpack steps the series through elevation correction, snow/rain
// partition, melt, refreeze, and rain-on-snow detection. SWE starts at zero
// on every call; the function keeps no state between calls.
func SimulateSnowpack(series []Sample, zGlacier, zStation float64) []DailyState {
	states := make([]DailyState, 0, len(series))
	dz := zGlacier - zStation
	swe := 0.0

	for _, s := range series {
		tcorr := s.Temperature + LapseRate*dz
		p, _ := s.Precipitation()

		fSnow := clamp01((SnowThreshold + 2 - tcorr) / 4)
		snowfall := p * fSnow
		rainfall := p * (1 - fSnow)

		swe += snowfall

		melt := DegreeDayMelt(tcorr, swe > SnowCoverMinSWE)
		swe = math.Max(swe-melt, 0)

		runoff := melt + rainfall

		if tcorr < 0 && swe > 0 && runoff > 0 {
			refreeze := math.Min(RefreezeCap, runoff)
			swe += refreeze
			runoff -= refreeze
		}

		ros := 0.0
		if tcorr > SnowThreshold && swe > ROSMinSWE && p > ROSMinPrecip {
			ros = math.Min(p/rosPrecipDivisor, 1)
		}

		states = append(states, DailyState{
			Time:          s.Time,
			CorrectedTemp: tcorr,
			Melt:          melt,
			SWE:           swe,
			Runoff:        runoff,
			ROSSeverity:   clamp01(ros),
			SnowFraction:  fSnow,
		})
	}

	return states
}

// Precipitation returns the preferred precipitation amount for the sample:
// the 24-hour sum, else the 1-hour sum, else the undifferentiated value.
// The second return value is false when none of them is usable, in which
// case the amount is zero.
func (s Sample) Precipitation() (float64, bool) {
	for _, v := range []*float64{s.Precip24h, s.Precip1h, s.Precip} {
		if usable(v) {
			return *v, true
		}
	}
	return 0, false
}

// usable rejects missing, non-finite, and negative amounts.
func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
