package meteo

import (
	"slices"
	"time"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
)

// SamplesFromHistory joins temperature and precipitation readings on their
// timestamps into simulation samples, oldest first. Temperature drives the
// series: precipitation without a matching temperature reading is dropped,
// and a missing precipitation reading leaves the sample dry.
func SamplesFromHistory(resp HistoryResponse) []domain.Sample {
	temps := resp.Series[domain.ElementAirTemperature]
	if len(temps) == 0 {
		return nil
	}

	precip := make(map[time.Time]float64, len(resp.Series[domain.ElementPrecipitation]))
	for _, p := range resp.Series[domain.ElementPrecipitation] {
		if v, ok := p.Reading(); ok {
			precip[p.Time.UTC()] = v
		}
	}

	seen := make(map[time.Time]bool, len(temps))
	samples := make([]domain.Sample, 0, len(temps))
	for _, p := range temps {
		at := p.Time.UTC()
		temp, ok := p.Reading()
		if !ok || seen[at] {
			continue
		}
		seen[at] = true

		s := domain.Sample{Time: at, Temperature: temp}
		if v, ok := precip[at]; ok {
			s.Precip = &v
		}
		samples = append(samples, s)
	}

	slices.SortFunc(samples, func(a, b domain.Sample) int { return a.Time.Compare(b.Time) })
	return samples
}
