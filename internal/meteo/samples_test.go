package meteo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
)

func TestSamplesFromHistory(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	resp := HistoryResponse{Series: map[string][]domain.ObservationPoint{
		domain.ElementAirTemperature: {
			point(-1, t0.Add(2*time.Hour)),
			point(-3, t0),
			point(-2, t0.Add(time.Hour)),
			point(-2, t0.Add(time.Hour)), // duplicate timestamp
			point(math.NaN(), t0.Add(3*time.Hour)),
			nullPoint(t0.Add(4 * time.Hour)),
		},
		domain.ElementPrecipitation: {
			point(0.4, t0.Add(time.Hour)),
			nullPoint(t0.Add(2 * time.Hour)),
			point(9.9, t0.Add(5*time.Hour)), // no temperature at this time
		},
	}}

	got := SamplesFromHistory(resp)

	require.Len(t, got, 3)
	assert.Equal(t, t0, got[0].Time)
	assert.InDelta(t, -3.0, got[0].Temperature, 1e-9)
	assert.Nil(t, got[0].Precip)
	require.NotNil(t, got[1].Precip)
	assert.InDelta(t, 0.4, *got[1].Precip, 1e-9)
	assert.Equal(t, t0.Add(2*time.Hour), got[2].Time)
	assert.Nil(t, got[2].Precip)
}

func TestSamplesFromHistory_NoTemperature(t *testing.T) {
	resp := HistoryResponse{Series: map[string][]domain.ObservationPoint{
		domain.ElementPrecipitation: {point(1, now)},
	}}
	assert.Nil(t, SamplesFromHistory(resp))
}
