// Package meteo retrieves station observations and climate normals from the
// backend proxy, degrading through progressively coarser sources instead of
// failing.
package meteo

import (
	"context"
	"time"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
)

// Backend is the data source for station observations and normals.
type Backend interface {
	// FetchLatest returns the most recent reading per element within window
	// (e.g. "now-6h/now"). A nil elements slice requests the backend defaults.
	FetchLatest(ctx context.Context, stationID, window string, elements []string) (LatestResponse, error)
	FetchHistory(ctx context.Context, stationID string, q HistoryQuery) (HistoryResponse, error)
	FetchNormals(ctx context.Context, stationID string, month int, exprs []string) (NormalsResponse, error)
}

// LatestResponse maps element name to its newest reading.
type LatestResponse struct {
	Latest map[string]domain.ObservationPoint `json:"latest"`
}

// HistoryQuery selects a date range of readings. Start and End are sent as
// UTC calendar dates.
type HistoryQuery struct {
	Start     time.Time
	End       time.Time
	Elements  []string
	ChunkDays int
}

// HistoryResponse maps element name to its readings in time order.
type HistoryResponse struct {
	Series map[string][]domain.ObservationPoint `json:"series"`
}

// NormalRow is one row of a normals aggregate.
type NormalRow struct {
	Normal *float64 `json:"normal"`
}

// NormalsResponse maps each aggregate expression to its rows.
type NormalsResponse struct {
	Rows   map[string][]NormalRow `json:"rows"`
	Period string                 `json:"period"`
}

// First returns the first row's normal for expr, or nil.
func (r NormalsResponse) First(expr string) *float64 {
	rows := r.Rows[expr]
	if len(rows) == 0 {
		return nil
	}
	return rows[0].Normal
}

// Element sets and aggregate expressions requested from the backend.
var (
	ExtendedElements = []string{
		domain.ElementAirTemperature,
		domain.ElementPrecipitation,
		domain.ElementWindSpeed,
		domain.ElementWindFromDirection,
		domain.ElementRelativeHumidity,
		domain.ElementSnowDepth,
	}
	ClimateElements = []string{
		domain.ElementAirTemperature,
		domain.ElementPrecipitation,
	}
)

const (
	ExprMeanTemperature = "mean(air_temperature P1M)"
	ExprSumPrecip       = "sum(precipitation_amount P1M)"

	// DefaultChunkDays is the history chunk size the backend splits requests into.
	DefaultChunkDays = 7
)
