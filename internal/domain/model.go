package domain

import (
	"math"
	"time"
)

// Frost element names used across the service.
const (
	ElementAirTemperature    = "air_temperature"
	ElementPrecipitation     = "precipitation_amount"
	ElementWindSpeed         = "wind_speed"
	ElementWindFromDirection = "wind_from_direction"
	ElementRelativeHumidity  = "relative_humidity"
	ElementSnowDepth         = "snow_depth"
)

// ObservationPoint is a single reading for one station, element, and time.
// Value is nil when the backend reported the element without a measurement.
type ObservationPoint struct {
	Value *float64  `json:"value"`
	Unit  string    `json:"unit,omitempty"`
	Time  time.Time `json:"time"`
}

// Reading returns the point's value if it is present and finite.
func (p ObservationPoint) Reading() (float64, bool) {
	if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) {
		return 0, false
	}
	return *p.Value, true
}

// StationMeta is read-only reference data for a weather station.
type StationMeta struct {
	ID        string  `json:"id" validate:"required"`
	Elevation float64 `json:"elevation" validate:"gte=-500,lte=9000"` // meters above sea level
	Country   string  `json:"country,omitempty"`
}

// GlacierMeta is read-only reference data for a glacier.
type GlacierMeta struct {
	ID        string  `json:"id" validate:"required"`
	Name      string  `json:"name,omitempty"`
	Elevation float64 `json:"elevation" validate:"gte=-500,lte=9000"` // median surface elevation, meters
}

// Sample is one input step of the melt simulation.
type Sample struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature" validate:"gte=-100,lte=70"`             // °C at station elevation
	Precip24h   *float64  `json:"precip_24h,omitempty" validate:"omitempty,lte=5000"` // mm, 24-hour sum
	Precip1h    *float64  `json:"precip_1h,omitempty" validate:"omitempty,lte=5000"`  // mm, 1-hour sum
	Precip      *float64  `json:"precip,omitempty" validate:"omitempty,lte=5000"`     // mm, unspecified period
}

// DailyState is the simulated state emitted for one input step.
type DailyState struct {
	Time          time.Time `json:"time"`
	CorrectedTemp float64   `json:"corrected_temp"`
	Melt          float64   `json:"melt"`
	SWE           float64   `json:"swe"`
	Runoff        float64   `json:"runoff"`
	ROSSeverity   float64   `json:"ros_severity"`
	SnowFraction  float64   `json:"snow_fraction"`
}

// Aggregates summarizes the trailing 24 emitted states of a run.
type Aggregates struct {
	Melt24h   float64 `json:"melt_24h"`
	Runoff24h float64 `json:"runoff_24h"`
	ROSMax24h float64 `json:"ros_max_24h"`
}

// DataQuality tags how complete the simulation input was.
type DataQuality string

const (
	DataQualityFull            DataQuality = "full"
	DataQualityTemperatureOnly DataQuality = "temperature_only"
)

// SimulationResult is the packaged output of one glacier simulation.
type SimulationResult struct {
	Glacier       GlacierMeta  `json:"glacier"`
	Station       StationMeta  `json:"station"`
	Today         *DailyState  `json:"today"`
	History       []DailyState `json:"history"`
	Aggregates24h Aggregates   `json:"aggregates_24h"`
	DataQuality   DataQuality  `json:"data_quality"`

	// HistoryWindow is the number of trailing samples retained in History.
	HistoryWindow int `json:"history_window"`
}

// BasisKind distinguishes where a climate normal came from.
type BasisKind string

const (
	BasisOfficialPeriod    BasisKind = "official_period"
	BasisHistoricalAverage BasisKind = "historical_average"
)

// NormalsBasis labels the origin of a ClimateNormal.
type NormalsBasis struct {
	Kind   BasisKind `json:"kind"`
	Period string    `json:"period,omitempty"` // e.g. "1991-2020"; official normals only
}

// Label renders the basis for display.
func (b NormalsBasis) Label() string {
	switch b.Kind {
	case BasisOfficialPeriod:
		return "Klimanormaler " + b.Period
	case BasisHistoricalAverage:
		return "Historiske 5-års gjennomsnitt"
	default:
		return ""
	}
}

// ClimateNormal holds a station's long-term monthly reference values.
// Nil fields mean the value could not be determined.
type ClimateNormal struct {
	Temperature   *float64     `json:"temperature"`
	Precipitation *float64     `json:"precipitation"`
	Basis         NormalsBasis `json:"basis"`
}

// Summary is the compact station view consumed by the map layer.
type Summary struct {
	StationID             string            `json:"station_id"`
	CurrentTemp           *float64          `json:"current_temp"`
	CurrentPrecip         *float64          `json:"current_precip"`
	NormalTempThisMonth   *float64          `json:"normal_temp_this_month"`
	NormalPrecipThisMonth *float64          `json:"normal_precip_this_month"`
	NormalsBasis          string            `json:"normals_basis"`
	Display               map[string]string `json:"display"`

	// Degraded is set when the summary could not be computed at all.
	Degraded bool `json:"degraded,omitempty"`
}
