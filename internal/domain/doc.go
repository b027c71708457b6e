// Package domain models station observations and the glacier snowpack melt
// simulation driven by them.
//
// # Data Source
//
// Observations come from MET Norway's Frost API, reached through a backend
// proxy that exposes latest readings, multi-day history, and monthly climate
// normals per station. Element names follow Frost conventions:
//
//	air_temperature          °C
//	precipitation_amount     mm (sum over the reporting period)
//	wind_speed               m/s
//	wind_from_direction      degrees
//	relative_humidity        %
//	snow_depth               cm
//
// # Melt Model
//
// The simulation is a degree-day (temperature-index) bucket model, not a
// physically complete energy balance. Each step:
//
//	Tcorr   = T + lapse * (zGlacier - zStation)        lapse = -0.0065 °C/m
//	fSnow   = clamp((0.5 + 2 - Tcorr) / 4, 0, 1)
//	SWE    += P * fSnow
//	melt    = max(Tcorr, 0) * DDF                      DDF = 3.0 snow, 7.0 ice
//	SWE     = max(SWE - melt, 0)
//	runoff  = melt + P * (1 - fSnow)
//
// followed by a capped refreeze when Tcorr < 0 and a rain-on-snow severity
// proxy in [0, 1]. The surface counts as snow-covered while SWE > 1 mm.
//
// The degree-day factors are per day but are applied per step regardless of
// the input resolution, so hourly input overstates melt relative to daily
// input. This matches the reference model and is kept deliberately.
//
// # Precipitation Fields
//
// Samples may carry a 24-hour sum, a 1-hour sum, or an undifferentiated
// amount. The first present field in that order is used; a sample with none
// contributes zero precipitation. Whether any sample carried precipitation at
// all determines the result's [DataQuality].
package domain
