// Package domain models the air-quality feature table and the artifacts the
// training and inference pipeline produces from it.
//
// # Data Source
//
// Observations come from the model_features table, which the feature rebuild
// job fills by joining ground-station measurements (OpenAQ, OpenWeather air
// pollution), station coordinates and weather observations on station and
// UTC timestamp. Satellite products (TROPOMI, TEMPO) land in the same table
// through the external ingest scripts.
//
// # Conventions
//
// Missing values:
//
//	A nil pointer means "not measured at this station/time". It is never
//	interpreted as zero. NaN and Inf read from a store are treated as missing.
//
// Column names:
//
//	temp, wind_speed, no2, o3, pm25, lat, lon are first-class columns.
//	Anything else (pm10, humidity, wind_dir, pressure, ...) lives in
//	OtherFeatures and is addressed by its key. hour_of_day is derived from
//	the UTC timestamp.
//
// Spatio-temporal distance:
//
//	(Δlat)² + (Δlon)² + |Δt seconds| / 100000
//
//	Degrees are compared directly. An offset of 0.01° (about 1.1 km near the
//	equator) weighs 1e-4, the same as a 10 second time difference.
//	See [Observation.Distance].
//
// # Model bundles
//
// A bundle pairs a fitted regressor with the ordered feature schema it was
// trained on and the per-column training medians. The schema is reused
// verbatim at inference: every feature row is built in schema order and any
// value the live lookup cannot provide is filled by a default, never omitted.
package domain
