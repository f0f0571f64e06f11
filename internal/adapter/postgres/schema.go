package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS stations (
	id     SERIAL PRIMARY KEY,
	name   TEXT NOT NULL UNIQUE,
	lat    DOUBLE PRECISION NOT NULL,
	lon    DOUBLE PRECISION NOT NULL,
	kind   TEXT,
	source TEXT
);

CREATE TABLE IF NOT EXISTS measurements (
	id          BIGSERIAL PRIMARY KEY,
	station_id  INTEGER NOT NULL REFERENCES stations(id),
	measured_at TIMESTAMPTZ NOT NULL,
	pm25        DOUBLE PRECISION,
	pm10        DOUBLE PRECISION,
	no2         DOUBLE PRECISION,
	o3          DOUBLE PRECISION,
	so2         DOUBLE PRECISION,
	co          DOUBLE PRECISION,
	source      TEXT
);
CREATE INDEX IF NOT EXISTS measurements_station_time_idx ON measurements (station_id, measured_at);

CREATE TABLE IF NOT EXISTS weather_observations (
	id           BIGSERIAL PRIMARY KEY,
	datetime_utc TIMESTAMPTZ NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	temp         DOUBLE PRECISION,
	humidity     DOUBLE PRECISION,
	wind_speed   DOUBLE PRECISION,
	wind_dir     DOUBLE PRECISION,
	pressure     DOUBLE PRECISION,
	source       TEXT
);
CREATE INDEX IF NOT EXISTS weather_observations_point_idx ON weather_observations (lat, lon, datetime_utc);

CREATE TABLE IF NOT EXISTS model_features (
	id             BIGSERIAL PRIMARY KEY,
	datetime_utc   TIMESTAMPTZ NOT NULL,
	lat            DOUBLE PRECISION NOT NULL,
	lon            DOUBLE PRECISION NOT NULL,
	pm25           DOUBLE PRECISION,
	no2            DOUBLE PRECISION,
	o3             DOUBLE PRECISION,
	temp           DOUBLE PRECISION,
	wind_speed     DOUBLE PRECISION,
	other_features JSONB
);
CREATE INDEX IF NOT EXISTS model_features_time_idx ON model_features (datetime_utc);

CREATE TABLE IF NOT EXISTS predictions (
	id            BIGSERIAL PRIMARY KEY,
	datetime_utc  TIMESTAMPTZ NOT NULL,
	lat           DOUBLE PRECISION NOT NULL,
	lon           DOUBLE PRECISION NOT NULL,
	model_version TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// rebuildFeaturesSQL collapses per-pollutant measurement rows into one row
// per station and instant, then attaches the weather observed at the
// station's exact coordinates and time.
const rebuildFeaturesSQL = `
INSERT INTO model_features (datetime_utc, lat, lon, pm25, no2, o3, temp, wind_speed, other_features)
SELECT
	m.measured_at,
	s.lat,
	s.lon,
	m.pm25,
	m.no2,
	m.o3,
	w.temp,
	w.wind_speed,
	jsonb_strip_nulls(jsonb_build_object(
		'pm10', m.pm10,
		'humidity', w.humidity,
		'wind_dir', w.wind_dir,
		'pressure', w.pressure
	))
FROM (
	SELECT station_id, measured_at,
		MAX(pm25) AS pm25, MAX(pm10) AS pm10, MAX(no2) AS no2, MAX(o3) AS o3
	FROM measurements
	GROUP BY station_id, measured_at
) m
JOIN stations s ON s.id = m.station_id
LEFT JOIN weather_observations w
	ON w.lat = s.lat AND w.lon = s.lon AND w.datetime_utc = m.measured_at
`

// nearestSQL ranks observations by squared degree distance plus the
// absolute time difference in seconds scaled by domain.TimeWeightSeconds.
const nearestSQL = `SELECT ` + columns + ` FROM model_features
ORDER BY ((lat - $1) ^ 2 + (lon - $2) ^ 2)
	+ ABS(EXTRACT(EPOCH FROM (datetime_utc - $3::timestamptz))) / 100000.0,
	id
LIMIT 1`
