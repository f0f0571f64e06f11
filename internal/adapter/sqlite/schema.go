package sqlite

// Timestamps are stored as INTEGER unix seconds (UTC).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS stations (
	id     INTEGER PRIMARY KEY,
	name   TEXT NOT NULL UNIQUE,
	lat    REAL NOT NULL,
	lon    REAL NOT NULL,
	kind   TEXT,
	source TEXT
);

CREATE TABLE IF NOT EXISTS measurements (
	id          INTEGER PRIMARY KEY,
	station_id  INTEGER NOT NULL REFERENCES stations(id),
	measured_at INTEGER NOT NULL,
	pm25        REAL,
	pm10        REAL,
	no2         REAL,
	o3          REAL,
	so2         REAL,
	co          REAL,
	source      TEXT
);
CREATE INDEX IF NOT EXISTS measurements_station_time_idx ON measurements (station_id, measured_at);

CREATE TABLE IF NOT EXISTS weather_observations (
	id           INTEGER PRIMARY KEY,
	datetime_utc INTEGER NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	temp         REAL,
	humidity     REAL,
	wind_speed   REAL,
	wind_dir     REAL,
	pressure     REAL,
	source       TEXT
);
CREATE INDEX IF NOT EXISTS weather_observations_point_idx ON weather_observations (lat, lon, datetime_utc);

CREATE TABLE IF NOT EXISTS model_features (
	id             INTEGER PRIMARY KEY,
	datetime_utc   INTEGER NOT NULL,
	lat            REAL NOT NULL,
	lon            REAL NOT NULL,
	pm25           REAL,
	no2            REAL,
	o3             REAL,
	temp           REAL,
	wind_speed     REAL,
	other_features TEXT
);
CREATE INDEX IF NOT EXISTS model_features_time_idx ON model_features (datetime_utc);

CREATE TABLE IF NOT EXISTS predictions (
	id            INTEGER PRIMARY KEY,
	datetime_utc  INTEGER NOT NULL,
	lat           REAL NOT NULL,
	lon           REAL NOT NULL,
	model_version TEXT,
	created_at    INTEGER NOT NULL DEFAULT (CAST(strftime('%s', 'now') AS INTEGER))
);
`

// json_patch onto an empty object drops the null members.
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
	json_patch('{}', json_object(
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
ORDER BY m.measured_at, s.id
`

const nearestSQL = `SELECT datetime_utc, lat, lon, pm25, no2, o3, temp, wind_speed, other_features
FROM model_features
ORDER BY ((lat - ?) * (lat - ?) + (lon - ?) * (lon - ?)) + ABS(datetime_utc - ?) / 100000.0, id
LIMIT 1`

const insertFeatureSQL = `INSERT INTO model_features
	(datetime_utc, lat, lon, pm25, no2, o3, temp, wind_speed, other_features)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
