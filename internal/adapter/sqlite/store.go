// Package sqlite implements the feature store and prediction log on an
// embedded SQLite database (modernc.org/sqlite, no cgo). It backs local
// snapshots, demos and tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/adapter/featuresql"
	"github.com/couchcryptid/air-quality-model/internal/domain"
	_ "modernc.org/sqlite"
)

// Store reads and writes the air-quality tables.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu          sync.Mutex
	predColumns map[string]bool
}

// Open opens the database at dsn. An in-memory database is limited to one
// connection so every query sees the same data.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.NewDataAccessError("open sqlite", err)
	}
	if dsn == ":memory:" || dsn == "file::memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck,gosec // ping error takes precedence
		return nil, domain.NewDataAccessError("ping sqlite", err)
	}
	return &Store{db: db, logger: logger, predColumns: make(map[string]bool)}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return domain.NewDataAccessError("migrate", err)
	}
	return nil
}

// Fetch returns the feature-table rows matching q.
func (s *Store) Fetch(ctx context.Context, q domain.Query) ([]domain.Observation, error) {
	query, args := featuresql.BuildFetch(q, featuresql.SQLite)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewDataAccessError("fetch observations", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, domain.NewDataAccessError("scan observation", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDataAccessError("fetch observations", err)
	}
	s.logger.Debug("observations fetched", "rows", len(out))
	return out, nil
}

// Nearest returns the observation minimizing the spatio-temporal distance.
func (s *Store) Nearest(ctx context.Context, lat, lon float64, at time.Time) (domain.Observation, bool, error) {
	row := s.db.QueryRowContext(ctx, nearestSQL, lat, lat, lon, lon, at.UTC().Unix())
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Observation{}, false, nil
	}
	if err != nil {
		return domain.Observation{}, false, domain.NewDataAccessError("nearest observation", err)
	}
	return o, true, nil
}

// InsertObservations appends rows to model_features.
func (s *Store) InsertObservations(ctx context.Context, obs []domain.Observation) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertFeatureSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, o := range obs {
			var other any
			if len(o.OtherFeatures) > 0 {
				b, err := json.Marshal(o.OtherFeatures)
				if err != nil {
					return err
				}
				other = string(b)
			}
			if _, err := stmt.ExecContext(ctx, o.Timestamp.UTC().Unix(), o.Lat, o.Lon,
				o.PM25, o.NO2, o.O3, o.Temp, o.WindSpeed, other); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewDataAccessError("insert observations", err)
	}
	return nil
}

// RebuildFeatures empties model_features and refills it from the
// measurement, station and weather tables in one transaction.
func (s *Store) RebuildFeatures(ctx context.Context) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM model_features"); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, rebuildFeaturesSQL)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, domain.NewDataAccessError("rebuild model_features", err)
	}
	s.logger.Info("model_features rebuilt", "rows", n)
	return n, nil
}

// Append writes prediction records, adding the per-target value column on
// first use.
func (s *Store) Append(ctx context.Context, records []domain.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		col, err := s.ensurePredictionColumn(ctx, r.Target)
		if err != nil {
			return domain.NewDataAccessError("append predictions", err)
		}
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO predictions (datetime_utc, lat, lon, "%s", model_version) VALUES (?, ?, ?, ?, ?)`, col),
			r.Timestamp.UTC().Unix(), r.Lat, r.Lon, r.Value, r.ModelVersion,
		)
		if err != nil {
			return domain.NewDataAccessError("append predictions", err)
		}
	}
	return nil
}

func (s *Store) ensurePredictionColumn(ctx context.Context, target string) (string, error) {
	col, err := featuresql.PredictionColumn(target)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.predColumns[col] {
		return col, nil
	}

	exists, err := s.hasColumn(ctx, "predictions", col)
	if err != nil {
		return "", err
	}
	if !exists {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE predictions ADD COLUMN "%s" REAL`, col)); err != nil {
			return "", err
		}
		s.logger.Info("prediction log column added", "column", col)
	}
	s.predColumns[col] = true
	return col, nil
}

func (s *Store) hasColumn(ctx context.Context, table, col string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == col {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck,gosec // fn error takes precedence
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(row scanner) (domain.Observation, error) {
	var (
		o     domain.Observation
		ts    int64
		other sql.NullString
	)
	if err := row.Scan(&ts, &o.Lat, &o.Lon, &o.PM25, &o.NO2, &o.O3, &o.Temp, &o.WindSpeed, &other); err != nil {
		return domain.Observation{}, err
	}
	o.Timestamp = time.Unix(ts, 0).UTC()
	o.PM25 = featuresql.Nullable(o.PM25)
	o.NO2 = featuresql.Nullable(o.NO2)
	o.O3 = featuresql.Nullable(o.O3)
	o.Temp = featuresql.Nullable(o.Temp)
	o.WindSpeed = featuresql.Nullable(o.WindSpeed)

	var err error
	if other.Valid {
		if o.OtherFeatures, err = featuresql.ParseOtherFeatures([]byte(other.String)); err != nil {
			return domain.Observation{}, err
		}
	}
	return o, nil
}

// Handle exposes the underlying database for seeding tools and tests.
func (s *Store) Handle() *sql.DB { return s.db }
