// Package postgres implements the feature store, the feature-table rebuild
// and the prediction log on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/adapter/featuresql"
	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const columns = featuresql.Columns

// Store reads and writes the air-quality tables.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu          sync.Mutex
	predColumns map[string]bool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, domain.NewDataAccessError("open postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.NewDataAccessError("ping postgres", err)
	}
	return &Store{pool: pool, logger: logger, predColumns: make(map[string]bool)}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return domain.NewDataAccessError("migrate", err)
	}
	return nil
}

// Fetch returns the feature-table rows matching q.
func (s *Store) Fetch(ctx context.Context, q domain.Query) ([]domain.Observation, error) {
	sql, args := featuresql.BuildFetch(q, featuresql.Postgres)
	rows, err := s.pool.Query(ctx, sql, args...)
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
	o, err := scanObservation(s.pool.QueryRow(ctx, nearestSQL, lat, lon, at.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Observation{}, false, nil
	}
	if err != nil {
		return domain.Observation{}, false, domain.NewDataAccessError("nearest observation", err)
	}
	return o, true, nil
}

// RebuildFeatures truncates model_features and refills it from the
// measurement, station and weather tables in one transaction.
func (s *Store) RebuildFeatures(ctx context.Context) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE model_features"); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, rebuildFeaturesSQL)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
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
	var added []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range records {
			name, err := featuresql.PredictionColumn(r.Target)
			if err != nil {
				return err
			}
			col := pgx.Identifier{name}.Sanitize()
			if !s.knownColumn(name) {
				if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE predictions ADD COLUMN IF NOT EXISTS %s DOUBLE PRECISION", col)); err != nil {
					return err
				}
				added = append(added, name)
			}
			_, err = tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO predictions (datetime_utc, lat, lon, %s, model_version) VALUES ($1, $2, $3, $4, $5)", col),
				r.Timestamp.UTC(), r.Lat, r.Lon, r.Value, r.ModelVersion,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewDataAccessError("append predictions", err)
	}

	s.mu.Lock()
	for _, name := range added {
		s.predColumns[name] = true
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) knownColumn(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predColumns[name]
}

func scanObservation(row pgx.Row) (domain.Observation, error) {
	var (
		o     domain.Observation
		other []byte
	)
	err := row.Scan(&o.Timestamp, &o.Lat, &o.Lon, &o.PM25, &o.NO2, &o.O3, &o.Temp, &o.WindSpeed, &other)
	if err != nil {
		return domain.Observation{}, err
	}
	o.Timestamp = o.Timestamp.UTC()
	o.PM25 = featuresql.Nullable(o.PM25)
	o.NO2 = featuresql.Nullable(o.NO2)
	o.O3 = featuresql.Nullable(o.O3)
	o.Temp = featuresql.Nullable(o.Temp)
	o.WindSpeed = featuresql.Nullable(o.WindSpeed)
	if o.OtherFeatures, err = featuresql.ParseOtherFeatures(other); err != nil {
		return domain.Observation{}, err
	}
	return o, nil
}
