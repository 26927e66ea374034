package visits

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS device_visits (
		system_id    TEXT PRIMARY KEY,
		device_model TEXT NOT NULL DEFAULT '',
		visited_at   TIMESTAMPTZ NOT NULL,
		latitude     DOUBLE PRECISION NOT NULL,
		longitude    DOUBLE PRECISION NOT NULL,
		aqi          DOUBLE PRECISION NOT NULL,
		visit_count  BIGINT NOT NULL DEFAULT 1
	)
`

// PostgresStore keeps the latest visit per system id in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL visit store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the device_visits table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Save upserts the visit, replacing any earlier visit for the same system id.
func (s *PostgresStore) Save(ctx context.Context, v Visit) error {
	if v.SystemID == "" {
		return ErrMissingSystemID
	}

	query := `
		INSERT INTO device_visits (system_id, device_model, visited_at, latitude, longitude, aqi)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (system_id) DO UPDATE SET
			device_model = EXCLUDED.device_model,
			visited_at = EXCLUDED.visited_at,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			aqi = EXCLUDED.aqi,
			visit_count = device_visits.visit_count + 1
	`

	_, err := s.pool.Exec(ctx, query,
		v.SystemID,
		v.DeviceModel,
		v.Timestamp,
		v.Lat,
		v.Lon,
		v.AQI,
	)
	return err
}

// Get returns the latest visit for a system id.
func (s *PostgresStore) Get(ctx context.Context, systemID string) (Visit, error) {
	query := `
		SELECT system_id, device_model, visited_at, latitude, longitude, aqi
		FROM device_visits
		WHERE system_id = $1
	`

	var v Visit
	err := s.pool.QueryRow(ctx, query, systemID).Scan(
		&v.SystemID,
		&v.DeviceModel,
		&v.Timestamp,
		&v.Lat,
		&v.Lon,
		&v.AQI,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visit{}, ErrVisitNotFound
		}
		return Visit{}, err
	}

	return v, nil
}
