package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/punchclock/internal/config"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/observability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps identities and attendance events in Postgres with the
// vectors in a pgvector column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations applies every embedded migration not yet recorded in the
// database. An up-to-date schema is not an error.
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}
	return nil
}

// --- Identities ---

func (s *PostgresStore) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	defer observeStore("postgres", "load_identities", time.Now())

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, vector, registered_at FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var ids []models.Identity
	for rows.Next() {
		var (
			id  models.Identity
			vec *pgvector.Vector
		)
		if err := rows.Scan(&id.ID, &id.Name, &vec, &id.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if vec != nil {
			id.Vector = vec.Slice()
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return ids, nil
}

// SaveIdentities replaces the stored identity set in one transaction.
func (s *PostgresStore) SaveIdentities(ctx context.Context, identities []models.Identity) error {
	defer observeStore("postgres", "save_identities", time.Now())

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM identities`); err != nil {
			return fmt.Errorf("clear identities: %w", err)
		}
		batch := &pgx.Batch{}
		for _, id := range identities {
			var vec *pgvector.Vector
			if id.Vector != nil {
				v := pgvector.NewVector(id.Vector)
				vec = &v
			}
			batch.Queue(
				`INSERT INTO identities (id, name, vector, registered_at) VALUES ($1, $2, $3, $4)`,
				id.ID, id.Name, vec, id.RegisteredAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert identities: %w", err)
		}
		return nil
	})
}

// --- Attendance events ---

func (s *PostgresStore) LoadEvents(ctx context.Context) ([]models.AttendanceEvent, error) {
	defer observeStore("postgres", "load_events", time.Now())

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, identity_id, kind, occurred_at, day, duration_hours
		 FROM attendance_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load attendance events: %w", err)
	}
	defer rows.Close()

	var events []models.AttendanceEvent
	for rows.Next() {
		var ev models.AttendanceEvent
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.IdentityID, &ev.Kind,
			&ev.OccurredAt, &ev.Date, &ev.DurationHours); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev models.AttendanceEvent) error {
	defer observeStore("postgres", "append_event", time.Now())

	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_events (id, name, identity_id, kind, occurred_at, day, duration_hours)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Name, ev.IdentityID, ev.Kind, ev.OccurredAt, ev.Date, ev.DurationHours)
	if err != nil {
		return fmt.Errorf("append attendance event: %w", err)
	}
	return nil
}

func observeStore(backend, op string, start time.Time) {
	observability.StoreDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
