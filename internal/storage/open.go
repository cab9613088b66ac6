package storage

import (
	"context"
	"fmt"

	"github.com/your-org/punchclock/internal/config"
	"github.com/your-org/punchclock/internal/models"
)

// Backend persists both identities and attendance events.
type Backend interface {
	LoadIdentities(ctx context.Context) ([]models.Identity, error)
	SaveIdentities(ctx context.Context, identities []models.Identity) error
	LoadEvents(ctx context.Context) ([]models.AttendanceEvent, error)
	AppendEvent(ctx context.Context, ev models.AttendanceEvent) error
	Ping(ctx context.Context) error
}

// Open connects the configured backend. The returned func releases it.
func Open(ctx context.Context, cfg *config.Config) (Backend, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		if err := RunMigrations(cfg.Database.DSN()); err != nil {
			return nil, nil, err
		}
		db, err := NewPostgresStore(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case config.BackendFile:
		fs, err := NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
