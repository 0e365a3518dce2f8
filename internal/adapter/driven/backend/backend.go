// Package backend opens the credential store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/credpool/internal/adapter/driven/filestore"
	"github.com/ericfisherdev/credpool/internal/adapter/driven/postgres"
	"github.com/ericfisherdev/credpool/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/credpool/internal/config"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// Store is an opened credential store plus the function that releases it.
type Store struct {
	driven.CredentialStore
	Kind    config.StoreKind
	close   func() error
	version func() (uint, bool, error)
}

// SchemaVersion reports the applied migration version and whether the last
// migration left the schema dirty. The file store has no schema and reports 0.
func (s *Store) SchemaVersion() (uint, bool, error) {
	if s.version == nil {
		return 0, false, nil
	}
	return s.version()
}

// Close releases the backend's resources.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := sqlite.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("credential store opened", "store", cfg.Store, "path", cfg.DBPath)
		return &Store{
			CredentialStore: sqlite.NewCredentialRepo(db),
			Kind:            cfg.Store,
			close:           db.Close,
			version:         func() (uint, bool, error) { return sqlite.MigrationVersion(db.Writer) },
		}, nil

	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("credential store opened", "store", cfg.Store)
		return &Store{
			CredentialStore: postgres.NewCredentialRepo(db),
			Kind:            cfg.Store,
			close:           db.Close,
			version:         func() (uint, bool, error) { return postgres.MigrationVersion(db) },
		}, nil

	case config.StoreFile:
		fs, err := filestore.Open(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		logger.Info("credential store opened", "store", cfg.Store, "path", cfg.FilePath)
		return &Store{CredentialStore: fs, Kind: cfg.Store}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
