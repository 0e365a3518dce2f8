// Package commands implements the credctl subcommands.
package commands

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/credpool/internal/adapter/driven/backend"
	"github.com/ericfisherdev/credpool/internal/config"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// Env carries what every subcommand needs.
type Env struct {
	Logger *slog.Logger

	// Open returns the configured store and a function that releases it.
	Open func(ctx context.Context) (driven.CredentialStore, func() error, error)
}

// NewEnv returns an Env that opens the store described by the process
// configuration, applying pending migrations.
func NewEnv(logger *slog.Logger) *Env {
	env := &Env{Logger: logger}
	env.Open = func(ctx context.Context) (driven.CredentialStore, func() error, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		store, err := backend.Open(ctx, cfg, env.Logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return env
}

// withStore opens the store, runs fn, and closes the store.
func (e *Env) withStore(ctx context.Context, fn func(driven.CredentialStore) error) error {
	store, closeFn, err := e.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			e.Logger.Error("error closing credential store", "error", closeErr)
		}
	}()
	return fn(store)
}
