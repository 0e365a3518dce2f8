package backend

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credpool/internal/adapter/driven/storetest"
	"github.com/ericfisherdev/credpool/internal/config"
	"github.com/ericfisherdev/credpool/internal/domain/model"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name        string
		cfg         func(dir string) *config.Config
		wantVersion uint
	}{
		{
			name: "sqlite",
			cfg: func(dir string) *config.Config {
				return &config.Config{Store: config.StoreSQLite, DBPath: filepath.Join(dir, "credpool.db")}
			},
			wantVersion: 1,
		},
		{
			name: "file",
			cfg: func(dir string) *config.Config {
				return &config.Config{Store: config.StoreFile, FilePath: filepath.Join(dir, "credentials.json")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := tt.cfg(t.TempDir())

			store, err := Open(ctx, cfg, slog.Default())
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, store.Close()) })
			assert.Equal(t, cfg.Store, store.Kind)

			version, dirty, err := store.SchemaVersion()
			require.NoError(t, err)
			assert.False(t, dirty)
			assert.Equal(t, tt.wantVersion, version)

			id, err := store.Create(ctx, model.CreateSpec{RefreshToken: storetest.Token("rt-")})
			require.NoError(t, err)

			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, got.ID)
		})
	}
}

func TestOpen_UnknownStore(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: "etcd"}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")
}
