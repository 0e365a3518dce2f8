package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every env var that Load() reads.
var allConfigKeys = []string{
	"CREDPOOL_CONFIG",
	"CREDPOOL_LISTEN_ADDR",
	"CREDPOOL_STORE",
	"CREDPOOL_DB_PATH",
	"CREDPOOL_DATABASE_URL",
	"DATABASE_URL",
	"CREDPOOL_FILE_PATH",
	"CREDPOOL_ADMIN_API_KEY",
	"CREDPOOL_UPSTREAM_URL",
	"CREDPOOL_UPSTREAM_TIMEOUT",
	"CREDPOOL_UPSTREAM_RPS",
	"CREDPOOL_FAILURE_THRESHOLD",
	"CREDPOOL_REDIS_ADDR",
	"CREDPOOL_REDIS_PASSWORD",
	"CREDPOOL_REDIS_CHANNEL",
}

// isolateConfigEnv saves and unsets all config env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func writeConfigFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8990", cfg.ListenAddr)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "credpool.db", cfg.DBPath)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.InDelta(t, 2.0, cfg.UpstreamRPS, 1e-9)
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, "credpool:events", cfg.RedisChannel)
	assert.False(t, cfg.AdminEnabled())
	assert.False(t, cfg.HasRedis())
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("CREDPOOL_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("CREDPOOL_STORE", "File")
	t.Setenv("CREDPOOL_FILE_PATH", "/tmp/creds.json")
	t.Setenv("CREDPOOL_ADMIN_API_KEY", "sekrit")
	t.Setenv("CREDPOOL_UPSTREAM_TIMEOUT", "3s")
	t.Setenv("CREDPOOL_UPSTREAM_RPS", "0.5")
	t.Setenv("CREDPOOL_FAILURE_THRESHOLD", "5")
	t.Setenv("CREDPOOL_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "/tmp/creds.json", cfg.FilePath)
	assert.True(t, cfg.AdminEnabled())
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.InDelta(t, 0.5, cfg.UpstreamRPS, 1e-9)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.True(t, cfg.HasRedis())
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolateConfigEnv(t)
	path := writeConfigFile(t, "credpool.yaml", `
listenAddr: 127.0.0.1:7000
store: postgres
databaseUrl: postgres://file/db
adminApiKey: from-file
upstreamTimeout: 20s
`)
	t.Setenv("CREDPOOL_CONFIG", path)
	t.Setenv("CREDPOOL_ADMIN_API_KEY", "from-env")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, "from-env", cfg.AdminAPIKey)
	assert.Equal(t, 20*time.Second, cfg.UpstreamTimeout)
}

func TestLoad_JSONFile(t *testing.T) {
	isolateConfigEnv(t)
	path := writeConfigFile(t, "credpool.json", `{"store": "file", "filePath": "pool.json", "failureThreshold": 2}`)
	t.Setenv("CREDPOOL_CONFIG", path)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "pool.json", cfg.FilePath)
	assert.Equal(t, 2, cfg.FailureThreshold)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("CREDPOOL_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://fallback/db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://fallback/db", cfg.DatabaseURL)

	t.Setenv("CREDPOOL_DATABASE_URL", "postgres://primary/db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary/db", cfg.DatabaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "unknown store", env: map[string]string{"CREDPOOL_STORE": "mongo"}, wantErr: "unknown store"},
		{name: "postgres without url", env: map[string]string{"CREDPOOL_STORE": "postgres"}, wantErr: "DATABASE_URL"},
		{name: "bad duration", env: map[string]string{"CREDPOOL_UPSTREAM_TIMEOUT": "soon"}, wantErr: "CREDPOOL_UPSTREAM_TIMEOUT"},
		{name: "bad rps", env: map[string]string{"CREDPOOL_UPSTREAM_RPS": "fast"}, wantErr: "CREDPOOL_UPSTREAM_RPS"},
		{name: "zero threshold", env: map[string]string{"CREDPOOL_FAILURE_THRESHOLD": "0"}, wantErr: "failure threshold"},
		{name: "missing file", env: map[string]string{"CREDPOOL_CONFIG": "/nonexistent/credpool.yaml"}, wantErr: "read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
