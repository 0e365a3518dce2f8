package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credpool/internal/adapter/driven/storetest"
	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

func TestStore_Contract(t *testing.T) {
	storetest.RunContractTests(t, storetest.ContractTest{
		NewStore: func(t *testing.T, now func() time.Time) driven.CredentialStore {
			s, err := Open(filepath.Join(t.TempDir(), "credentials.json"), WithClock(now))
			require.NoError(t, err)
			return s
		},
	})
}

func TestStore_ReopenPreservesRecordsAndTombstones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	clock := storetest.NewClock()
	ctx := context.Background()

	s, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)

	first, err := s.Create(ctx, model.CreateSpec{RefreshToken: storetest.Token("a-"), Priority: 2})
	require.NoError(t, err)
	second, err := s.Create(ctx, model.CreateSpec{RefreshToken: storetest.Token("b-"), Priority: 1})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, first, model.UpdateSpec{AccessToken: model.Ptr("at")}))
	require.NoError(t, s.Delete(ctx, second))

	reopened, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)

	all, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first, all[0].ID)
	assert.Equal(t, "at", all[0].AccessToken)

	_, err = reopened.Get(ctx, second)
	assert.True(t, model.IsNotFound(err))

	third, err := reopened.Create(ctx, model.CreateSpec{RefreshToken: storetest.Token("c-")})
	require.NoError(t, err)
	assert.Greater(t, third, second)
}

func TestStore_OpenMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	_, err = Open(empty)
	require.NoError(t, err)
}

func TestStore_OpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode credential file")
}

func TestStore_NextIDSurvivesDeletingHighestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Create(ctx, model.CreateSpec{RefreshToken: storetest.Token("x-")})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nextId": 2`)
	assert.Contains(t, string(data), `"deletedAt"`)
}
