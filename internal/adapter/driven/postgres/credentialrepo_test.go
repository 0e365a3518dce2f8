package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credpool/internal/adapter/driven/sqlkit"
	"github.com/ericfisherdev/credpool/internal/domain/model"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

var credentialColumns = []string{
	"id", "refresh_token", "access_token", "profile_arn", "expires_at", "auth_method",
	"client_id", "client_secret", "priority", "region", "machine_id", "failure_count", "disabled",
	"created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*CredentialRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return NewCredentialRepo(db, WithClock(func() time.Time { return testNow })), mock
}

func TestCredentialRepo_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := "refresh-token-0123456789abcdefghijklmnop"

	mock.ExpectQuery(
		"INSERT INTO credentials (refresh_token, auth_method, client_id, client_secret, priority, region, machine_id, failure_count, disabled, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id").
		WithArgs(token, "social", nil, nil, 2, "eu-west-1", nil, 0, false, testNow, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	id, err := repo.Create(context.Background(), model.CreateSpec{RefreshToken: token, Priority: 2, Region: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
}

func TestCredentialRepo_CreateInvalidSkipsDatabase(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.Create(context.Background(), model.CreateSpec{RefreshToken: "short"})
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidCredential, model.KindOf(err))
}

func TestCredentialRepo_Update(t *testing.T) {
	tests := []struct {
		name     string
		spec     model.UpdateSpec
		query    string
		args     []any
		affected int64
		notFound bool
	}{
		{
			name:     "no fields advances updated_at only",
			spec:     model.UpdateSpec{},
			query:    "UPDATE credentials SET updated_at = $1 WHERE id = $2 AND deleted_at IS NULL",
			args:     []any{testNow, int64(7)},
			affected: 1,
		},
		{
			name:     "fields bound in clause order",
			spec:     model.UpdateSpec{RefreshToken: model.Ptr("rt"), Priority: model.Ptr(3), Disabled: model.Ptr(false)},
			query:    "UPDATE credentials SET updated_at = $1, refresh_token = $2, priority = $3, disabled = $4 WHERE id = $5 AND deleted_at IS NULL",
			args:     []any{testNow, "rt", 3, false, int64(7)},
			affected: 1,
		},
		{
			name:     "zero rows is not found",
			spec:     model.UpdateSpec{FailureCount: model.Ptr(0)},
			query:    "UPDATE credentials SET updated_at = $1, failure_count = $2 WHERE id = $3 AND deleted_at IS NULL",
			args:     []any{testNow, 0, int64(7)},
			affected: 0,
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)

			mock.ExpectExec(tt.query).
				WithArgs(toDriverArgs(tt.args)...).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.Update(context.Background(), 7, tt.spec)
			if tt.notFound {
				require.Error(t, err)
				assert.True(t, model.IsNotFound(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCredentialRepo_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)
	const query = "UPDATE credentials SET deleted_at = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL"

	mock.ExpectExec(query).WithArgs(testNow, testNow, int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(testNow, testNow, int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 2))

	err := repo.Delete(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestCredentialRepo_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	expires := testNow.Add(time.Hour)

	mock.ExpectQuery(sqlkit.CountLive()).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(sqlkit.SelectLive("", "LIMIT $1 OFFSET $2")).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(credentialColumns).
			AddRow(int64(3), "rt3", "at3", nil, expires, "social", nil, nil, 1, nil, "m3", 0, false, testNow, testNow).
			AddRow(int64(4), "rt4", nil, "arn4", nil, "idc", "cid", "sec", 2, "us-east-1", nil, 4, true, testNow, testNow))

	page, err := repo.List(context.Background(), 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, int64(3), first.ID)
	assert.Equal(t, "at3", first.AccessToken)
	require.NotNil(t, first.ExpiresAt)
	assert.True(t, expires.Equal(*first.ExpiresAt))
	assert.Equal(t, "m3", first.MachineID)

	second := page.Items[1]
	assert.Equal(t, model.AuthMethodIDC, second.AuthMethod)
	assert.Equal(t, "arn4", second.ProfileArn)
	assert.Nil(t, second.ExpiresAt)
	assert.Equal(t, 4, second.FailureCount)
	assert.True(t, second.Disabled)
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(sqlkit.SelectLive("id = $1", "")).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestCredentialRepo_BatchDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	const query = "UPDATE credentials SET deleted_at = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL"

	mock.ExpectExec(query).WithArgs(testNow, testNow, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(testNow, testNow, int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := repo.BatchDelete(context.Background(), []int64{1, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(99), result.Errors[0].ID)
}

func TestCredentialRepo_BatchCreateCancelled(t *testing.T) {
	repo, _ := newMockRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.BatchCreate(ctx, []model.CreateSpec{{RefreshToken: "x"}})
	require.ErrorIs(t, err, context.Canceled)
}

func toDriverArgs(args []any) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = equalArg{want: a}
	}
	return out
}

// equalArg compares after normalizing Go ints to the int64 the driver sees.
type equalArg struct{ want any }

func (e equalArg) Match(v driver.Value) bool {
	if w, ok := e.want.(int); ok {
		e.want = int64(w)
	}
	if w, ok := e.want.(time.Time); ok {
		got, ok := v.(time.Time)
		return ok && w.Equal(got)
	}
	return v == e.want
}
