// Package storetest is the behavioral contract every CredentialStore backend
// must pass. Backend packages call RunContractTests from their own tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// Clock is a deterministic time source that advances one second per read,
// so consecutive store writes always observe a later timestamp.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a Clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)}
}

// Now returns the next instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// ContractTest describes a backend under test.
type ContractTest struct {
	// NewStore returns an empty store that reads time from now.
	NewStore func(t *testing.T, now func() time.Time) driven.CredentialStore
}

// Token returns a refresh token long enough to pass validation.
func Token(seed string) string {
	return seed + strings.Repeat("x", model.MinRefreshTokenLength)
}

// RunContractTests runs the full CredentialStore contract against a backend.
func RunContractTests(t *testing.T, contract ContractTest) {
	t.Helper()
	require.NotNil(t, contract.NewStore, "NewStore cannot be nil")

	cases := []struct {
		name string
		fn   func(t *testing.T, c ContractTest)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateRejectsInvalidSpec", testCreateRejectsInvalidSpec},
		{"OrderingByPriorityThenID", testOrdering},
		{"ListPagination", testListPagination},
		{"ListPageSizeAboveTotal", testListLargePageSize},
		{"UpdatePartial", testUpdatePartial},
		{"UpdateWithoutFieldsAdvancesUpdatedAt", testUpdateEmpty},
		{"UpdateMissingOrDeleted", testUpdateMissing},
		{"DeleteHidesRecord", testDeleteHidesRecord},
		{"IDsNeverReused", testIDsNeverReused},
		{"BatchCreateReportsFailuresByIndex", testBatchCreate},
		{"BatchDeleteReportsFailuresByID", testBatchDelete},
		{"ConcurrentCreates", testConcurrentCreates},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, contract)
		})
	}
}

func newStore(t *testing.T, c ContractTest) (driven.CredentialStore, *Clock) {
	t.Helper()
	clock := NewClock()
	return c.NewStore(t, clock.Now), clock
}

func mustCreate(t *testing.T, store driven.CredentialStore, priority int) int64 {
	t.Helper()
	id, err := store.Create(context.Background(), model.CreateSpec{
		RefreshToken: Token(fmt.Sprintf("p%d-", priority)),
		Priority:     priority,
	})
	require.NoError(t, err)
	return id
}

func ids(recs []model.CredentialRecord) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func testCreateAndGet(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	id, err := store.Create(ctx, model.CreateSpec{
		RefreshToken: Token("rt-"),
		AuthMethod:   model.AuthMethodIDC,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Priority:     3,
		Region:       "us-east-1",
		MachineID:    "machine-1",
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, Token("rt-"), got.RefreshToken)
	assert.Equal(t, model.AuthMethodIDC, got.AuthMethod)
	assert.Equal(t, "client-1", got.ClientID)
	assert.Equal(t, "secret-1", got.ClientSecret)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, "us-east-1", got.Region)
	assert.Equal(t, "machine-1", got.MachineID)
	assert.Empty(t, got.AccessToken)
	assert.Nil(t, got.ExpiresAt)
	assert.Zero(t, got.FailureCount)
	assert.False(t, got.Disabled)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, model.LifecycleActive, got.Lifecycle())

	social, err := store.Create(ctx, model.CreateSpec{RefreshToken: Token("social-")})
	require.NoError(t, err)
	rec, err := store.Get(ctx, social)
	require.NoError(t, err)
	assert.Equal(t, model.AuthMethodSocial, rec.AuthMethod)
}

func testCreateRejectsInvalidSpec(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	_, err := store.Create(ctx, model.CreateSpec{RefreshToken: "short"})
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidCredential, model.KindOf(err))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testOrdering(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	first := mustCreate(t, store, 2)
	second := mustCreate(t, store, 1)
	third := mustCreate(t, store, 3)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{second, first, third}, ids(all))

	// Ties break by ascending id, regardless of insertion pattern.
	tieA := mustCreate(t, store, 1)
	mustCreate(t, store, 0)

	all, err = store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Less(all[i]), "records %d and %d out of order", all[i-1].ID, all[i].ID)
	}
	assert.Equal(t, []int64{second, tieA}, ids(all[1:3]))

	exported, err := store.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(all), ids(exported))
}

func testListPagination(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	for _, p := range []int{4, 0, 3, 1, 2} {
		mustCreate(t, store, p)
	}

	page1, err := store.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page1.Total)
	assert.Equal(t, 3, page1.TotalPages)
	assert.Equal(t, 1, page1.Page)
	assert.Equal(t, 2, page1.PageSize)
	require.Len(t, page1.Items, 2)
	assert.Equal(t, 0, page1.Items[0].Priority)
	assert.Equal(t, 1, page1.Items[1].Priority)

	page3, err := store.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3.Items, 1)
	assert.Equal(t, 4, page3.Items[0].Priority)

	past, err := store.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, past.Items)
	assert.Equal(t, 5, past.Total)
	assert.Equal(t, 3, past.TotalPages)
}

func testListLargePageSize(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	for i := range 150 {
		mustCreate(t, store, i%7)
	}

	res, err := store.List(ctx, 1, 200)
	require.NoError(t, err)
	assert.Len(t, res.Items, 150)
	assert.Equal(t, 150, res.Total)
	assert.Equal(t, 200, res.PageSize)
	assert.Equal(t, 1, res.TotalPages)
}

func testUpdatePartial(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	id := mustCreate(t, store, 5)
	before, err := store.Get(ctx, id)
	require.NoError(t, err)

	expires := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	err = store.Update(ctx, id, model.UpdateSpec{
		AccessToken:  model.Ptr("access-1"),
		ProfileArn:   model.Ptr("arn:aws:profile/1"),
		ExpiresAt:    &expires,
		FailureCount: model.Ptr(2),
		Disabled:     model.Ptr(true),
	})
	require.NoError(t, err)

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "access-1", after.AccessToken)
	assert.Equal(t, "arn:aws:profile/1", after.ProfileArn)
	require.NotNil(t, after.ExpiresAt)
	assert.True(t, expires.Equal(*after.ExpiresAt))
	assert.Equal(t, 2, after.FailureCount)
	assert.True(t, after.Disabled)

	assert.Equal(t, before.Priority, after.Priority)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)
	assert.Equal(t, before.MachineID, after.MachineID)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func testUpdateEmpty(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	id := mustCreate(t, store, 1)
	before, err := store.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, id, model.UpdateSpec{}))

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	after.UpdatedAt = before.UpdatedAt
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)
	assert.Equal(t, before.Priority, after.Priority)
	assert.Equal(t, before.Disabled, after.Disabled)
	assert.Equal(t, before.FailureCount, after.FailureCount)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
}

func testUpdateMissing(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	err := store.Update(ctx, 42, model.UpdateSpec{Priority: model.Ptr(1)})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))

	id := mustCreate(t, store, 1)
	require.NoError(t, store.Delete(ctx, id))

	err = store.Update(ctx, id, model.UpdateSpec{})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func testDeleteHidesRecord(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	mustCreate(t, store, 1)
	victim := mustCreate(t, store, 2)
	mustCreate(t, store, 3)

	require.NoError(t, store.Delete(ctx, victim))

	_, err := store.Get(ctx, victim)
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(all), victim)

	exported, err := store.ExportAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(exported), victim)

	page, err := store.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.NotContains(t, ids(page.Items), victim)

	for range 2 {
		err = store.Delete(ctx, victim)
		require.Error(t, err)
		assert.True(t, model.IsNotFound(err))
	}

	err = store.Delete(ctx, 999)
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func testIDsNeverReused(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	mustCreate(t, store, 1)
	last := mustCreate(t, store, 1)
	require.NoError(t, store.Delete(ctx, last))

	next := mustCreate(t, store, 1)
	assert.Greater(t, next, last)
}

func testBatchCreate(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	specs := []model.CreateSpec{
		{RefreshToken: Token("a-")},
		{RefreshToken: ""},
		{RefreshToken: Token("b-"), Priority: 1},
		{RefreshToken: Token("c-"), AuthMethod: model.AuthMethodIDC},
		{RefreshToken: Token("d-"), Priority: 2},
	}

	result, err := store.BatchCreate(ctx, specs)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, 3, result.Errors[1].Index)
	assert.NotEmpty(t, result.Errors[0].Message)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testBatchDelete(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	first := mustCreate(t, store, 1)
	mustCreate(t, store, 2)

	result, err := store.BatchDelete(ctx, []int64{first, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(99), result.Errors[0].ID)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Contains(t, result.Errors[0].Message, "not found")

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testConcurrentCreates(t *testing.T, c ContractTest) {
	store, _ := newStore(t, c)
	ctx := context.Background()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Create(ctx, model.CreateSpec{RefreshToken: Token(fmt.Sprintf("w%d-", i)), Priority: i})
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			seen[id] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, workers)
}
