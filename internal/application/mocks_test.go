package application

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// testToken returns a refresh token long enough to pass validation.
func testToken(seed string) string {
	return seed + strings.Repeat("x", model.MinRefreshTokenLength)
}

// --- mockStore: in-memory CredentialStore ---

type mockStore struct {
	mu        sync.Mutex
	records   []model.CredentialRecord
	nextID    int64
	updates   []model.UpdateSpec
	updateErr error
	deleteErr error
}

var _ driven.CredentialStore = (*mockStore)(nil)

func newMockStore(records ...model.CredentialRecord) *mockStore {
	s := &mockStore{records: records}
	for _, r := range records {
		s.nextID = max(s.nextID, r.ID)
	}
	return s
}

func (m *mockStore) index(id int64) int {
	return slices.IndexFunc(m.records, func(r model.CredentialRecord) bool { return r.ID == id })
}

func (m *mockStore) List(ctx context.Context, page, pageSize int) (model.PaginatedResult[model.CredentialRecord], error) {
	all, _ := m.ListAll(ctx)
	return model.Paginate(all, page, pageSize), nil
}

func (m *mockStore) ListAll(_ context.Context) ([]model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records), nil
}

func (m *mockStore) Get(_ context.Context, id int64) (*model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return nil, model.NotFound(id)
	}
	rec := m.records[i]
	return &rec, nil
}

func (m *mockStore) Create(_ context.Context, spec model.CreateSpec) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.records = append(m.records, model.CredentialRecord{
		ID:           m.nextID,
		RefreshToken: spec.RefreshToken,
		AuthMethod:   spec.AuthMethod,
		Priority:     spec.Priority,
	})
	return m.nextID, nil
}

func (m *mockStore) Update(_ context.Context, id int64, spec model.UpdateSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	i := m.index(id)
	if i < 0 {
		return model.NotFound(id)
	}
	spec.Apply(&m.records[i])
	m.updates = append(m.updates, spec)
	return nil
}

func (m *mockStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	i := m.index(id)
	if i < 0 {
		return model.NotFound(id)
	}
	m.records = slices.Delete(m.records, i, i+1)
	return nil
}

func (m *mockStore) BatchCreate(ctx context.Context, specs []model.CreateSpec) (model.BatchResult, error) {
	var res model.BatchResult
	for range specs {
		res.Succeed()
	}
	return res, nil
}

func (m *mockStore) BatchDelete(ctx context.Context, ids []int64) (model.BatchResult, error) {
	var res model.BatchResult
	for i, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			res.Fail(i, id, err)
			continue
		}
		res.Succeed()
	}
	return res, nil
}

func (m *mockStore) ExportAll(ctx context.Context) ([]model.CredentialRecord, error) {
	return m.ListAll(ctx)
}

// --- mockUpstream ---

type mockUpstream struct {
	refreshed  model.RefreshedToken
	refreshErr error
	usage      model.UsageInfo
	usageErr   error
	onFetch    func()

	refreshCalls int
	usageCalls   int
	lastUsageRec model.CredentialRecord
}

func (m *mockUpstream) RefreshToken(_ context.Context, _ model.CredentialRecord) (model.RefreshedToken, error) {
	m.refreshCalls++
	return m.refreshed, m.refreshErr
}

func (m *mockUpstream) FetchUsage(_ context.Context, rec model.CredentialRecord) (model.UsageInfo, error) {
	m.usageCalls++
	m.lastUsageRec = rec
	if m.onFetch != nil {
		m.onFetch()
	}
	return m.usage, m.usageErr
}

// --- mockRotation: scripted RotationManager ---

type mockRotation struct {
	mu       sync.Mutex
	snapshot model.Snapshot
	full     []model.CredentialRecord

	setDisabledErr error
	switchErr      error
	switchTo       int64
	usage          model.UsageInfo
	usageErr       error
	addErr         map[string]error
	deleteErr      map[int64]error
	nextID         int64

	switchCalls int
	priorities  map[int64]int
	resets      []int64
	deleted     []int64
}

func (m *mockRotation) LiveSnapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot
	snap.Entries = slices.Clone(m.snapshot.Entries)
	return snap
}

func (m *mockRotation) FullSnapshot() []model.CredentialRecord {
	return slices.Clone(m.full)
}

func (m *mockRotation) SetDisabled(_ context.Context, id int64, disabled bool) error {
	if m.setDisabledErr != nil {
		return m.setDisabledErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.snapshot.Entries {
		if m.snapshot.Entries[i].ID == id {
			m.snapshot.Entries[i].Disabled = disabled
			return nil
		}
	}
	return model.NotFound(id)
}

func (m *mockRotation) SetPriority(_ context.Context, id int64, priority int) error {
	if m.priorities == nil {
		m.priorities = map[int64]int{}
	}
	m.priorities[id] = priority
	return nil
}

func (m *mockRotation) ResetAndEnable(_ context.Context, id int64) error {
	m.resets = append(m.resets, id)
	return nil
}

func (m *mockRotation) SwitchToNext(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchCalls++
	if m.switchErr != nil {
		return m.switchErr
	}
	m.snapshot.CurrentID = m.switchTo
	return nil
}

func (m *mockRotation) GetUsageLimitsFor(_ context.Context, _ int64) (model.UsageInfo, error) {
	return m.usage, m.usageErr
}

func (m *mockRotation) AddCredential(_ context.Context, spec model.CreateSpec) (int64, error) {
	if err := m.addErr[spec.RefreshToken]; err != nil {
		return 0, err
	}
	m.nextID++
	return m.nextID, nil
}

func (m *mockRotation) DeleteCredential(_ context.Context, id int64) error {
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// --- recordingPublisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}
