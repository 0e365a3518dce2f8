// Package filestore implements the credential store as a single JSON document
// on local disk. Every mutation rewrites the document with an atomic rename,
// so a crash leaves either the old or the new file, never a torn one.
package filestore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// Store keeps every record, tombstoned ones included, in memory and mirrors
// them to a JSON file.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	nextID  int64
	records []model.CredentialRecord // ascending id
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the source of created_at/updated_at/deleted_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the document at path, creating an empty store when the file
// does not exist yet.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, now: time.Now, nextID: 1}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file %q: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode credential file %q: %w", path, err)
	}

	s.records = make([]model.CredentialRecord, 0, len(doc.Credentials))
	for _, rec := range doc.Credentials {
		s.records = append(s.records, rec.toModel())
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
	}
	if doc.NextID > s.nextID {
		s.nextID = doc.NextID
	}
	slices.SortFunc(s.records, func(a, b model.CredentialRecord) int { return cmp.Compare(a.ID, b.ID) })

	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// List returns one page of live credentials ordered by priority, then id.
func (s *Store) List(ctx context.Context, page, pageSize int) (model.PaginatedResult[model.CredentialRecord], error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return model.PaginatedResult[model.CredentialRecord]{}, err
	}
	return model.Paginate(all, page, pageSize), nil
}

// ListAll returns every live credential ordered by priority, then id.
func (s *Store) ListAll(ctx context.Context) ([]model.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	live := make([]model.CredentialRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Lifecycle() == model.LifecycleActive {
			live = append(live, cloneRecord(rec))
		}
	}
	slices.SortStableFunc(live, compareRecords)
	return live, nil
}

// ExportAll returns the same records as ListAll.
func (s *Store) ExportAll(ctx context.Context) ([]model.CredentialRecord, error) {
	return s.ListAll(ctx)
}

// Get returns a live credential by id.
func (s *Store) Get(ctx context.Context, id int64) (*model.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLive(id)
	if i < 0 {
		return nil, model.NotFound(id)
	}
	rec := cloneRecord(s.records[i])
	return &rec, nil
}

// Create validates spec and appends a new credential.
func (s *Store) Create(ctx context.Context, spec model.CreateSpec) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec := model.CredentialRecord{
		ID:           s.nextID,
		RefreshToken: spec.RefreshToken,
		AuthMethod:   spec.AuthMethod,
		ClientID:     spec.ClientID,
		ClientSecret: spec.ClientSecret,
		Priority:     spec.Priority,
		Region:       spec.Region,
		MachineID:    spec.MachineID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	next := append(slices.Clone(s.records), rec)
	if err := s.persist(next, s.nextID+1); err != nil {
		return 0, fmt.Errorf("insert credential: %w", err)
	}

	s.records = next
	s.nextID++
	return rec.ID, nil
}

// Update applies the set fields of spec to a live credential.
func (s *Store) Update(ctx context.Context, id int64, spec model.UpdateSpec) error {
	return s.mutateLive(ctx, id, "update", func(rec *model.CredentialRecord, now time.Time) {
		spec.Apply(rec)
		if rec.ExpiresAt != nil {
			t := rec.ExpiresAt.UTC()
			rec.ExpiresAt = &t
		}
		rec.UpdatedAt = now
	})
}

// Delete tombstones a live credential.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.mutateLive(ctx, id, "delete", func(rec *model.CredentialRecord, now time.Time) {
		rec.DeletedAt = &now
		rec.UpdatedAt = now
	})
}

func (s *Store) mutateLive(ctx context.Context, id int64, verb string, fn func(*model.CredentialRecord, time.Time)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLive(id)
	if i < 0 {
		return model.NotFound(id)
	}

	next := slices.Clone(s.records)
	rec := cloneRecord(next[i])
	fn(&rec, s.now().UTC())
	next[i] = rec

	if err := s.persist(next, s.nextID); err != nil {
		return fmt.Errorf("%s credential %d: %w", verb, id, err)
	}
	s.records = next
	return nil
}

// BatchCreate creates each spec in order. Each item is persisted on its own.
func (s *Store) BatchCreate(ctx context.Context, specs []model.CreateSpec) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}

	var result model.BatchResult
	for i, spec := range specs {
		if _, err := s.Create(ctx, spec); err != nil {
			result.Fail(i, 0, err)
			continue
		}
		result.Succeed()
	}
	return result, nil
}

// BatchDelete deletes each id in order. Each item is persisted on its own.
func (s *Store) BatchDelete(ctx context.Context, ids []int64) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}

	var result model.BatchResult
	for i, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			result.Fail(i, id, err)
			continue
		}
		result.Succeed()
	}
	return result, nil
}

// indexLive returns the slice index of the live record with id, or -1.
// Callers hold s.mu.
func (s *Store) indexLive(id int64) int {
	i, found := slices.BinarySearchFunc(s.records, id, func(rec model.CredentialRecord, id int64) int {
		return cmp.Compare(rec.ID, id)
	})
	if !found || s.records[i].Lifecycle() == model.LifecycleDeleted {
		return -1
	}
	return i
}

// persist writes records to disk. Callers hold s.mu for writing.
func (s *Store) persist(records []model.CredentialRecord, nextID int64) error {
	doc := document{NextID: nextID, Credentials: make([]fileRecord, 0, len(records))}
	for _, rec := range records {
		doc.Credentials = append(doc.Credentials, fromModel(rec))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credential dir %q: %w", dir, err)
		}
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write credential file %q: %w", s.path, err)
	}
	return nil
}

func compareRecords(a, b model.CredentialRecord) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

func cloneRecord(rec model.CredentialRecord) model.CredentialRecord {
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		rec.ExpiresAt = &t
	}
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		rec.DeletedAt = &t
	}
	return rec
}
