package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// ErrNoAvailableCredential is returned by SwitchToNext when every other
// credential is disabled.
var ErrNoAvailableCredential = errors.New("no available credential")

const (
	defaultFailureThreshold = 3
	refreshSkew             = 5 * time.Minute
)

// Compile-time interface satisfaction check.
var _ driven.RotationManager = (*RotationPool)(nil)

// RotationPool is an in-process RotationManager. It keeps the live pool in
// memory, ordered by priority then id, and persists every mutation through
// the CredentialStore before applying it.
type RotationPool struct {
	store     driven.CredentialStore
	upstream  driven.UpstreamClient
	logger    *slog.Logger
	threshold int
	now       func() time.Time

	mu        sync.RWMutex
	creds     []model.CredentialRecord
	currentID int64
}

// PoolOption configures a RotationPool.
type PoolOption func(*RotationPool)

// WithFailureThreshold sets how many consecutive refresh rejections disable
// a credential.
func WithFailureThreshold(n int) PoolOption {
	return func(p *RotationPool) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithPoolClock overrides the time source used for expiry checks.
func WithPoolClock(now func() time.Time) PoolOption {
	return func(p *RotationPool) { p.now = now }
}

// NewRotationPool creates an empty pool. Call Load to seed it from the store.
// upstream may be nil when usage queries are not needed.
func NewRotationPool(store driven.CredentialStore, upstream driven.UpstreamClient, logger *slog.Logger, opts ...PoolOption) *RotationPool {
	p := &RotationPool{
		store:     store,
		upstream:  upstream,
		logger:    logger,
		threshold: defaultFailureThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load replaces the pool with the store's live records and selects the
// first enabled one.
func (p *RotationPool) Load(ctx context.Context) error {
	records, err := p.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load credential pool: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.creds = records
	p.sortLocked()
	p.currentID = p.firstEnabledLocked(0)

	p.logger.Info("credential pool loaded", "total", len(p.creds), "current", p.currentID)
	return nil
}

// LiveSnapshot implements driven.RotationManager.
func (p *RotationPool) LiveSnapshot() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := model.Snapshot{
		Entries:   make([]model.SnapshotEntry, 0, len(p.creds)),
		CurrentID: p.currentID,
	}
	for _, c := range p.creds {
		snap.Entries = append(snap.Entries, model.SnapshotEntry{
			ID:            c.ID,
			Priority:      c.Priority,
			Disabled:      c.Disabled,
			FailureCount:  c.FailureCount,
			ExpiresAt:     c.ExpiresAt,
			AuthMethod:    c.AuthMethod,
			HasProfileArn: c.ProfileArn != "",
		})
		if !c.Disabled {
			snap.Available++
		}
	}
	return snap
}

// FullSnapshot implements driven.RotationManager.
func (p *RotationPool) FullSnapshot() []model.CredentialRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.creds)
}

// SetDisabled implements driven.RotationManager. Disabling the current
// credential leaves it selected until SwitchToNext is called.
func (p *RotationPool) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.indexLocked(id)
	if err != nil {
		return err
	}
	if err := p.store.Update(ctx, id, model.UpdateSpec{Disabled: &disabled}); err != nil {
		return err
	}

	p.creds[i].Disabled = disabled
	if !disabled && !p.currentUsableLocked() {
		p.currentID = id
	}
	return nil
}

// SetPriority implements driven.RotationManager.
func (p *RotationPool) SetPriority(ctx context.Context, id int64, priority int) error {
	if priority < 0 {
		return model.InvalidCredential("priority must not be negative")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.indexLocked(id)
	if err != nil {
		return err
	}
	if err := p.store.Update(ctx, id, model.UpdateSpec{Priority: &priority}); err != nil {
		return err
	}

	p.creds[i].Priority = priority
	p.sortLocked()
	return nil
}

// ResetAndEnable implements driven.RotationManager.
func (p *RotationPool) ResetAndEnable(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.indexLocked(id)
	if err != nil {
		return err
	}
	spec := model.UpdateSpec{FailureCount: model.Ptr(0), Disabled: model.Ptr(false)}
	if err := p.store.Update(ctx, id, spec); err != nil {
		return err
	}

	p.creds[i].FailureCount = 0
	p.creds[i].Disabled = false
	if !p.currentUsableLocked() {
		p.currentID = id
	}
	return nil
}

// SwitchToNext selects the enabled credential with the lowest priority
// other than the current one.
func (p *RotationPool) SwitchToNext(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.firstEnabledLocked(p.currentID)
	if next == 0 {
		return ErrNoAvailableCredential
	}

	p.logger.Info("switched current credential", "from", p.currentID, "to", next)
	p.currentID = next
	return nil
}

// AddCredential implements driven.RotationManager.
func (p *RotationPool) AddCredential(ctx context.Context, spec model.CreateSpec) (int64, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.store.Create(ctx, spec)
	if err != nil {
		return 0, err
	}
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("read back credential %d: %w", id, err)
	}

	p.creds = append(p.creds, *rec)
	p.sortLocked()
	if !rec.Disabled && !p.currentUsableLocked() {
		p.currentID = id
	}
	return id, nil
}

// DeleteCredential implements driven.RotationManager. Only disabled
// credentials can be deleted.
func (p *RotationPool) DeleteCredential(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.indexLocked(id)
	if err != nil {
		return err
	}
	if !p.creds[i].Disabled {
		return model.InvalidCredential("can only delete disabled credentials")
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}

	p.creds = slices.Delete(p.creds, i, i+1)
	if p.currentID == id {
		p.currentID = p.firstEnabledLocked(0)
	}
	return nil
}

// GetUsageLimitsFor implements driven.RotationManager. It refreshes the
// access token first when it is missing or about to expire. No lock is held
// during upstream calls.
func (p *RotationPool) GetUsageLimitsFor(ctx context.Context, id int64) (model.UsageInfo, error) {
	if p.upstream == nil {
		return model.UsageInfo{}, model.Internal("upstream client not configured", nil)
	}

	p.mu.RLock()
	i, err := p.indexLocked(id)
	var rec model.CredentialRecord
	if err == nil {
		rec = p.creds[i]
	}
	p.mu.RUnlock()
	if err != nil {
		return model.UsageInfo{}, err
	}

	if p.needsRefresh(rec) {
		rec, err = p.refresh(ctx, rec)
		if err != nil {
			return model.UsageInfo{}, err
		}
	}

	usage, err := p.upstream.FetchUsage(ctx, rec)
	if err != nil {
		return model.UsageInfo{}, err
	}

	// A credential deleted while the request was in flight reports NotFound.
	p.mu.RLock()
	_, err = p.indexLocked(id)
	p.mu.RUnlock()
	if err != nil {
		return model.UsageInfo{}, err
	}
	return usage, nil
}

func (p *RotationPool) needsRefresh(rec model.CredentialRecord) bool {
	if rec.AccessToken == "" || rec.ExpiresAt == nil {
		return true
	}
	return rec.ExpiresAt.Before(p.now().Add(refreshSkew))
}

// refresh exchanges rec's refresh token and stores the result. Only a
// credential rejection counts toward the failure threshold; rate limiting
// and transport errors do not.
func (p *RotationPool) refresh(ctx context.Context, rec model.CredentialRecord) (model.CredentialRecord, error) {
	tok, err := p.upstream.RefreshToken(ctx, rec)
	if err != nil {
		if model.IsRejected(err) {
			p.recordFailure(ctx, rec.ID)
		}
		return rec, err
	}

	expires := tok.ExpiresAt
	spec := model.UpdateSpec{
		AccessToken:  &tok.AccessToken,
		ExpiresAt:    &expires,
		FailureCount: model.Ptr(0),
	}
	if tok.RefreshToken != "" {
		spec.RefreshToken = &tok.RefreshToken
	}
	if tok.ProfileArn != "" {
		spec.ProfileArn = &tok.ProfileArn
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.indexLocked(rec.ID)
	if err != nil {
		return rec, err
	}
	if err := p.store.Update(ctx, rec.ID, spec); err != nil {
		return rec, err
	}

	spec.Apply(&p.creds[i])
	p.logger.Debug("access token refreshed", "id", rec.ID, "expires_at", expires)
	return p.creds[i], nil
}

func (p *RotationPool) recordFailure(ctx context.Context, id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.indexLocked(id)
	if err != nil {
		return
	}

	count := p.creds[i].FailureCount + 1
	disabled := p.creds[i].Disabled || count >= p.threshold
	if err := p.store.Update(ctx, id, model.UpdateSpec{FailureCount: &count, Disabled: &disabled}); err != nil {
		p.logger.Error("failed to persist credential failure", "id", id, "error", err)
		return
	}

	p.creds[i].FailureCount = count
	p.creds[i].Disabled = disabled
	if !disabled {
		return
	}

	p.logger.Warn("credential disabled after repeated failures", "id", id, "failures", count)
	if p.currentID == id {
		p.currentID = p.firstEnabledLocked(id)
	}
}

func (p *RotationPool) indexLocked(id int64) (int, error) {
	i := slices.IndexFunc(p.creds, func(c model.CredentialRecord) bool { return c.ID == id })
	if i < 0 {
		return -1, model.NotFound(id)
	}
	return i, nil
}

// currentUsableLocked reports whether a current credential is selected and
// still enabled. A failed failover can leave a disabled one selected.
func (p *RotationPool) currentUsableLocked() bool {
	if p.currentID == 0 {
		return false
	}
	i, err := p.indexLocked(p.currentID)
	return err == nil && !p.creds[i].Disabled
}

// firstEnabledLocked returns the first enabled id in pool order other than
// skip, or 0.
func (p *RotationPool) firstEnabledLocked(skip int64) int64 {
	for _, c := range p.creds {
		if !c.Disabled && c.ID != skip {
			return c.ID
		}
	}
	return 0
}

func (p *RotationPool) sortLocked() {
	slices.SortStableFunc(p.creds, compareRecords)
}

func compareRecords(a, b model.CredentialRecord) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
