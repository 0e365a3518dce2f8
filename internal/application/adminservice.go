package application

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// CredentialStatus is the live administrative view of one credential.
type CredentialStatus struct {
	ID            int64
	Priority      int
	Disabled      bool
	FailureCount  int
	IsCurrent     bool
	ExpiresAt     *time.Time
	AuthMethod    model.AuthMethod
	HasProfileArn bool
}

// StatusView is one page of the live pool plus pool-wide counters.
type StatusView struct {
	Available   int
	CurrentID   int64
	Credentials model.PaginatedResult[CredentialStatus]
}

// AdminService bridges administrative requests to the RotationManager. It
// holds no mutable state and is safe for concurrent use. Every error it
// returns is a *model.Error.
type AdminService struct {
	rotation driven.RotationManager
	events   driven.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdminService creates an AdminService. events may be nil.
func NewAdminService(rotation driven.RotationManager, events driven.EventPublisher, logger *slog.Logger) *AdminService {
	return &AdminService{
		rotation: rotation,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Status builds a page of the live pool, ordered by priority then id.
func (s *AdminService) Status(page, pageSize int) StatusView {
	snap := s.rotation.LiveSnapshot()

	entries := slices.Clone(snap.Entries)
	slices.SortStableFunc(entries, func(a, b model.SnapshotEntry) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	statuses := make([]CredentialStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, CredentialStatus{
			ID:            e.ID,
			Priority:      e.Priority,
			Disabled:      e.Disabled,
			FailureCount:  e.FailureCount,
			IsCurrent:     e.ID == snap.CurrentID,
			ExpiresAt:     e.ExpiresAt,
			AuthMethod:    e.AuthMethod,
			HasProfileArn: e.HasProfileArn,
		})
	}

	return StatusView{
		Available:   snap.Available,
		CurrentID:   snap.CurrentID,
		Credentials: model.Paginate(statuses, page, pageSize),
	}
}

// SetDisabled enables or disables a credential. Disabling the current
// credential also asks the RotationManager to switch away from it; the
// outcome of that attempt is returned but never turns the call into a
// failure.
func (s *AdminService) SetDisabled(ctx context.Context, id int64, disabled bool) (model.FailoverOutcome, error) {
	wasCurrent := s.rotation.LiveSnapshot().CurrentID == id

	if err := s.rotation.SetDisabled(ctx, id, disabled); err != nil {
		return model.FailoverOutcome{}, classify(err, id)
	}

	topic := model.TopicCredentialEnabled
	if disabled {
		topic = model.TopicCredentialDisabled
	}
	s.publish(ctx, topic, id, nil)

	if !disabled || !wasCurrent {
		return model.FailoverOutcome{}, nil
	}

	outcome := model.FailoverOutcome{Attempted: true, PreviousID: id}
	if err := s.rotation.SwitchToNext(ctx); err != nil {
		outcome.Error = err.Error()
		s.logger.Warn("failover after disable did not switch", "id", id, "error", err)
	} else {
		outcome.NewCurrentID = s.rotation.LiveSnapshot().CurrentID
		outcome.Switched = outcome.NewCurrentID != 0 && outcome.NewCurrentID != id
	}

	s.publish(ctx, model.TopicCredentialFailover, id, outcome)
	return outcome, nil
}

// SetPriority changes a credential's priority.
func (s *AdminService) SetPriority(ctx context.Context, id int64, priority int) error {
	if err := s.rotation.SetPriority(ctx, id, priority); err != nil {
		return classify(err, id)
	}
	s.publish(ctx, model.TopicCredentialPriority, id, map[string]int{"priority": priority})
	return nil
}

// ResetAndEnable zeroes a credential's failure count and enables it.
func (s *AdminService) ResetAndEnable(ctx context.Context, id int64) error {
	if err := s.rotation.ResetAndEnable(ctx, id); err != nil {
		return classify(err, id)
	}
	s.publish(ctx, model.TopicCredentialReset, id, nil)
	return nil
}

// GetBalance queries upstream usage for a credential. It may block on
// network I/O and is never retried.
func (s *AdminService) GetBalance(ctx context.Context, id int64) (model.Balance, error) {
	usage, err := s.rotation.GetUsageLimitsFor(ctx, id)
	if err != nil {
		return model.Balance{}, classify(err, id)
	}
	return model.NewBalance(id, usage), nil
}

// AddCredential adds one credential through the RotationManager, which
// persists it.
func (s *AdminService) AddCredential(ctx context.Context, spec model.CreateSpec) (int64, error) {
	id, err := s.rotation.AddCredential(ctx, spec)
	if err != nil {
		return 0, classify(err, 0)
	}
	s.publish(ctx, model.TopicCredentialAdded, id, nil)
	return id, nil
}

// DeleteCredential removes one credential through the RotationManager.
func (s *AdminService) DeleteCredential(ctx context.Context, id int64) error {
	if err := s.rotation.DeleteCredential(ctx, id); err != nil {
		return classify(err, id)
	}
	s.publish(ctx, model.TopicCredentialDeleted, id, nil)
	return nil
}

// BatchImport adds each spec in order. Failures are reported per item and
// never undo earlier successes.
func (s *AdminService) BatchImport(ctx context.Context, specs []model.CreateSpec) model.BatchResult {
	var result model.BatchResult
	for i, spec := range specs {
		if _, err := s.AddCredential(ctx, spec); err != nil {
			result.Fail(i, 0, err)
			continue
		}
		result.Succeed()
	}

	s.logger.Info("batch import finished", "imported", result.Succeeded, "failed", result.Failed)
	return result
}

// BatchDelete deletes each id in order. Failures are reported per item and
// never undo earlier successes.
func (s *AdminService) BatchDelete(ctx context.Context, ids []int64) model.BatchResult {
	var result model.BatchResult
	for i, id := range ids {
		if err := s.DeleteCredential(ctx, id); err != nil {
			result.Fail(i, id, err)
			continue
		}
		result.Succeed()
	}

	s.logger.Info("batch delete finished", "deleted", result.Succeeded, "failed", result.Failed)
	return result
}

// Export returns the live pool, including current failure counts and
// disabled flags, ordered by priority then id.
func (s *AdminService) Export() []model.CredentialRecord {
	records := s.rotation.FullSnapshot()
	slices.SortStableFunc(records, compareRecords)
	return records
}

func (s *AdminService) publish(ctx context.Context, topic string, id int64, payload any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, model.Event{
		Topic:        topic,
		CredentialID: id,
		Timestamp:    s.now().UTC(),
		Payload:      payload,
	})
}
