package driven

import (
	"context"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// RotationManager owns the live credential selection state. Implementations
// are safe for concurrent use; a credential deleted while an operation on it
// is in flight makes that operation fail with NotFound.
type RotationManager interface {
	LiveSnapshot() model.Snapshot

	// FullSnapshot returns every pooled credential with live failure counts
	// and disabled flags.
	FullSnapshot() []model.CredentialRecord

	SetDisabled(ctx context.Context, id int64, disabled bool) error
	SetPriority(ctx context.Context, id int64, priority int) error

	// ResetAndEnable zeroes the failure count and clears disabled.
	ResetAndEnable(ctx context.Context, id int64) error

	// SwitchToNext moves the selection away from the current credential.
	// The choice of successor is the implementation's policy.
	SwitchToNext(ctx context.Context) error

	// GetUsageLimitsFor may block on network I/O.
	GetUsageLimitsFor(ctx context.Context, id int64) (model.UsageInfo, error)

	// AddCredential validates and persists spec, then pools it.
	AddCredential(ctx context.Context, spec model.CreateSpec) (int64, error)

	DeleteCredential(ctx context.Context, id int64) error
}
