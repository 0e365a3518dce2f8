package driven

import (
	"context"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// CredentialStore defines the driven port for durable credential records.
// Every backend orders records by (priority asc, id asc) and hides
// tombstoned records from all reads.
type CredentialStore interface {
	// List returns one 1-indexed page. A page past the end has no items but
	// correct totals.
	List(ctx context.Context, page, pageSize int) (model.PaginatedResult[model.CredentialRecord], error)

	// ListAll returns every live record.
	ListAll(ctx context.Context) ([]model.CredentialRecord, error)

	// Get returns the record, or a NotFound error when it is absent or deleted.
	Get(ctx context.Context, id int64) (*model.CredentialRecord, error)

	// Create validates spec, stores it, and returns the new id.
	Create(ctx context.Context, spec model.CreateSpec) (int64, error)

	// Update applies the set fields of spec and always advances updated_at.
	// Returns NotFound when no live record has the id.
	Update(ctx context.Context, id int64, spec model.UpdateSpec) error

	// Delete tombstones the record. Returns NotFound when no live record has
	// the id, including on a repeated delete.
	Delete(ctx context.Context, id int64) error

	// BatchCreate creates each spec in order. Items are independent and never
	// rolled back.
	BatchCreate(ctx context.Context, specs []model.CreateSpec) (model.BatchResult, error)

	// BatchDelete deletes each id in order. Items are independent and never
	// rolled back.
	BatchDelete(ctx context.Context, ids []int64) (model.BatchResult, error)

	// ExportAll returns the same records as ListAll for export framing.
	ExportAll(ctx context.Context) ([]model.CredentialRecord, error)
}
