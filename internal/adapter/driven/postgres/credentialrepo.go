package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/credpool/internal/adapter/driven/sqlkit"
	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the PostgreSQL implementation of the CredentialStore port.
type CredentialRepo struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a CredentialRepo.
type Option func(*CredentialRepo)

// WithClock overrides the source of created_at/updated_at/deleted_at.
func WithClock(now func() time.Time) Option {
	return func(r *CredentialRepo) { r.now = now }
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *sql.DB, opts ...Option) *CredentialRepo {
	r := &CredentialRepo{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func encodeTime(t time.Time) any {
	return t.UTC()
}

// List returns one page of live credentials ordered by priority, then id.
func (r *CredentialRepo) List(ctx context.Context, page, pageSize int) (model.PaginatedResult[model.CredentialRecord], error) {
	page, pageSize = model.NormalizePage(page, pageSize)

	var total int
	if err := r.db.QueryRowContext(ctx, sqlkit.CountLive()).Scan(&total); err != nil {
		return model.PaginatedResult[model.CredentialRecord]{}, fmt.Errorf("count credentials: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlkit.SelectLive("", "LIMIT $1 OFFSET $2"), pageSize, model.Offset(page, pageSize))
	if err != nil {
		return model.PaginatedResult[model.CredentialRecord]{}, fmt.Errorf("list credentials page %d: %w", page, err)
	}
	defer rows.Close()

	items, err := scanCredentials(rows)
	if err != nil {
		return model.PaginatedResult[model.CredentialRecord]{}, err
	}
	return model.NewPage(items, total, page, pageSize), nil
}

// ListAll returns every live credential ordered by priority, then id.
func (r *CredentialRepo) ListAll(ctx context.Context) ([]model.CredentialRecord, error) {
	rows, err := r.db.QueryContext(ctx, sqlkit.SelectLive("", ""))
	if err != nil {
		return nil, fmt.Errorf("list all credentials: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// ExportAll returns the same records as ListAll.
func (r *CredentialRepo) ExportAll(ctx context.Context) ([]model.CredentialRecord, error) {
	return r.ListAll(ctx)
}

// Get returns a live credential by id.
func (r *CredentialRepo) Get(ctx context.Context, id int64) (*model.CredentialRecord, error) {
	cred, err := scanCredential(r.db.QueryRowContext(ctx, sqlkit.SelectLive("id = $1", ""), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", id, err)
	}
	return &cred, nil
}

// Create validates spec and inserts a new credential.
func (r *CredentialRepo) Create(ctx context.Context, spec model.CreateSpec) (int64, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	query, args := sqlkit.InsertStatement(spec, r.now(), encodeTime, sqlkit.Dollar)

	var id int64
	if err := r.db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert credential: %w", err)
	}
	return id, nil
}

// Update applies the set fields of spec to a live credential.
func (r *CredentialRepo) Update(ctx context.Context, id int64, spec model.UpdateSpec) error {
	return r.execOnLive(ctx, id, sqlkit.UpdateAssignments(spec, r.now(), encodeTime), "update")
}

// Delete tombstones a live credential.
func (r *CredentialRepo) Delete(ctx context.Context, id int64) error {
	return r.execOnLive(ctx, id, sqlkit.DeleteAssignments(r.now(), encodeTime), "delete")
}

func (r *CredentialRepo) execOnLive(ctx context.Context, id int64, set sqlkit.Assignments, verb string) error {
	query, args := sqlkit.UpdateStatement(set, sqlkit.Dollar, id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s credential %d: %w", verb, id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s credential %d: rows affected: %w", verb, id, err)
	}
	if n == 0 {
		return model.NotFound(id)
	}
	return nil
}

// BatchCreate creates each spec in order without a surrounding transaction.
func (r *CredentialRepo) BatchCreate(ctx context.Context, specs []model.CreateSpec) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}

	var result model.BatchResult
	for i, spec := range specs {
		if _, err := r.Create(ctx, spec); err != nil {
			result.Fail(i, 0, err)
			continue
		}
		result.Succeed()
	}
	return result, nil
}

// BatchDelete deletes each id in order without a surrounding transaction.
func (r *CredentialRepo) BatchDelete(ctx context.Context, ids []int64) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}

	var result model.BatchResult
	for i, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			result.Fail(i, id, err)
			continue
		}
		result.Succeed()
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredentials(rows *sql.Rows) ([]model.CredentialRecord, error) {
	creds := []model.CredentialRecord{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

func scanCredential(s rowScanner) (model.CredentialRecord, error) {
	var (
		cred                                   model.CredentialRecord
		accessToken, profileArn                sql.NullString
		clientID, clientSecret, region, machID sql.NullString
		expiresAt                              sql.NullTime
		authMethod                             string
	)

	err := s.Scan(
		&cred.ID, &cred.RefreshToken, &accessToken, &profileArn, &expiresAt, &authMethod,
		&clientID, &clientSecret, &cred.Priority, &region, &machID, &cred.FailureCount, &cred.Disabled,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return model.CredentialRecord{}, err
	}

	cred.AccessToken = accessToken.String
	cred.ProfileArn = profileArn.String
	cred.AuthMethod = model.AuthMethod(authMethod)
	cred.ClientID = clientID.String
	cred.ClientSecret = clientSecret.String
	cred.Region = region.String
	cred.MachineID = machID.String
	cred.CreatedAt = cred.CreatedAt.UTC()
	cred.UpdatedAt = cred.UpdatedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		cred.ExpiresAt = &t
	}

	return cred, nil
}
