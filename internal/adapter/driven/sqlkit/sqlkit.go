// Package sqlkit holds the SQL fragments and statement builders shared by the
// relational credential stores, so every backend filters, orders, and
// updates rows the same way.
package sqlkit

import (
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// Table is the credentials table name.
const Table = "credentials"

// LiveRows is the predicate that hides tombstoned rows. Every read and every
// mutation of the credentials table includes it.
const LiveRows = "deleted_at IS NULL"

// OrderBy is the total order of credentials.
const OrderBy = "priority ASC, id ASC"

// Columns is the select list in the order adapters scan it.
const Columns = "id, refresh_token, access_token, profile_arn, expires_at, auth_method, " +
	"client_id, client_secret, priority, region, machine_id, failure_count, disabled, " +
	"created_at, updated_at"

// Placeholder renders bind parameters for a driver.
type Placeholder int

const (
	// Question renders "?" (SQLite).
	Question Placeholder = iota
	// Dollar renders "$1", "$2", ... (PostgreSQL).
	Dollar
)

// At renders the n-th (1-based) parameter.
func (p Placeholder) At(n int) string {
	if p == Dollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Assignment is one "column = value" pair of a SET clause.
type Assignment struct {
	Column string
	Value  any
}

// Assignments is an ordered SET list. The clause text and the bind values are
// both derived from it, so they cannot drift apart.
type Assignments []Assignment

// Set appends a pair.
func (a *Assignments) Set(column string, value any) {
	*a = append(*a, Assignment{Column: column, Value: value})
}

// Clause renders "col = p1, col = p2" starting at parameter index start and
// returns the values in the same order.
func (a Assignments) Clause(p Placeholder, start int) (string, []any) {
	parts := make([]string, len(a))
	args := make([]any, len(a))
	for i, as := range a {
		parts[i] = as.Column + " = " + p.At(start+i)
		args[i] = as.Value
	}
	return strings.Join(parts, ", "), args
}

// TimeEncoder converts a timestamp into the driver's bind value.
type TimeEncoder func(time.Time) any

// UpdateAssignments builds the SET list for a partial update. updated_at is
// always first, so an empty spec still advances it.
func UpdateAssignments(spec model.UpdateSpec, now time.Time, enc TimeEncoder) Assignments {
	var set Assignments
	set.Set("updated_at", enc(now))

	if spec.AccessToken != nil {
		set.Set("access_token", NullString(*spec.AccessToken))
	}
	if spec.RefreshToken != nil {
		set.Set("refresh_token", *spec.RefreshToken)
	}
	if spec.ProfileArn != nil {
		set.Set("profile_arn", NullString(*spec.ProfileArn))
	}
	if spec.ExpiresAt != nil {
		set.Set("expires_at", enc(*spec.ExpiresAt))
	}
	if spec.Priority != nil {
		set.Set("priority", *spec.Priority)
	}
	if spec.FailureCount != nil {
		set.Set("failure_count", *spec.FailureCount)
	}
	if spec.Disabled != nil {
		set.Set("disabled", *spec.Disabled)
	}
	if spec.MachineID != nil {
		set.Set("machine_id", NullString(*spec.MachineID))
	}

	return set
}

// UpdateStatement renders an UPDATE of one live row by id. The id is the
// last bind value.
func UpdateStatement(set Assignments, p Placeholder, id int64) (string, []any) {
	clause, args := set.Clause(p, 1)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s AND %s", Table, clause, p.At(len(args)+1), LiveRows)
	return query, append(args, id)
}

// DeleteAssignments tombstones a row and advances updated_at.
func DeleteAssignments(now time.Time, enc TimeEncoder) Assignments {
	var set Assignments
	set.Set("deleted_at", enc(now))
	set.Set("updated_at", enc(now))
	return set
}

// InsertStatement renders the INSERT for a create spec. The returned column
// list matches the bind values.
func InsertStatement(spec model.CreateSpec, now time.Time, enc TimeEncoder, p Placeholder) (string, []any) {
	var cols Assignments
	cols.Set("refresh_token", spec.RefreshToken)
	cols.Set("auth_method", string(spec.AuthMethod))
	cols.Set("client_id", NullString(spec.ClientID))
	cols.Set("client_secret", NullString(spec.ClientSecret))
	cols.Set("priority", spec.Priority)
	cols.Set("region", NullString(spec.Region))
	cols.Set("machine_id", NullString(spec.MachineID))
	cols.Set("failure_count", 0)
	cols.Set("disabled", false)
	cols.Set("created_at", enc(now))
	cols.Set("updated_at", enc(now))

	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Column
		marks[i] = p.At(i + 1)
		args[i] = c.Value
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Table, strings.Join(names, ", "), strings.Join(marks, ", "))
	return query, args
}

// SelectLive renders a SELECT of live rows in canonical order, with an
// optional extra predicate and suffix (e.g. LIMIT/OFFSET).
func SelectLive(where, suffix string) string {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", Columns, Table, LiveRows)
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY " + OrderBy
	if suffix != "" {
		query += " " + suffix
	}
	return query
}

// CountLive renders a COUNT over live rows.
func CountLive() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", Table, LiveRows)
}

// NullString maps "" to SQL NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
