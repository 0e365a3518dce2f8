package model

import (
	"strings"
	"time"
)

// MinRefreshTokenLength is the shortest refresh token accepted at creation.
// Anything shorter is treated as truncated material pasted by an operator.
const MinRefreshTokenLength = 32

// CredentialRecord is a persisted upstream credential together with the
// pool-management metadata used by the rotation component.
type CredentialRecord struct {
	ID           int64
	RefreshToken string
	AccessToken  string
	ProfileArn   string
	ExpiresAt    *time.Time
	AuthMethod   AuthMethod
	ClientID     string
	ClientSecret string
	Priority     int
	Region       string
	MachineID    string
	FailureCount int
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Lifecycle reports whether the record is live or tombstoned.
func (c CredentialRecord) Lifecycle() Lifecycle {
	if c.DeletedAt != nil {
		return LifecycleDeleted
	}
	return LifecycleActive
}

// Less orders records by priority, then id.
func (c CredentialRecord) Less(other CredentialRecord) bool {
	if c.Priority != other.Priority {
		return c.Priority < other.Priority
	}
	return c.ID < other.ID
}

// CreateSpec carries the creation-time fields of a credential. The store
// assigns the id and timestamps.
type CreateSpec struct {
	RefreshToken string
	AuthMethod   AuthMethod
	ClientID     string
	ClientSecret string
	Priority     int
	Region       string
	MachineID    string
}

// Normalize fills defaults and trims whitespace from operator-supplied values.
func (s CreateSpec) Normalize() CreateSpec {
	s.RefreshToken = strings.TrimSpace(s.RefreshToken)
	s.ClientID = strings.TrimSpace(s.ClientID)
	s.ClientSecret = strings.TrimSpace(s.ClientSecret)
	s.Region = strings.TrimSpace(s.Region)
	s.MachineID = strings.TrimSpace(s.MachineID)
	if s.AuthMethod == "" {
		s.AuthMethod = AuthMethodSocial
	}
	return s
}

// Validate reports an InvalidCredential error when the spec cannot produce
// a usable credential.
func (s CreateSpec) Validate() error {
	s = s.Normalize()

	switch {
	case s.RefreshToken == "":
		return InvalidCredential("missing refresh token")
	case len(s.RefreshToken) < MinRefreshTokenLength:
		return InvalidCredential("refresh token appears truncated")
	case strings.Contains(s.RefreshToken, "..."):
		return InvalidCredential("refresh token appears truncated")
	case s.Priority < 0:
		return InvalidCredential("priority must not be negative")
	}

	if _, err := ParseAuthMethod(string(s.AuthMethod)); err != nil {
		return err
	}

	if s.AuthMethod == AuthMethodIDC && (s.ClientID == "" || s.ClientSecret == "") {
		return InvalidCredential("idc credentials require clientId and clientSecret")
	}

	return nil
}

// UpdateSpec lists the mutable fields of a credential. A nil field is left
// untouched by the store.
type UpdateSpec struct {
	AccessToken  *string
	RefreshToken *string
	ProfileArn   *string
	ExpiresAt    *time.Time
	Priority     *int
	FailureCount *int
	Disabled     *bool
	MachineID    *string
}

// IsEmpty reports whether no field is set.
func (u UpdateSpec) IsEmpty() bool {
	return u.AccessToken == nil && u.RefreshToken == nil && u.ProfileArn == nil &&
		u.ExpiresAt == nil && u.Priority == nil && u.FailureCount == nil &&
		u.Disabled == nil && u.MachineID == nil
}

// Apply copies the set fields onto rec. Stores that hold records in memory
// use it so partial-update semantics match the relational adapters.
func (u UpdateSpec) Apply(rec *CredentialRecord) {
	if u.AccessToken != nil {
		rec.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		rec.RefreshToken = *u.RefreshToken
	}
	if u.ProfileArn != nil {
		rec.ProfileArn = *u.ProfileArn
	}
	if u.ExpiresAt != nil {
		t := *u.ExpiresAt
		rec.ExpiresAt = &t
	}
	if u.Priority != nil {
		rec.Priority = *u.Priority
	}
	if u.FailureCount != nil {
		rec.FailureCount = *u.FailureCount
	}
	if u.Disabled != nil {
		rec.Disabled = *u.Disabled
	}
	if u.MachineID != nil {
		rec.MachineID = *u.MachineID
	}
}

// Ptr returns a pointer to v. Handy for building UpdateSpec literals.
func Ptr[T any](v T) *T {
	return &v
}
