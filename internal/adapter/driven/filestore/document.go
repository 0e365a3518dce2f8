package filestore

import (
	"time"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// document is the on-disk layout. nextId survives deletions so ids are never
// reused, even when the highest record has been tombstoned.
type document struct {
	NextID      int64        `json:"nextId"`
	Credentials []fileRecord `json:"credentials"`
}

type fileRecord struct {
	ID           int64      `json:"id"`
	RefreshToken string     `json:"refreshToken"`
	AccessToken  string     `json:"accessToken,omitempty"`
	ProfileArn   string     `json:"profileArn,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	AuthMethod   string     `json:"authMethod"`
	ClientID     string     `json:"clientId,omitempty"`
	ClientSecret string     `json:"clientSecret,omitempty"`
	Priority     int        `json:"priority"`
	Region       string     `json:"region,omitempty"`
	MachineID    string     `json:"machineId,omitempty"`
	FailureCount int        `json:"failureCount"`
	Disabled     bool       `json:"disabled"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

func fromModel(rec model.CredentialRecord) fileRecord {
	return fileRecord{
		ID:           rec.ID,
		RefreshToken: rec.RefreshToken,
		AccessToken:  rec.AccessToken,
		ProfileArn:   rec.ProfileArn,
		ExpiresAt:    rec.ExpiresAt,
		AuthMethod:   string(rec.AuthMethod),
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		Priority:     rec.Priority,
		Region:       rec.Region,
		MachineID:    rec.MachineID,
		FailureCount: rec.FailureCount,
		Disabled:     rec.Disabled,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		DeletedAt:    rec.DeletedAt,
	}
}

func (r fileRecord) toModel() model.CredentialRecord {
	authMethod := model.AuthMethod(r.AuthMethod)
	if authMethod == "" {
		authMethod = model.AuthMethodSocial
	}

	return model.CredentialRecord{
		ID:           r.ID,
		RefreshToken: r.RefreshToken,
		AccessToken:  r.AccessToken,
		ProfileArn:   r.ProfileArn,
		ExpiresAt:    r.ExpiresAt,
		AuthMethod:   authMethod,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Priority:     r.Priority,
		Region:       r.Region,
		MachineID:    r.MachineID,
		FailureCount: r.FailureCount,
		Disabled:     r.Disabled,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		DeletedAt:    r.DeletedAt,
	}
}
