// Package export frames credential records as JSON or CSV for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json", "csv", or empty (json), case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the encoding.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Filename returns the suggested download file name.
func (f Format) Filename() string {
	return "credentials." + string(f)
}

// Header is the fixed CSV column order.
var Header = []string{
	"id", "refresh_token", "access_token", "profile_arn", "expires_at",
	"auth_method", "client_id", "client_secret", "priority", "region",
	"machine_id", "failure_count", "disabled",
}

// Item is the exported shape of one credential.
type Item struct {
	ID           int64   `json:"id"`
	RefreshToken string  `json:"refreshToken"`
	AccessToken  *string `json:"accessToken"`
	ProfileArn   *string `json:"profileArn"`
	ExpiresAt    *string `json:"expiresAt"`
	AuthMethod   string  `json:"authMethod"`
	ClientID     *string `json:"clientId"`
	ClientSecret *string `json:"clientSecret"`
	Priority     int     `json:"priority"`
	Region       *string `json:"region"`
	MachineID    *string `json:"machineId"`
	FailureCount int     `json:"failureCount"`
	Disabled     bool    `json:"disabled"`
}

// ToItem converts a record to its exported shape. Empty optional fields
// become null.
func ToItem(rec model.CredentialRecord) Item {
	var expires *string
	if rec.ExpiresAt != nil {
		s := rec.ExpiresAt.UTC().Format(time.RFC3339)
		expires = &s
	}

	return Item{
		ID:           rec.ID,
		RefreshToken: rec.RefreshToken,
		AccessToken:  optional(rec.AccessToken),
		ProfileArn:   optional(rec.ProfileArn),
		ExpiresAt:    expires,
		AuthMethod:   string(rec.AuthMethod),
		ClientID:     optional(rec.ClientID),
		ClientSecret: optional(rec.ClientSecret),
		Priority:     rec.Priority,
		Region:       optional(rec.Region),
		MachineID:    optional(rec.MachineID),
		FailureCount: rec.FailureCount,
		Disabled:     rec.Disabled,
	}
}

// Write encodes records to w in the given format.
func Write(w io.Writer, f Format, records []model.CredentialRecord) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, records)
	case FormatCSV:
		return WriteCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []model.CredentialRecord) error {
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		items = append(items, ToItem(rec))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

// WriteCSV writes records as CSV with Header as the first row.
func WriteCSV(w io.Writer, records []model.CredentialRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		var expires string
		if rec.ExpiresAt != nil {
			expires = rec.ExpiresAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.RefreshToken,
			rec.AccessToken,
			rec.ProfileArn,
			expires,
			string(rec.AuthMethod),
			rec.ClientID,
			rec.ClientSecret,
			strconv.Itoa(rec.Priority),
			rec.Region,
			rec.MachineID,
			strconv.Itoa(rec.FailureCount),
			strconv.FormatBool(rec.Disabled),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", rec.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
