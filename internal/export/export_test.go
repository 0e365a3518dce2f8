package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

func sampleRecords() []model.CredentialRecord {
	exp := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	return []model.CredentialRecord{
		{
			ID:           1,
			RefreshToken: "rt-1",
			AccessToken:  "at-1",
			ProfileArn:   "arn:aws:p",
			ExpiresAt:    &exp,
			AuthMethod:   model.AuthMethodSocial,
			Priority:     0,
			FailureCount: 2,
		},
		{
			ID:           4,
			RefreshToken: "rt,with,commas",
			AuthMethod:   model.AuthMethodIDC,
			ClientID:     "cid",
			ClientSecret: "csecret",
			Priority:     3,
			Region:       "us-east-1",
			MachineID:    "m-1",
			Disabled:     true,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatJSON},
		{in: "json", want: FormatJSON},
		{in: "CSV", want: FormatCSV},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{
		"1", "rt-1", "at-1", "arn:aws:p", "2026-06-01T12:30:00Z", "social",
		"", "", "0", "", "", "2", "false",
	}, rows[1])
	assert.Equal(t, []string{
		"4", "rt,with,commas", "", "", "", "idc",
		"cid", "csecret", "3", "us-east-1", "m-1", "0", "true",
	}, rows[2])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,refresh_token,access_token,profile_arn,expires_at,auth_method,client_id,client_secret,priority,region,machine_id,failure_count,disabled\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleRecords()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "rt-1", got[0]["refreshToken"])
	assert.Equal(t, "2026-06-01T12:30:00Z", got[0]["expiresAt"])
	assert.Nil(t, got[0]["clientId"])
	assert.EqualValues(t, 2, got[0]["failureCount"])
	assert.Equal(t, true, got[1]["disabled"])
	assert.Equal(t, "idc", got[1]["authMethod"])
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, `[]`, buf.String())
}
