package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/credpool/internal/application"
	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"internal_error","message":"internal server error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a typed JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, kind model.ErrorKind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Type: string(kind), Message: message}})
}

// writeModelError maps a classified error to its status code and body.
// Internal errors never expose their cause.
func writeModelError(w http.ResponseWriter, err error) {
	var e *model.Error
	if !errors.As(err, &e) || e.Kind == model.KindInternal {
		writeError(w, http.StatusInternalServerError, model.KindInternal, "internal server error")
		return
	}
	writeError(w, statusFor(e.Kind), e.Kind, e.Error())
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindInvalidCredential:
		return http.StatusBadRequest
	case model.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error errorBody `json:"error"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CredentialStatusResponse is one entry of the status view.
type CredentialStatusResponse struct {
	ID            int64   `json:"id"`
	Priority      int     `json:"priority"`
	Disabled      bool    `json:"disabled"`
	FailureCount  int     `json:"failureCount"`
	IsCurrent     bool    `json:"isCurrent"`
	ExpiresAt     *string `json:"expiresAt"`
	AuthMethod    *string `json:"authMethod"`
	HasProfileArn bool    `json:"hasProfileArn"`
}

// CredentialsStatusResponse is one page of the status view.
type CredentialsStatusResponse struct {
	Total       int                        `json:"total"`
	Available   int                        `json:"available"`
	CurrentID   int64                      `json:"currentId"`
	Page        int                        `json:"page"`
	PageSize    int                        `json:"pageSize"`
	TotalPages  int                        `json:"totalPages"`
	Credentials []CredentialStatusResponse `json:"credentials"`
}

// SetDisabledResponse acknowledges an enable or disable and reports any
// failover it triggered.
type SetDisabledResponse struct {
	SuccessResponse
	Failover *FailoverResponse `json:"failover,omitempty"`
}

// FailoverResponse describes the switch attempted after disabling the
// current credential.
type FailoverResponse struct {
	Switched     bool   `json:"switched"`
	PreviousID   int64  `json:"previousId"`
	NewCurrentID int64  `json:"newCurrentId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BalanceResponse is the usage view of one credential.
type BalanceResponse struct {
	ID                int64   `json:"id"`
	SubscriptionTitle *string `json:"subscriptionTitle"`
	CurrentUsage      float64 `json:"currentUsage"`
	UsageLimit        float64 `json:"usageLimit"`
	Remaining         float64 `json:"remaining"`
	UsagePercentage   float64 `json:"usagePercentage"`
	NextResetAt       *int64  `json:"nextResetAt"`
}

// AddCredentialRequest is the JSON body for adding a credential.
type AddCredentialRequest struct {
	RefreshToken string `json:"refreshToken"`
	AuthMethod   string `json:"authMethod"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Priority     int    `json:"priority"`
	Region       string `json:"region"`
	MachineID    string `json:"machineId"`
}

// AddCredentialResponse acknowledges an added credential.
type AddCredentialResponse struct {
	SuccessResponse
	CredentialID int64 `json:"credentialId"`
}

// SetDisabledRequest is the JSON body for the disabled endpoint.
type SetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// SetPriorityRequest is the JSON body for the priority endpoint.
type SetPriorityRequest struct {
	Priority int `json:"priority"`
}

// BatchImportRequest is the JSON body for batch import.
type BatchImportRequest struct {
	Credentials []AddCredentialRequest `json:"credentials"`
}

// BatchDeleteRequest is the JSON body for batch delete.
type BatchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// BatchImportError is one failed import.
type BatchImportError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchImportResponse summarizes a batch import.
type BatchImportResponse struct {
	Imported int                `json:"imported"`
	Failed   int                `json:"failed"`
	Errors   []BatchImportError `json:"errors"`
}

// BatchDeleteError is one failed delete.
type BatchDeleteError struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// BatchDeleteResponse summarizes a batch delete.
type BatchDeleteResponse struct {
	Deleted int                `json:"deleted"`
	Failed  int                `json:"failed"`
	Errors  []BatchDeleteError `json:"errors"`
}

// HealthResponse is the JSON representation of the health check endpoint.
// Status is "degraded" while no credential is available.
type HealthResponse struct {
	Status      string `json:"status"`
	Available   int    `json:"available"`
	Credentials int    `json:"credentials"`
	Time        string `json:"time"`
}

func toStatusResponse(v application.StatusView) CredentialsStatusResponse {
	items := make([]CredentialStatusResponse, 0, len(v.Credentials.Items))
	for _, c := range v.Credentials.Items {
		var expires, method *string
		if c.ExpiresAt != nil {
			s := c.ExpiresAt.UTC().Format(time.RFC3339)
			expires = &s
		}
		if c.AuthMethod != "" {
			s := string(c.AuthMethod)
			method = &s
		}
		items = append(items, CredentialStatusResponse{
			ID:            c.ID,
			Priority:      c.Priority,
			Disabled:      c.Disabled,
			FailureCount:  c.FailureCount,
			IsCurrent:     c.IsCurrent,
			ExpiresAt:     expires,
			AuthMethod:    method,
			HasProfileArn: c.HasProfileArn,
		})
	}

	return CredentialsStatusResponse{
		Total:       v.Credentials.Total,
		Available:   v.Available,
		CurrentID:   v.CurrentID,
		Page:        v.Credentials.Page,
		PageSize:    v.Credentials.PageSize,
		TotalPages:  v.Credentials.TotalPages,
		Credentials: items,
	}
}

func toBalanceResponse(b model.Balance) BalanceResponse {
	resp := BalanceResponse{
		ID:              b.ID,
		CurrentUsage:    b.CurrentUsage,
		UsageLimit:      b.UsageLimit,
		Remaining:       b.Remaining,
		UsagePercentage: b.UsagePercentage,
	}
	if b.SubscriptionTitle != "" {
		resp.SubscriptionTitle = &b.SubscriptionTitle
	}
	if b.NextResetAt != nil {
		ts := b.NextResetAt.Unix()
		resp.NextResetAt = &ts
	}
	return resp
}

func toFailoverResponse(o model.FailoverOutcome) *FailoverResponse {
	if !o.Attempted {
		return nil
	}
	return &FailoverResponse{
		Switched:     o.Switched,
		PreviousID:   o.PreviousID,
		NewCurrentID: o.NewCurrentID,
		Error:        o.Error,
	}
}

func (r AddCredentialRequest) toSpec() (model.CreateSpec, error) {
	method, err := model.ParseAuthMethod(r.AuthMethod)
	if err != nil {
		return model.CreateSpec{}, err
	}
	return model.CreateSpec{
		RefreshToken: r.RefreshToken,
		AuthMethod:   method,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Priority:     r.Priority,
		Region:       r.Region,
		MachineID:    r.MachineID,
	}, nil
}

func toBatchImportResponse(res model.BatchResult) BatchImportResponse {
	errs := make([]BatchImportError, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, BatchImportError{Index: e.Index, Message: e.Message})
	}
	return BatchImportResponse{Imported: res.Succeeded, Failed: res.Failed, Errors: errs}
}

func toBatchDeleteResponse(res model.BatchResult) BatchDeleteResponse {
	errs := make([]BatchDeleteError, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, BatchDeleteError{ID: e.ID, Message: e.Message})
	}
	return BatchDeleteResponse{Deleted: res.Succeeded, Failed: res.Failed, Errors: errs}
}
