package httphandler

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/credpool/internal/application"
	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/export"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the admin API.
type Handler struct {
	admin   *application.AdminService
	metrics *Metrics
	logger  *slog.Logger
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(admin *application.AdminService, metrics *Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		admin:   admin,
		metrics: metrics,
		logger:  logger,
	}
}

// ServerOptions configures the route set.
type ServerOptions struct {
	// AdminAPIKey guards /api/admin. When empty the admin routes are not
	// registered.
	AdminAPIKey string

	// Gatherer backs /metrics. When nil the endpoint is not registered.
	Gatherer prometheus.Gatherer
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, logging, metrics, and recovery middleware.
func NewServeMux(h *Handler, opts ServerOptions, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if opts.AdminAPIKey != "" {
		admin := func(pattern string, fn http.HandlerFunc) {
			mux.Handle(pattern, apiKeyMiddleware(opts.AdminAPIKey, fn))
		}
		admin("GET /api/admin/credentials", h.ListCredentials)
		admin("POST /api/admin/credentials", h.AddCredential)
		admin("POST /api/admin/credentials/batch-import", h.BatchImport)
		admin("POST /api/admin/credentials/batch-delete", h.BatchDelete)
		admin("GET /api/admin/credentials/export", h.Export)
		admin("DELETE /api/admin/credentials/{id}", h.DeleteCredential)
		admin("POST /api/admin/credentials/{id}/disabled", h.SetDisabled)
		admin("POST /api/admin/credentials/{id}/priority", h.SetPriority)
		admin("POST /api/admin/credentials/{id}/reset", h.ResetFailureCount)
		admin("GET /api/admin/credentials/{id}/balance", h.GetBalance)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = metricsMiddleware(h.metrics, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// ListCredentials returns one page of the live pool.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.KindInvalidCredential, err.Error())
		return
	}
	pageSize, err := queryInt(r, "pageSize", model.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.KindInvalidCredential, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(h.admin.Status(page, pageSize)))
}

// AddCredential adds one credential to the pool.
func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	var req AddCredentialRequest
	if !h.decode(w, r, &req) {
		return
	}

	spec, err := req.toSpec()
	if err != nil {
		h.fail(w, "add", 0, err)
		return
	}

	id, err := h.admin.AddCredential(r.Context(), spec)
	if err != nil {
		h.fail(w, "add", 0, err)
		return
	}

	h.metrics.observeOperation("add", nil)
	writeJSON(w, http.StatusOK, AddCredentialResponse{
		SuccessResponse: SuccessResponse{Success: true, Message: fmt.Sprintf("credential #%d added", id)},
		CredentialID:    id,
	})
}

// DeleteCredential removes one disabled credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.admin.DeleteCredential(r.Context(), id); err != nil {
		h.fail(w, "delete", id, err)
		return
	}

	h.metrics.observeOperation("delete", nil)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: fmt.Sprintf("credential #%d deleted", id)})
}

// SetDisabled enables or disables a credential.
func (h *Handler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetDisabledRequest
	if !h.decode(w, r, &req) {
		return
	}

	outcome, err := h.admin.SetDisabled(r.Context(), id, req.Disabled)
	if err != nil {
		h.fail(w, "set_disabled", id, err)
		return
	}

	action := "enabled"
	if req.Disabled {
		action = "disabled"
	}
	h.metrics.observeOperation("set_disabled", nil)
	writeJSON(w, http.StatusOK, SetDisabledResponse{
		SuccessResponse: SuccessResponse{Success: true, Message: fmt.Sprintf("credential #%d %s", id, action)},
		Failover:        toFailoverResponse(outcome),
	})
}

// SetPriority changes a credential's priority.
func (h *Handler) SetPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetPriorityRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.admin.SetPriority(r.Context(), id, req.Priority); err != nil {
		h.fail(w, "set_priority", id, err)
		return
	}

	h.metrics.observeOperation("set_priority", nil)
	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("credential #%d priority set to %d", id, req.Priority),
	})
}

// ResetFailureCount zeroes a credential's failures and re-enables it.
func (h *Handler) ResetFailureCount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.admin.ResetAndEnable(r.Context(), id); err != nil {
		h.fail(w, "reset", id, err)
		return
	}

	h.metrics.observeOperation("reset", nil)
	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("credential #%d failure count reset and re-enabled", id),
	})
}

// GetBalance returns upstream usage for a credential.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	bal, err := h.admin.GetBalance(r.Context(), id)
	if err != nil {
		h.fail(w, "balance", id, err)
		return
	}

	h.metrics.observeOperation("balance", nil)
	writeJSON(w, http.StatusOK, toBalanceResponse(bal))
}

// BatchImport adds many credentials. Per-item failures are reported in the
// body; the request itself succeeds.
func (h *Handler) BatchImport(w http.ResponseWriter, r *http.Request) {
	var req BatchImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	specs := make([]model.CreateSpec, 0, len(req.Credentials))
	var parseErrs model.BatchResult
	valid := make([]int, 0, len(req.Credentials))
	for i, c := range req.Credentials {
		spec, err := c.toSpec()
		if err != nil {
			parseErrs.Fail(i, 0, err)
			continue
		}
		specs = append(specs, spec)
		valid = append(valid, i)
	}

	res := h.admin.BatchImport(r.Context(), specs)
	for j := range res.Errors {
		res.Errors[j].Index = valid[res.Errors[j].Index]
	}
	res = mergeBatch(parseErrs, res)

	h.metrics.observeOperation("batch_import", nil)
	writeJSON(w, http.StatusOK, toBatchImportResponse(res))
}

// BatchDelete deletes many credentials.
func (h *Handler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.admin.BatchDelete(r.Context(), req.IDs)

	h.metrics.observeOperation("batch_delete", nil)
	writeJSON(w, http.StatusOK, toBatchDeleteResponse(res))
}

// Export downloads every pooled credential as JSON or CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.KindInvalidCredential, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, h.admin.Export()); err != nil {
		h.fail(w, "export", 0, model.Internal("export", err))
		return
	}

	h.metrics.observeOperation("export", nil)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Health reports liveness and the number of available credentials.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	view := h.admin.Status(1, 1)

	status := "ok"
	if view.Available == 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		Available:   view.Available,
		Credentials: view.Credentials.Total,
		Time:        time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) fail(w http.ResponseWriter, operation string, id int64, err error) {
	h.metrics.observeOperation(operation, err)
	if model.KindOf(err) == model.KindInternal || model.KindOf(err) == "" {
		h.logger.Error("admin operation failed", "operation", operation, "id", id, "error", err)
	} else {
		h.logger.Warn("admin operation rejected", "operation", operation, "id", id, "error", err)
	}
	writeModelError(w, err)
}

// decode reads a JSON body into v, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, model.KindInvalidCredential, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, model.KindInvalidCredential, "invalid credential id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

// mergeBatch combines request-level rejections with service outcomes,
// keeping errors in input order.
func mergeBatch(rejected, res model.BatchResult) model.BatchResult {
	out := model.BatchResult{
		Succeeded: res.Succeeded,
		Failed:    rejected.Failed + res.Failed,
		Errors:    append(rejected.Errors, res.Errors...),
	}
	slices.SortStableFunc(out.Errors, func(a, b model.BatchItemError) int { return cmp.Compare(a.Index, b.Index) })
	return out
}
