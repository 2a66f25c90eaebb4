package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/services"
)

// AuditHandler handles audit trail query requests.
type AuditHandler struct {
	svc    services.OperationAuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(svc services.OperationAuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/audit", h.List)
}

// List handles GET /api/audit with optional filters: service, table,
// operation, user_id, status, since, until (RFC 3339), limit, offset.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := parseAuditFilters(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	entries, err := h.svc.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list audit entries", zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list audit entries")
		return
	}

	if err := WriteJSON(w, http.StatusOK, entries); err != nil {
		h.logger.Error("Failed to write audit response", zap.Error(err))
	}
}

func parseAuditFilters(r *http.Request) (models.OperationAuditFilters, error) {
	q := r.URL.Query()

	filters := models.OperationAuditFilters{
		ServiceName: q.Get("service"),
		TableName:   q.Get("table"),
		Operation:   models.OperationType(q.Get("operation")),
		Status:      models.CallStatus(q.Get("status")),
	}

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filters, errInvalidFilter("user_id")
		}
		filters.UserID = &id
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errInvalidFilter("since")
		}
		filters.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errInvalidFilter("until")
		}
		filters.Until = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filters, errInvalidFilter("limit")
		}
		filters.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filters, errInvalidFilter("offset")
		}
		filters.Offset = n
	}

	return filters, nil
}

type filterError struct{ field string }

func (e filterError) Error() string { return "invalid value for " + e.field }

func errInvalidFilter(field string) error { return filterError{field: field} }
