package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/apperrors"
	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/services"
)

// PermissionHandler handles permission matrix management requests.
type PermissionHandler struct {
	svc    services.PermissionService
	logger *zap.Logger
}

// NewPermissionHandler creates a new PermissionHandler.
func NewPermissionHandler(svc services.PermissionService, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the permission handler's routes on the given mux.
func (h *PermissionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/permissions", h.List)
	mux.HandleFunc("POST /api/permissions", h.Grant)
	mux.HandleFunc("PUT /api/permissions/{id}", h.Update)
	mux.HandleFunc("DELETE /api/permissions/{id}", h.Revoke)
}

type permissionRequest struct {
	ServiceName string                 `json:"service_name"`
	TableName   string                 `json:"table_name"`
	Operation   models.OperationType   `json:"operation_type"`
	Level       models.PermissionLevel `json:"permission_level"`
	Conditions  []string               `json:"conditions"`
	IsEnabled   *bool                  `json:"is_enabled"`
}

// List handles GET /api/permissions?service=<name>
func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "service query parameter is required")
		return
	}

	recs, err := h.svc.ListByService(r.Context(), service)
	if err != nil {
		h.logger.Error("Failed to list permissions",
			zap.String("service", service),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list permissions")
		return
	}

	if err := WriteJSON(w, http.StatusOK, recs); err != nil {
		h.logger.Error("Failed to write permissions response", zap.Error(err))
	}
}

// Grant handles POST /api/permissions
func (h *PermissionHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	rec := recordFrom(req)
	rec.ID = uuid.New()

	if err := h.svc.Grant(r.Context(), rec); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateRecord) {
			ErrorResponse(w, http.StatusConflict, "duplicate_record", "An enabled record for this triple already exists")
			return
		}
		h.logger.Error("Failed to grant permission", zap.Error(err))
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusCreated, rec); err != nil {
		h.logger.Error("Failed to write permission response", zap.Error(err))
	}
}

// Update handles PUT /api/permissions/{id}
func (h *PermissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	rec := recordFrom(req)
	rec.ID = id

	if err := h.svc.Update(r.Context(), rec); err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			ErrorResponse(w, http.StatusNotFound, "not_found", "Permission record not found")
			return
		}
		h.logger.Error("Failed to update permission",
			zap.String("id", id.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, rec); err != nil {
		h.logger.Error("Failed to write permission response", zap.Error(err))
	}
}

// Revoke handles DELETE /api/permissions/{id}
func (h *PermissionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			ErrorResponse(w, http.StatusNotFound, "not_found", "Permission record not found")
			return
		}
		h.logger.Error("Failed to revoke permission",
			zap.String("id", id.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to revoke permission")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func recordFrom(req permissionRequest) *models.PermissionRecord {
	rec := &models.PermissionRecord{
		ServiceName: req.ServiceName,
		TableName:   req.TableName,
		Operation:   req.Operation,
		Level:       req.Level,
		Conditions:  req.Conditions,
		IsEnabled:   true,
	}
	if req.IsEnabled != nil {
		rec.IsEnabled = *req.IsEnabled
	}
	return rec
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "Invalid record ID")
		return uuid.Nil, false
	}
	return id, true
}
