package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/apperrors"
	"github.com/agentdist/dataguard/pkg/models"
)

// mockPermissionService is a canned PermissionService for handler tests.
type mockPermissionService struct {
	granted []*models.PermissionRecord
	revoked []uuid.UUID
	err     error
}

func (m *mockPermissionService) Grant(ctx context.Context, rec *models.PermissionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.granted = append(m.granted, rec)
	return nil
}

func (m *mockPermissionService) Update(ctx context.Context, rec *models.PermissionRecord) error {
	return m.err
}

func (m *mockPermissionService) Revoke(ctx context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.revoked = append(m.revoked, id)
	return nil
}

func (m *mockPermissionService) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return m.err
}

func (m *mockPermissionService) ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.granted, nil
}

func permissionMux(svc *mockPermissionService) *http.ServeMux {
	mux := http.NewServeMux()
	NewPermissionHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestPermissionHandler_Grant(t *testing.T) {
	svc := &mockPermissionService{}
	mux := permissionMux(svc)

	body, _ := json.Marshal(map[string]any{
		"service_name":     "lead-service",
		"table_name":       "leads",
		"operation_type":   "SELECT",
		"permission_level": "FULL",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/permissions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.granted, 1)
	granted := svc.granted[0]
	assert.Equal(t, "lead-service", granted.ServiceName)
	assert.Equal(t, models.OperationSelect, granted.Operation)
	assert.True(t, granted.IsEnabled, "records default to enabled")
	assert.NotEqual(t, uuid.Nil, granted.ID)
}

func TestPermissionHandler_GrantDuplicate(t *testing.T) {
	svc := &mockPermissionService{err: apperrors.ErrDuplicateRecord}
	mux := permissionMux(svc)

	body, _ := json.Marshal(map[string]any{
		"service_name":     "lead-service",
		"table_name":       "leads",
		"operation_type":   "SELECT",
		"permission_level": "FULL",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/permissions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPermissionHandler_GrantBadBody(t *testing.T) {
	mux := permissionMux(&mockPermissionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/permissions", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionHandler_ListRequiresService(t *testing.T) {
	mux := permissionMux(&mockPermissionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionHandler_Revoke(t *testing.T) {
	svc := &mockPermissionService{}
	mux := permissionMux(svc)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/permissions/"+id.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, svc.revoked)
}

func TestPermissionHandler_RevokeNotFound(t *testing.T) {
	svc := &mockPermissionService{err: apperrors.ErrRecordNotFound}
	mux := permissionMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/permissions/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissionHandler_RevokeBadID(t *testing.T) {
	mux := permissionMux(&mockPermissionService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/permissions/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
