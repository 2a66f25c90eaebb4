package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/apperrors"
	"github.com/agentdist/dataguard/pkg/models"
)

// mockPermissionRepository is an in-memory PermissionRepository.
type mockPermissionRepository struct {
	records map[uuid.UUID]*models.PermissionRecord
}

func newMockPermissionRepository() *mockPermissionRepository {
	return &mockPermissionRepository{records: make(map[uuid.UUID]*models.PermissionRecord)}
}

func (m *mockPermissionRepository) FindBestMatch(ctx context.Context, service, table string, op models.OperationType) (*models.PermissionRecord, error) {
	return nil, nil
}

func (m *mockPermissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PermissionRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *mockPermissionRepository) ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error) {
	var out []*models.PermissionRecord
	for _, rec := range m.records {
		if rec.ServiceName == service {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) Create(ctx context.Context, rec *models.PermissionRecord) error {
	for _, existing := range m.records {
		if existing.IsEnabled && rec.IsEnabled &&
			existing.ServiceName == rec.ServiceName &&
			existing.TableName == rec.TableName &&
			existing.Operation == rec.Operation {
			return apperrors.ErrDuplicateRecord
		}
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *mockPermissionRepository) Update(ctx context.Context, rec *models.PermissionRecord) error {
	if _, ok := m.records[rec.ID]; !ok {
		return apperrors.ErrRecordNotFound
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *mockPermissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return apperrors.ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

// mockChecker records invalidations.
type mockChecker struct {
	invalidated []string
}

func (m *mockChecker) Check(ctx context.Context, service, table string, op models.OperationType) bool {
	return false
}

func (m *mockChecker) CheckContext(ctx context.Context, ac *models.AccessContext) bool {
	return false
}

func (m *mockChecker) InvalidateTriple(ctx context.Context, service, table string, op models.OperationType) {
	m.invalidated = append(m.invalidated, models.PermissionKey(service, table, op))
}

func fullRecord() *models.PermissionRecord {
	return &models.PermissionRecord{
		ID:          uuid.New(),
		ServiceName: "lead-service",
		TableName:   "leads",
		Operation:   models.OperationSelect,
		Level:       models.PermissionFull,
		IsEnabled:   true,
	}
}

func TestPermissionService_GrantInvalidatesCache(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := &mockChecker{}
	svc := NewPermissionService(repo, checker, zap.NewNop())

	rec := fullRecord()
	require.NoError(t, svc.Grant(context.Background(), rec))

	assert.Len(t, repo.records, 1)
	assert.Equal(t, []string{"lead-service:leads:SELECT"}, checker.invalidated)
}

func TestPermissionService_GrantRejectsDuplicate(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := &mockChecker{}
	svc := NewPermissionService(repo, checker, zap.NewNop())

	require.NoError(t, svc.Grant(context.Background(), fullRecord()))
	err := svc.Grant(context.Background(), fullRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRecord)
}

func TestPermissionService_GrantValidation(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := &mockChecker{}
	svc := NewPermissionService(repo, checker, zap.NewNop())

	tests := []struct {
		name   string
		mutate func(*models.PermissionRecord)
	}{
		{"missing service", func(r *models.PermissionRecord) { r.ServiceName = "" }},
		{"missing table", func(r *models.PermissionRecord) { r.TableName = "" }},
		{"bad operation", func(r *models.PermissionRecord) { r.Operation = "TRUNCATE" }},
		{"bad level", func(r *models.PermissionRecord) { r.Level = "PARTIAL" }},
		{"restricted without conditions", func(r *models.PermissionRecord) {
			r.Level = models.PermissionRestricted
			r.Conditions = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fullRecord()
			tt.mutate(rec)
			assert.Error(t, svc.Grant(context.Background(), rec))
		})
	}
	assert.Empty(t, repo.records, "invalid records must never reach the store")
	assert.Empty(t, checker.invalidated)
}

func TestPermissionService_UpdateInvalidatesOldAndNewTriple(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := &mockChecker{}
	svc := NewPermissionService(repo, checker, zap.NewNop())

	rec := fullRecord()
	require.NoError(t, svc.Grant(context.Background(), rec))
	checker.invalidated = nil

	updated := *rec
	updated.Operation = models.OperationUpdate
	require.NoError(t, svc.Update(context.Background(), &updated))

	assert.Equal(t, []string{
		"lead-service:leads:SELECT",
		"lead-service:leads:UPDATE",
	}, checker.invalidated)
}

func TestPermissionService_RevokeInvalidatesCache(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := &mockChecker{}
	svc := NewPermissionService(repo, checker, zap.NewNop())

	rec := fullRecord()
	require.NoError(t, svc.Grant(context.Background(), rec))
	checker.invalidated = nil

	require.NoError(t, svc.Revoke(context.Background(), rec.ID))
	assert.Empty(t, repo.records)
	assert.Equal(t, []string{"lead-service:leads:SELECT"}, checker.invalidated)
}

func TestPermissionService_RevokeMissingRecord(t *testing.T) {
	repo := newMockPermissionRepository()
	svc := NewPermissionService(repo, &mockChecker{}, zap.NewNop())

	err := svc.Revoke(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
}

func TestPermissionService_SetEnabled(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := &mockChecker{}
	svc := NewPermissionService(repo, checker, zap.NewNop())

	rec := fullRecord()
	require.NoError(t, svc.Grant(context.Background(), rec))
	checker.invalidated = nil

	require.NoError(t, svc.SetEnabled(context.Background(), rec.ID, false))
	assert.False(t, repo.records[rec.ID].IsEnabled)
	assert.Equal(t, []string{"lead-service:leads:SELECT"}, checker.invalidated)

	// No-op toggle skips the store write and the invalidation.
	checker.invalidated = nil
	require.NoError(t, svc.SetEnabled(context.Background(), rec.ID, false))
	assert.Empty(t, checker.invalidated)
}

func TestPermissionService_ListByService(t *testing.T) {
	repo := newMockPermissionRepository()
	svc := NewPermissionService(repo, &mockChecker{}, zap.NewNop())

	require.NoError(t, svc.Grant(context.Background(), fullRecord()))
	other := fullRecord()
	other.ServiceName = "reward-service"
	require.NoError(t, svc.Grant(context.Background(), other))

	recs, err := svc.ListByService(context.Background(), "lead-service")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
