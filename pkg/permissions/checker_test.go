package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/models"
)

// mockPermissionRepository is a mock implementation of PermissionRepository
// for testing. Only FindBestMatch is exercised by the checker.
type mockPermissionRepository struct {
	records map[string]*models.PermissionRecord
	err     error
	calls   int
}

func newMockPermissionRepository() *mockPermissionRepository {
	return &mockPermissionRepository{records: make(map[string]*models.PermissionRecord)}
}

func (m *mockPermissionRepository) put(rec *models.PermissionRecord) {
	m.records[models.PermissionKey(rec.ServiceName, rec.TableName, rec.Operation)] = rec
}

func (m *mockPermissionRepository) FindBestMatch(ctx context.Context, service, table string, op models.OperationType) (*models.PermissionRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	// Specific operation wins over the ALL wildcard, like the store query.
	if rec, ok := m.records[models.PermissionKey(service, table, op)]; ok && rec.IsEnabled {
		return rec, nil
	}
	if rec, ok := m.records[models.PermissionKey(service, table, models.OperationAll)]; ok && rec.IsEnabled {
		return rec, nil
	}
	return nil, nil
}

func (m *mockPermissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PermissionRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPermissionRepository) ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPermissionRepository) Create(ctx context.Context, rec *models.PermissionRecord) error {
	return errors.New("not implemented")
}

func (m *mockPermissionRepository) Update(ctx context.Context, rec *models.PermissionRecord) error {
	return errors.New("not implemented")
}

func (m *mockPermissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return errors.New("not implemented")
}

func newTestChecker(repo *mockPermissionRepository, static StaticGrants) Checker {
	if static == nil {
		static = StaticGrants{}
	}
	return NewChecker(repo, NewMemoryVerdictCache(time.Minute), static, zap.NewNop())
}

func record(service, table string, op models.OperationType, level models.PermissionLevel) *models.PermissionRecord {
	return &models.PermissionRecord{
		ID:          uuid.New(),
		ServiceName: service,
		TableName:   table,
		Operation:   op,
		Level:       level,
		IsEnabled:   true,
	}
}

func TestChecker_DefaultDeny(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := newTestChecker(repo, nil)

	// No record, no static grant: denied.
	allowed := checker.Check(context.Background(), "lead-service", "rewards", models.OperationSelect)
	assert.False(t, allowed)
}

func TestChecker_FullPermissionAllows(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationSelect, models.PermissionFull))
	checker := newTestChecker(repo, nil)

	assert.True(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationSelect))
}

func TestChecker_DeniedPermissionRejects(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationDelete, models.PermissionDenied))
	checker := newTestChecker(repo, nil)

	assert.False(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationDelete))
}

func TestChecker_SpecificOperationBeatsWildcard(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationAll, models.PermissionFull))
	repo.put(record("lead-service", "leads", models.OperationDelete, models.PermissionDenied))
	checker := newTestChecker(repo, nil)

	// The wildcard grants everything except the explicitly denied DELETE.
	assert.True(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationSelect))
	assert.True(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationUpdate))
	assert.False(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationDelete))
}

func TestChecker_DisabledRecordIsAbsent(t *testing.T) {
	repo := newMockPermissionRepository()
	rec := record("lead-service", "leads", models.OperationSelect, models.PermissionFull)
	rec.IsEnabled = false
	repo.put(rec)
	checker := newTestChecker(repo, nil)

	// Disabled FULL grant behaves as if it does not exist: default deny.
	assert.False(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationSelect))
}

func TestChecker_CacheHitSkipsStore(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationSelect, models.PermissionFull))
	checker := newTestChecker(repo, nil)

	ctx := context.Background()
	assert.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	assert.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	assert.Equal(t, 1, repo.calls, "second check should be served from cache")
}

func TestChecker_NegativeVerdictIsCached(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := newTestChecker(repo, nil)

	ctx := context.Background()
	assert.False(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	assert.False(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	assert.Equal(t, 1, repo.calls, "denial should be cached like a grant")
}

func TestChecker_LookupErrorFailsClosed(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.err = errors.New("connection refused")
	checker := newTestChecker(repo, nil)

	ctx := context.Background()
	assert.False(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))

	// Error verdicts are not cached: a recovered store is consulted again.
	repo.err = nil
	repo.put(record("lead-service", "leads", models.OperationSelect, models.PermissionFull))
	assert.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
}

func TestChecker_StaticFallbackWhenStoreEmpty(t *testing.T) {
	repo := newMockPermissionRepository()
	checker := newTestChecker(repo, DefaultStaticGrants())

	ctx := context.Background()
	assert.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationDelete),
		"ALL static grant covers every concrete operation")
	assert.True(t, checker.Check(ctx, "auth-service", "users", models.OperationInsert))
	assert.False(t, checker.Check(ctx, "auth-service", "users", models.OperationDelete),
		"static grant lists operations exhaustively")
	assert.False(t, checker.Check(ctx, "unknown-service", "users", models.OperationSelect))
}

func TestChecker_DynamicRecordOverridesStaticGrant(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationDelete, models.PermissionDenied))
	checker := newTestChecker(repo, DefaultStaticGrants())

	// The static matrix grants ALL on leads, but the explicit record wins.
	assert.False(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationDelete))
}

func TestChecker_RestrictedConditionsEvaluatedPerCall(t *testing.T) {
	repo := newMockPermissionRepository()
	rec := record("lead-service", "leads", models.OperationUpdate, models.PermissionRestricted)
	rec.Conditions = []string{"method_name==updateLeadOwner"}
	repo.put(rec)
	checker := newTestChecker(repo, nil)

	ctx := context.Background()

	matching := &models.AccessContext{
		ServiceName: "lead-service",
		TableName:   "leads",
		Operation:   models.OperationUpdate,
		MethodName:  "updateLeadOwner",
	}
	require.True(t, checker.CheckContext(ctx, matching))

	// Same cached verdict, different method: conditions re-evaluated on hit.
	other := &models.AccessContext{
		ServiceName: "lead-service",
		TableName:   "leads",
		Operation:   models.OperationUpdate,
		MethodName:  "updateLeadStatus",
	}
	assert.False(t, checker.CheckContext(ctx, other))
	assert.Equal(t, 1, repo.calls)
}

func TestChecker_UnparseableConditionAllows(t *testing.T) {
	repo := newMockPermissionRepository()
	rec := record("lead-service", "leads", models.OperationSelect, models.PermissionRestricted)
	rec.Conditions = []string{"not a condition"}
	repo.put(rec)
	checker := newTestChecker(repo, nil)

	// Malformed condition degrades the RESTRICTED grant toward FULL.
	assert.True(t, checker.Check(context.Background(), "lead-service", "leads", models.OperationSelect))
}

func TestChecker_InvalidateTriple(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationSelect, models.PermissionFull))
	checker := newTestChecker(repo, nil)

	ctx := context.Background()
	require.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	require.Equal(t, 1, repo.calls)

	checker.InvalidateTriple(ctx, "lead-service", "leads", models.OperationSelect)

	require.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	assert.Equal(t, 2, repo.calls, "invalidation should force a store lookup")
}

func TestChecker_InvalidateAllDropsConcreteKeys(t *testing.T) {
	repo := newMockPermissionRepository()
	repo.put(record("lead-service", "leads", models.OperationAll, models.PermissionFull))
	checker := newTestChecker(repo, nil)

	ctx := context.Background()
	// Wildcard verdicts are cached under the concrete operation that was
	// checked.
	require.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	require.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationDelete))
	require.Equal(t, 2, repo.calls)

	checker.InvalidateTriple(ctx, "lead-service", "leads", models.OperationAll)

	require.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationSelect))
	require.True(t, checker.Check(ctx, "lead-service", "leads", models.OperationDelete))
	assert.Equal(t, 4, repo.calls)
}
