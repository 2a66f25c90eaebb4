// Package guard implements the single enforcement point wrapping every
// data-layer call: build context, check permission, proceed or deny, measure,
// audit, propagate the original result or error.
package guard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/apperrors"
	"github.com/agentdist/dataguard/pkg/audit"
	"github.com/agentdist/dataguard/pkg/config"
	"github.com/agentdist/dataguard/pkg/metrics"
	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/permissions"
)

// Executor is the wrapped data-layer operation. The guard invokes it with a
// context flagged as in-guard so nested data access bypasses enforcement.
type Executor func(ctx context.Context) (any, error)

// DataChange carries optional before/after snapshots for write operations
// that opted into change-logging.
type DataChange struct {
	Before any
	After  any
}

// ownTables are the subsystem's own bookkeeping tables. Calls targeting them
// proceed unguarded so the guard never gates its own storage.
var ownTables = map[string]struct{}{
	"permission_records":  {},
	"operation_audit_log": {},
	"schema_migrations":   {},
}

// Guard orchestrates the enforcement pipeline. It is safe for concurrent use;
// all per-call state lives on the AccessContext.
type Guard struct {
	checker            permissions.Checker
	auditor            audit.Logger
	logger             *zap.Logger
	enabled            bool
	excluded           map[string]struct{}
	slowQueryThreshold time.Duration
}

// New creates an AccessGuard from the pipeline configuration.
func New(checker permissions.Checker, auditor audit.Logger, cfg config.GuardConfig, logger *zap.Logger) *Guard {
	excluded := make(map[string]struct{}, len(cfg.ExcludedServices))
	for _, svc := range cfg.ExcludedServices {
		excluded[svc] = struct{}{}
	}
	return &Guard{
		checker:            checker,
		auditor:            auditor,
		logger:             logger.Named("access-guard"),
		enabled:            cfg.Enabled,
		excluded:           excluded,
		slowQueryThreshold: time.Duration(cfg.SlowQueryThresholdMs) * time.Millisecond,
	}
}

// Execute runs fn under enforcement. On denial fn is never invoked and an
// *apperrors.AccessDeniedError is returned; on failure fn's error is returned
// unchanged after the FAILED audit entry is written.
func (g *Guard) Execute(ctx context.Context, call models.CallInfo, fn Executor) (any, error) {
	result, _, err := g.execute(ctx, call, fn, g.logSuccess)
	return result, err
}

// ExecuteQuery is the read-path entry point: identical to Execute plus
// slow-query detection. A read exceeding the threshold emits a warning signal
// and a metric; the call's result and status are never affected.
func (g *Guard) ExecuteQuery(ctx context.Context, call models.CallInfo, fn Executor) (any, error) {
	result, ac, err := g.execute(ctx, call, fn, g.logSuccess)
	if ac != nil && ac.Status != models.StatusDenied && ac.ExecutionTimeMs > g.slowQueryThreshold.Milliseconds() {
		metrics.SlowQueriesTotal.WithLabelValues(ac.TableName).Inc()
		g.logger.Warn("Slow query detected",
			zap.String("request_id", ac.RequestID.String()),
			zap.String("service", ac.ServiceName),
			zap.String("table", ac.TableName),
			zap.String("method", ac.MethodName),
			zap.Int64("execution_time_ms", ac.ExecutionTimeMs),
			zap.Int64("threshold_ms", g.slowQueryThreshold.Milliseconds()))
	}
	return result, err
}

// ExecuteWrite is the write-path entry point. A numeric result is captured as
// the affected-row count, and callers that supply snapshots get a
// change-logging audit entry instead of the plain success entry.
func (g *Guard) ExecuteWrite(ctx context.Context, call models.CallInfo, change *DataChange, fn Executor) (any, error) {
	onSuccess := g.logSuccess
	if change != nil {
		onSuccess = func(ctx context.Context, ac *models.AccessContext, result any) {
			g.auditor.LogWithDataChange(ctx, ac, change.Before, change.After, result)
		}
	}
	result, _, err := g.execute(ctx, call, fn, onSuccess)
	return result, err
}

func (g *Guard) execute(ctx context.Context, call models.CallInfo, fn Executor, onSuccess func(context.Context, *models.AccessContext, any)) (any, *models.AccessContext, error) {
	if g.bypass(ctx, call) {
		result, err := fn(ctx)
		return result, nil, err
	}

	// Everything below runs with the in-guard flag set: the checker's store
	// reads, the audit writes, and the wrapped call's own nested data access
	// all proceed without re-entering the guard.
	gctx := markInGuard(ctx)
	ac := models.NewAccessContext(gctx, call)

	if !g.checker.CheckContext(gctx, ac) {
		denied := apperrors.NewAccessDenied(ac.ServiceName, ac.TableName, string(ac.Operation))
		ac.MarkDenied(denied.Reason)
		g.auditor.LogDenied(gctx, ac, denied.Reason)
		metrics.AccessDeniedTotal.WithLabelValues(ac.ServiceName, ac.TableName).Inc()
		return nil, ac, denied
	}

	result, err := fn(gctx)
	if err != nil {
		ac.MarkFailure(err)
		g.auditor.LogFailure(gctx, ac, err)
		g.observe(ac)
		// Re-raise the original error unchanged: the guard never swallows or
		// rewrites business errors.
		return nil, ac, err
	}

	ac.MarkSuccess(result, affectedRows(result))
	onSuccess(gctx, ac, result)
	g.observe(ac)
	return result, ac, nil
}

// bypass reports whether the call proceeds unguarded: subsystem disabled,
// caller on the exclusion allow-list, target is one of the guard's own
// tables, or the context is already inside a guarded call.
func (g *Guard) bypass(ctx context.Context, call models.CallInfo) bool {
	if !g.enabled {
		return true
	}
	if _, ok := g.excluded[call.ServiceName]; ok {
		return true
	}
	if _, ok := ownTables[resolveTable(call)]; ok {
		return true
	}
	return InGuard(ctx)
}

func (g *Guard) logSuccess(ctx context.Context, ac *models.AccessContext, result any) {
	if ac.SQLStatement != "" {
		g.auditor.LogSQLExecution(ctx, ac, ac.SQLStatement, result)
		return
	}
	g.auditor.LogSuccess(ctx, ac, result)
}

func (g *Guard) observe(ac *models.AccessContext) {
	metrics.CallDuration.WithLabelValues(string(ac.Operation)).
		Observe(float64(ac.ExecutionTimeMs) / 1000)
}

func resolveTable(call models.CallInfo) string {
	if call.TableName != "" {
		return call.TableName
	}
	return models.TableNameForEntity(call.EntityName)
}

// affectedRows extracts a row count from numeric results. Non-numeric results
// carry no count.
func affectedRows(result any) *int64 {
	var rows int64
	switch v := result.(type) {
	case int:
		rows = int64(v)
	case int32:
		rows = int64(v)
	case int64:
		rows = v
	default:
		return nil
	}
	return &rows
}
