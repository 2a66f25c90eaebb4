package permissions

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/metrics"
	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/repositories"
)

// Checker decides whether a (service, table, operation) call is authorized.
//
// Lookup order: cache, then store (most-specific enabled record), then the
// static fallback matrix, then default deny. Any lookup error denies: the
// checker fails closed, because denying availability is safer than granting
// unauthorized access.
type Checker interface {
	// Check evaluates a bare triple. RESTRICTED conditions that reference
	// request-scoped fields are evaluated against an empty context.
	Check(ctx context.Context, service, table string, op models.OperationType) bool

	// CheckContext evaluates a full access context, including RESTRICTED
	// condition matching against its fields.
	CheckContext(ctx context.Context, ac *models.AccessContext) bool

	// InvalidateTriple drops cached verdicts for the triple. For an ALL
	// operation the concrete operation keys are dropped too, since wildcard
	// verdicts are cached under the operation that was checked.
	InvalidateTriple(ctx context.Context, service, table string, op models.OperationType)
}

type checker struct {
	repo   repositories.PermissionRepository
	cache  VerdictCache
	static StaticGrants
	logger *zap.Logger
}

// NewChecker creates a permission checker backed by the given store, cache
// and static fallback matrix.
func NewChecker(repo repositories.PermissionRepository, cache VerdictCache, static StaticGrants, logger *zap.Logger) Checker {
	return &checker{
		repo:   repo,
		cache:  cache,
		static: static,
		logger: logger.Named("permission-checker"),
	}
}

var _ Checker = (*checker)(nil)

func (c *checker) Check(ctx context.Context, service, table string, op models.OperationType) bool {
	return c.CheckContext(ctx, &models.AccessContext{
		ServiceName: service,
		TableName:   table,
		Operation:   op,
	})
}

func (c *checker) CheckContext(ctx context.Context, ac *models.AccessContext) bool {
	key := models.PermissionKey(ac.ServiceName, ac.TableName, ac.Operation)

	if cached, ok := c.cache.Get(ctx, key); ok {
		allowed := c.verdictAllows(cached, ac)
		metrics.PermissionChecksTotal.WithLabelValues(verdictLabel(allowed), "cache").Inc()
		return allowed
	}

	verdict, source, err := c.resolve(ctx, ac)
	if err != nil {
		// Fail closed. The error verdict is not cached so a recovered store
		// is consulted again immediately.
		c.logger.Error("Permission lookup failed, denying",
			zap.String("service", ac.ServiceName),
			zap.String("table", ac.TableName),
			zap.String("operation", string(ac.Operation)),
			zap.Error(err))
		metrics.PermissionChecksTotal.WithLabelValues("deny", "error").Inc()
		return false
	}

	c.cache.Set(ctx, key, verdict)

	allowed := c.verdictAllows(&verdict, ac)
	metrics.PermissionChecksTotal.WithLabelValues(verdictLabel(allowed), source).Inc()
	return allowed
}

// resolve consults the store and, when it has no record, the static fallback
// matrix. Negative outcomes are returned as DENIED verdicts so they are
// cached like grants.
func (c *checker) resolve(ctx context.Context, ac *models.AccessContext) (CachedVerdict, string, error) {
	rec, err := c.repo.FindBestMatch(ctx, ac.ServiceName, ac.TableName, ac.Operation)
	if err != nil {
		return CachedVerdict{}, "", err
	}
	if rec != nil {
		return CachedVerdict{Level: rec.Level, Conditions: rec.Conditions}, "store", nil
	}

	if c.static.Allows(ac.ServiceName, ac.TableName, ac.Operation) {
		return CachedVerdict{Level: models.PermissionFull}, "fallback", nil
	}

	return CachedVerdict{Level: models.PermissionDenied}, "store", nil
}

func (c *checker) verdictAllows(v *CachedVerdict, ac *models.AccessContext) bool {
	switch v.Level {
	case models.PermissionFull:
		return true
	case models.PermissionRestricted:
		return evaluateConditions(v.Conditions, ac, c.logger)
	default:
		return false
	}
}

func (c *checker) InvalidateTriple(ctx context.Context, service, table string, op models.OperationType) {
	keys := []string{models.PermissionKey(service, table, op)}
	if op == models.OperationAll {
		for _, concrete := range models.ConcreteOperations {
			keys = append(keys, models.PermissionKey(service, table, concrete))
		}
	}
	c.cache.Invalidate(ctx, keys...)
}

func verdictLabel(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
