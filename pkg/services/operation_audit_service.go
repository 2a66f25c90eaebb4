package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/repositories"
)

const defaultAuditPageSize = 100

// OperationAuditService exposes the audit trail to operators: filtered
// queries and retention enforcement. The trail itself is append-only; the
// only deletion path is the retention purge.
type OperationAuditService interface {
	// List returns audit entries matching the filters, newest first.
	List(ctx context.Context, filters models.OperationAuditFilters) ([]*models.OperationAuditEntry, error)

	// PurgeExpired deletes entries older than the retention window and
	// returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

type operationAuditService struct {
	repo          repositories.OperationAuditRepository
	retentionDays int
	logger        *zap.Logger
}

// NewOperationAuditService creates a new OperationAuditService.
func NewOperationAuditService(repo repositories.OperationAuditRepository, retentionDays int, logger *zap.Logger) OperationAuditService {
	return &operationAuditService{
		repo:          repo,
		retentionDays: retentionDays,
		logger:        logger.Named("operation-audit-service"),
	}
}

var _ OperationAuditService = (*operationAuditService)(nil)

func (s *operationAuditService) List(ctx context.Context, filters models.OperationAuditFilters) ([]*models.OperationAuditEntry, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultAuditPageSize
	}

	entries, err := s.repo.List(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

func (s *operationAuditService) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to purge expired audit entries",
			zap.Time("cutoff", cutoff),
			zap.Error(err))
		return 0, fmt.Errorf("purge expired audit entries: %w", err)
	}

	if removed > 0 {
		s.logger.Info("Purged expired audit entries",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
