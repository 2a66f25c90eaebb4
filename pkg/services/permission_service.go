// Package services holds the administrative surfaces of the subsystem:
// permission matrix management and audit trail queries.
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/permissions"
	"github.com/agentdist/dataguard/pkg/repositories"
)

// PermissionService manages the permission matrix. Every mutation invalidates
// the cached verdicts for the affected (service, table, operation) triples, so
// matrix changes take effect on the next check instead of waiting out the TTL.
type PermissionService interface {
	// Grant creates a permission record. Returns apperrors.ErrDuplicateRecord
	// when an enabled record for the triple already exists.
	Grant(ctx context.Context, rec *models.PermissionRecord) error

	// Update replaces the stored record with the given state. When the update
	// moves the record to a different triple, both the old and the new triple
	// are invalidated.
	Update(ctx context.Context, rec *models.PermissionRecord) error

	// Revoke deletes a permission record by ID.
	Revoke(ctx context.Context, id uuid.UUID) error

	// SetEnabled toggles a record without touching its other fields. A
	// disabled record is invisible to lookups, so this is the reversible way
	// to suspend a grant.
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error

	// ListByService returns all records for a service, enabled or not.
	ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error)
}

type permissionService struct {
	repo    repositories.PermissionRepository
	checker permissions.Checker
	logger  *zap.Logger
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(repo repositories.PermissionRepository, checker permissions.Checker, logger *zap.Logger) PermissionService {
	return &permissionService{
		repo:    repo,
		checker: checker,
		logger:  logger.Named("permission-service"),
	}
}

var _ PermissionService = (*permissionService)(nil)

func (s *permissionService) Grant(ctx context.Context, rec *models.PermissionRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to create permission record",
			zap.String("service", rec.ServiceName),
			zap.String("table", rec.TableName),
			zap.String("operation", string(rec.Operation)),
			zap.Error(err))
		return fmt.Errorf("create permission record: %w", err)
	}

	s.checker.InvalidateTriple(ctx, rec.ServiceName, rec.TableName, rec.Operation)
	s.logger.Info("Permission granted",
		zap.String("service", rec.ServiceName),
		zap.String("table", rec.TableName),
		zap.String("operation", string(rec.Operation)),
		zap.String("level", string(rec.Level)))
	return nil
}

func (s *permissionService) Update(ctx context.Context, rec *models.PermissionRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	prev, err := s.repo.GetByID(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load permission record: %w", err)
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		s.logger.Error("Failed to update permission record",
			zap.String("id", rec.ID.String()),
			zap.Error(err))
		return fmt.Errorf("update permission record: %w", err)
	}

	s.checker.InvalidateTriple(ctx, prev.ServiceName, prev.TableName, prev.Operation)
	s.checker.InvalidateTriple(ctx, rec.ServiceName, rec.TableName, rec.Operation)
	return nil
}

func (s *permissionService) Revoke(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load permission record: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete permission record",
			zap.String("id", id.String()),
			zap.Error(err))
		return fmt.Errorf("delete permission record: %w", err)
	}

	s.checker.InvalidateTriple(ctx, rec.ServiceName, rec.TableName, rec.Operation)
	s.logger.Info("Permission revoked",
		zap.String("service", rec.ServiceName),
		zap.String("table", rec.TableName),
		zap.String("operation", string(rec.Operation)))
	return nil
}

func (s *permissionService) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load permission record: %w", err)
	}
	if rec.IsEnabled == enabled {
		return nil
	}

	rec.IsEnabled = enabled
	if err := s.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("update permission record: %w", err)
	}

	s.checker.InvalidateTriple(ctx, rec.ServiceName, rec.TableName, rec.Operation)
	return nil
}

func (s *permissionService) ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error) {
	recs, err := s.repo.ListByService(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("list permission records: %w", err)
	}
	return recs, nil
}

func validateRecord(rec *models.PermissionRecord) error {
	if rec.ServiceName == "" || rec.TableName == "" {
		return fmt.Errorf("service name and table name are required")
	}
	if !rec.Operation.Valid() {
		return fmt.Errorf("invalid operation type %q", rec.Operation)
	}
	if !rec.Level.Valid() {
		return fmt.Errorf("invalid permission level %q", rec.Level)
	}
	if rec.Level == models.PermissionRestricted && len(rec.Conditions) == 0 {
		return fmt.Errorf("RESTRICTED permission requires at least one condition")
	}
	return nil
}
