// Package repositories provides data access for the permission store and the
// operation audit log.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agentdist/dataguard/pkg/apperrors"
	"github.com/agentdist/dataguard/pkg/database"
	"github.com/agentdist/dataguard/pkg/models"
)

// PermissionRepository provides data access for permission records.
// FindBestMatch serves the checker's lookup path; the remaining methods serve
// the administrative management surface. The guard itself never mutates
// permission records.
type PermissionRepository interface {
	// FindBestMatch returns the most-specific enabled record for the triple:
	// a record for the concrete operation beats an ALL wildcard. Returns
	// (nil, nil) when no enabled record matches.
	FindBestMatch(ctx context.Context, service, table string, op models.OperationType) (*models.PermissionRecord, error)

	// GetByID returns a record by id, or apperrors.ErrRecordNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.PermissionRecord, error)

	// ListByService returns all records (enabled or not) for a service.
	ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error)

	// Create inserts a new record. An enabled duplicate of the triple yields
	// apperrors.ErrDuplicateRecord.
	Create(ctx context.Context, rec *models.PermissionRecord) error

	// Update rewrites level, conditions and enablement of an existing record.
	Update(ctx context.Context, rec *models.PermissionRecord) error

	// Delete removes a record by id, or returns apperrors.ErrRecordNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
}

type permissionRepository struct {
	db *database.DB
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(db *database.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

var _ PermissionRepository = (*permissionRepository)(nil)

const permissionColumns = `id, service_name, table_name, operation_type, permission_level, conditions, is_enabled, created_at, updated_at`

func (r *permissionRepository) FindBestMatch(ctx context.Context, service, table string, op models.OperationType) (*models.PermissionRecord, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM permission_records
		WHERE service_name = $1
		  AND table_name = $2
		  AND operation_type IN ($3, 'ALL')
		  AND is_enabled
		ORDER BY CASE WHEN operation_type = $3 THEN 0 ELSE 1 END
		LIMIT 1`

	rec, err := scanPermissionRecord(r.db.QueryRow(ctx, query, service, table, string(op)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up permission record: %w", err)
	}
	return rec, nil
}

func (r *permissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PermissionRecord, error) {
	query := `SELECT ` + permissionColumns + ` FROM permission_records WHERE id = $1`

	rec, err := scanPermissionRecord(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission record: %w", err)
	}
	return rec, nil
}

func (r *permissionRepository) ListByService(ctx context.Context, service string) ([]*models.PermissionRecord, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM permission_records
		WHERE service_name = $1
		ORDER BY table_name, operation_type`

	rows, err := r.db.Query(ctx, query, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission records: %w", err)
	}
	defer rows.Close()

	var records []*models.PermissionRecord
	for rows.Next() {
		rec, err := scanPermissionRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission records: %w", err)
	}
	return records, nil
}

func (r *permissionRepository) Create(ctx context.Context, rec *models.PermissionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	conditionsJSON, err := marshalConditions(rec.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	query := `
		INSERT INTO permission_records (
			id, service_name, table_name, operation_type, permission_level,
			conditions, is_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		rec.ID,
		rec.ServiceName,
		rec.TableName,
		string(rec.Operation),
		string(rec.Level),
		conditionsJSON,
		rec.IsEnabled,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("failed to create permission record: %w", err)
	}
	return nil
}

func (r *permissionRepository) Update(ctx context.Context, rec *models.PermissionRecord) error {
	rec.UpdatedAt = time.Now()

	conditionsJSON, err := marshalConditions(rec.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	query := `
		UPDATE permission_records
		SET permission_level = $2, conditions = $3, is_enabled = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		rec.ID,
		string(rec.Level),
		conditionsJSON,
		rec.IsEnabled,
		rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("failed to update permission record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRecordNotFound
	}
	return nil
}

func (r *permissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM permission_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRecordNotFound
	}
	return nil
}

func scanPermissionRecord(row pgx.Row) (*models.PermissionRecord, error) {
	var (
		rec            models.PermissionRecord
		operation      string
		level          string
		conditionsJSON []byte
	)

	err := row.Scan(
		&rec.ID,
		&rec.ServiceName,
		&rec.TableName,
		&operation,
		&level,
		&conditionsJSON,
		&rec.IsEnabled,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan permission record: %w", err)
	}

	rec.Operation = models.OperationType(operation)
	rec.Level = models.PermissionLevel(level)

	if len(conditionsJSON) > 0 && string(conditionsJSON) != "null" {
		if err := json.Unmarshal(conditionsJSON, &rec.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}

	return &rec, nil
}

func marshalConditions(conditions []string) ([]byte, error) {
	if len(conditions) == 0 {
		return nil, nil
	}
	return json.Marshal(conditions)
}

// isUniqueViolation reports whether err is a postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
