package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentdist/dataguard/pkg/database"
	"github.com/agentdist/dataguard/pkg/models"
)

// OperationAuditRepository provides data access for the operation audit log.
// The log is append-only from the online path: Create is the only write, and
// DeleteOlderThan exists solely for the offline retention job.
type OperationAuditRepository interface {
	// Create inserts one audit entry.
	Create(ctx context.Context, entry *models.OperationAuditEntry) error

	// List returns entries matching the filters, newest first.
	List(ctx context.Context, filters models.OperationAuditFilters) ([]*models.OperationAuditEntry, error)

	// DeleteOlderThan purges entries created before the cutoff and returns
	// the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type operationAuditRepository struct {
	db *database.DB
}

// NewOperationAuditRepository creates a new OperationAuditRepository.
func NewOperationAuditRepository(db *database.DB) OperationAuditRepository {
	return &operationAuditRepository{db: db}
}

var _ OperationAuditRepository = (*operationAuditRepository)(nil)

const auditColumns = `id, request_id, service_name, table_name, operation_type, method_name, method_args,
	user_id, ip_address, user_agent, status, affected_rows, execution_time_ms,
	error_message, sql_statement, before_data, after_data, security_flags, created_at`

func (r *operationAuditRepository) Create(ctx context.Context, entry *models.OperationAuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO operation_audit_log (
			id, request_id, service_name, table_name, operation_type, method_name, method_args,
			user_id, ip_address, user_agent, status, affected_rows, execution_time_ms,
			error_message, sql_statement, before_data, after_data, security_flags, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.ServiceName,
		entry.TableName,
		string(entry.Operation),
		nullableString(entry.MethodName),
		nullableString(entry.MethodArgs),
		entry.UserID,
		entry.IPAddress,
		entry.UserAgent,
		string(entry.Status),
		entry.AffectedRows,
		entry.ExecutionTimeMs,
		entry.ErrorMessage,
		entry.SQLStatement,
		entry.BeforeData,
		entry.AfterData,
		entry.SecurityFlags,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

func (r *operationAuditRepository) List(ctx context.Context, filters models.OperationAuditFilters) ([]*models.OperationAuditEntry, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	conditions := []string{}
	args := []any{}
	argIdx := 1

	addFilter := func(clause string, value any) {
		conditions = append(conditions, fmt.Sprintf(clause, argIdx))
		args = append(args, value)
		argIdx++
	}

	if filters.ServiceName != "" {
		addFilter("service_name = $%d", filters.ServiceName)
	}
	if filters.TableName != "" {
		addFilter("table_name = $%d", filters.TableName)
	}
	if filters.Operation != "" {
		addFilter("operation_type = $%d", string(filters.Operation))
	}
	if filters.UserID != nil {
		addFilter("user_id = $%d", *filters.UserID)
	}
	if filters.Status != "" {
		addFilter("status = $%d", string(filters.Status))
	}
	if filters.Since != nil {
		addFilter("created_at >= $%d", *filters.Since)
	}
	if filters.Until != nil {
		addFilter("created_at <= $%d", *filters.Until)
	}

	query := `SELECT ` + auditColumns + ` FROM operation_audit_log`
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.OperationAuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

func (r *operationAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM operation_audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAuditEntry(row pgx.Row) (*models.OperationAuditEntry, error) {
	var (
		entry      models.OperationAuditEntry
		operation  string
		status     string
		methodName *string
		methodArgs *string
	)

	err := row.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.ServiceName,
		&entry.TableName,
		&operation,
		&methodName,
		&methodArgs,
		&entry.UserID,
		&entry.IPAddress,
		&entry.UserAgent,
		&status,
		&entry.AffectedRows,
		&entry.ExecutionTimeMs,
		&entry.ErrorMessage,
		&entry.SQLStatement,
		&entry.BeforeData,
		&entry.AfterData,
		&entry.SecurityFlags,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	entry.Operation = models.OperationType(operation)
	entry.Status = models.CallStatus(status)
	if methodName != nil {
		entry.MethodName = *methodName
	}
	if methodArgs != nil {
		entry.MethodArgs = *methodArgs
	}

	return &entry, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
