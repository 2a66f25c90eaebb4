package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationAuditEntry is the persisted projection of a completed
// AccessContext. Stored in operation_audit_log, append-only: the online path
// only ever inserts; retention is handled by a separate purge job keyed on
// CreatedAt.
type OperationAuditEntry struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`

	// What was attempted
	ServiceName string        `json:"service_name"`
	TableName   string        `json:"table_name"`
	Operation   OperationType `json:"operation_type"`
	MethodName  string        `json:"method_name,omitempty"`
	MethodArgs  string        `json:"method_args,omitempty"`

	// Who
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	IPAddress *string    `json:"ip_address,omitempty"`
	UserAgent *string    `json:"user_agent,omitempty"`

	// Outcome
	Status          CallStatus `json:"status"`
	AffectedRows    *int64     `json:"affected_rows,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	ErrorMessage    *string    `json:"error_message,omitempty"`

	// Optional payloads
	SQLStatement  *string  `json:"sql_statement,omitempty"`
	BeforeData    *string  `json:"before_data,omitempty"`
	AfterData     *string  `json:"after_data,omitempty"`
	SecurityFlags []string `json:"security_flags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// OperationAuditFilters narrows audit log queries for the reporting surface.
// Zero values mean "no filter".
type OperationAuditFilters struct {
	ServiceName string
	TableName   string
	Operation   OperationType
	UserID      *uuid.UUID
	Status      CallStatus
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}
