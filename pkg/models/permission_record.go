package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationType classifies a data-layer operation against a table.
type OperationType string

const (
	OperationSelect OperationType = "SELECT"
	OperationInsert OperationType = "INSERT"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
	// OperationAll matches any of the four concrete operations.
	OperationAll OperationType = "ALL"
)

// ConcreteOperations lists the operations OperationAll expands to.
var ConcreteOperations = []OperationType{
	OperationSelect,
	OperationInsert,
	OperationUpdate,
	OperationDelete,
}

// IsWrite reports whether the operation mutates rows.
func (o OperationType) IsWrite() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Valid reports whether o is one of the known operation types.
func (o OperationType) Valid() bool {
	switch o {
	case OperationSelect, OperationInsert, OperationUpdate, OperationDelete, OperationAll:
		return true
	}
	return false
}

// PermissionLevel is the grant level of a permission record.
type PermissionLevel string

const (
	// PermissionFull allows the operation unconditionally.
	PermissionFull PermissionLevel = "FULL"
	// PermissionRestricted allows the operation only when the record's
	// conditions evaluate true against the access context.
	PermissionRestricted PermissionLevel = "RESTRICTED"
	// PermissionDenied always rejects the operation.
	PermissionDenied PermissionLevel = "DENIED"
)

// Valid reports whether l is a known permission level.
func (l PermissionLevel) Valid() bool {
	switch l {
	case PermissionFull, PermissionRestricted, PermissionDenied:
		return true
	}
	return false
}

// PermissionRecord is one authorization rule in the dynamic permission matrix:
// (service, table, operation) -> level. Stored in permission_records.
//
// At most one enabled record per (service, table, operation) triple is
// authoritative. A record with OperationAll is a wildcard; a record for the
// concrete operation takes precedence over it.
type PermissionRecord struct {
	ID          uuid.UUID       `json:"id"`
	ServiceName string          `json:"service_name"`
	TableName   string          `json:"table_name"`
	Operation   OperationType   `json:"operation_type"`
	Level       PermissionLevel `json:"permission_level"`

	// Conditions apply only when Level is PermissionRestricted. Each entry is
	// a minimal expression of the form "key==value" or "key!=value" matched
	// against AccessContext fields.
	Conditions []string `json:"conditions,omitempty"`

	// IsEnabled=false makes the record behave as if it does not exist.
	IsEnabled bool `json:"is_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PermissionKey returns the cache key for a (service, table, operation)
// triple, formatted as "service:table:operation".
func PermissionKey(service, table string, op OperationType) string {
	return service + ":" + table + ":" + string(op)
}
