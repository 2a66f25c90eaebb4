package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// MaxMethodArgsLength bounds the serialized method arguments stored on an
// access context. Longer payloads are truncated with a trailing marker.
const MaxMethodArgsLength = 2000

// ArgsSerializationPlaceholder is stored when method arguments cannot be
// serialized. Serialization failures never fail the intercepted call.
const ArgsSerializationPlaceholder = "[unserializable]"

// CallStatus is the outcome of an intercepted data-layer call.
type CallStatus string

const (
	StatusSuccess CallStatus = "SUCCESS"
	StatusFailed  CallStatus = "FAILED"
	StatusDenied  CallStatus = "DENIED"
)

// CallInfo identifies one data-layer call at the interception boundary.
// The hosting framework supplies it per call-site.
type CallInfo struct {
	// ServiceName is the calling microservice identity.
	ServiceName string
	// TableName is the declared target table. When empty it is inferred from
	// EntityName (pluralized, snake_case).
	TableName string
	// EntityName is the domain entity the call operates on, e.g. "Lead".
	EntityName string
	// MethodName is the data-access method being invoked, e.g. "selectLeadById".
	MethodName string
	// Operation overrides prefix-based inference when set.
	Operation OperationType
	// Args are the raw call arguments, serialized defensively onto the context.
	Args []any
	// SQL optionally carries the executed statement for the audit trail.
	// Callers redact parameters before supplying it.
	SQL string
}

// AccessContext describes one intercepted data-layer call. It is ephemeral
// and request-scoped: built once per call, completed exactly once, and never
// reused.
type AccessContext struct {
	RequestID   uuid.UUID
	ServiceName string
	TableName   string
	Operation   OperationType
	MethodName  string

	UserID    *uuid.UUID
	IPAddress *string
	UserAgent *string

	// MethodArgs is the size-bounded JSON serialization of the call arguments.
	MethodArgs string

	// SQLStatement is the caller-supplied (pre-redacted) statement, if any.
	SQLStatement string

	StartTime       time.Time
	EndTime         time.Time
	ExecutionTimeMs int64

	// Outcome fields, set exactly once by the guard.
	Status       CallStatus
	AffectedRows *int64
	DeniedReason string

	// Transient, never persisted verbatim.
	Result any
	Err    error

	completed bool
}

// NewAccessContext builds the descriptor for an intercepted call, inferring
// table and operation from the call identity and capturing the start time.
// Caller identity (user, IP, user agent) is taken from ctx when present.
func NewAccessContext(ctx context.Context, call CallInfo) *AccessContext {
	ac := &AccessContext{
		RequestID:    uuid.New(),
		ServiceName:  call.ServiceName,
		TableName:    call.TableName,
		Operation:    call.Operation,
		MethodName:   call.MethodName,
		MethodArgs:   serializeArgs(call.Args),
		SQLStatement: call.SQL,
		StartTime:    time.Now(),
	}

	if ac.TableName == "" {
		ac.TableName = TableNameForEntity(call.EntityName)
	}
	if ac.Operation == "" {
		ac.Operation = InferOperation(call.MethodName)
	}
	if caller, ok := GetCaller(ctx); ok {
		ac.UserID = caller.UserID
		ac.IPAddress = caller.IPAddress
		ac.UserAgent = caller.UserAgent
	}

	return ac
}

// MarkSuccess records a successful outcome. affectedRows is nil for reads and
// for results that carry no row count.
func (ac *AccessContext) MarkSuccess(result any, affectedRows *int64) {
	if ac.completed {
		return
	}
	ac.finish()
	ac.Status = StatusSuccess
	ac.Result = result
	ac.AffectedRows = affectedRows
}

// MarkFailure records that the wrapped call returned an error.
func (ac *AccessContext) MarkFailure(err error) {
	if ac.completed {
		return
	}
	ac.finish()
	ac.Status = StatusFailed
	ac.Err = err
}

// MarkDenied records a policy denial. Denied calls never reach the wrapped
// operation, so no affected-row count is recorded.
func (ac *AccessContext) MarkDenied(reason string) {
	if ac.completed {
		return
	}
	ac.finish()
	ac.Status = StatusDenied
	ac.DeniedReason = reason
}

func (ac *AccessContext) finish() {
	ac.completed = true
	ac.EndTime = time.Now()
	ac.ExecutionTimeMs = ac.EndTime.Sub(ac.StartTime).Milliseconds()
}

// InferOperation maps a data-access method name to an operation type by its
// conventional prefix. Unknown prefixes default to SELECT, the least
// privileged operation.
func InferOperation(methodName string) OperationType {
	name := strings.ToLower(methodName)
	switch {
	case hasAnyPrefix(name, "insert", "create", "save", "add"):
		return OperationInsert
	case hasAnyPrefix(name, "update", "modify", "set"):
		return OperationUpdate
	case hasAnyPrefix(name, "delete", "remove"):
		return OperationDelete
	case hasAnyPrefix(name, "select", "find", "get", "query", "list", "count"):
		return OperationSelect
	default:
		return OperationSelect
	}
}

// TableNameForEntity derives a table name from a domain entity name:
// "LeadAssignment" -> "lead_assignments".
func TableNameForEntity(entity string) string {
	if entity == "" {
		return ""
	}
	return inflection.Plural(toSnakeCase(entity))
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// serializeArgs marshals call arguments for the audit trail. Failures yield a
// placeholder instead of an error so serialization can never break the call.
func serializeArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ArgsSerializationPlaceholder
	}
	if len(data) > MaxMethodArgsLength {
		return string(data[:MaxMethodArgsLength]) + "..."
	}
	return string(data)
}
