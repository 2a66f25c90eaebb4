// Package audit persists the durable trail of intercepted data-layer calls.
// Every method is best-effort: an audit failure is logged and counted but
// never surfaces to the business call.
package audit

import (
	"context"
	"encoding/json"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/config"
	"github.com/agentdist/dataguard/pkg/logging"
	"github.com/agentdist/dataguard/pkg/metrics"
	"github.com/agentdist/dataguard/pkg/models"
	"github.com/agentdist/dataguard/pkg/repositories"
)

// SecurityFlagSQLInjection marks an audit entry whose submitted SQL matched a
// libinjection fingerprint.
const SecurityFlagSQLInjection = "sql_injection_suspected"

// Logger is the audit sink for completed access contexts.
type Logger interface {
	// LogSuccess records a successful call.
	LogSuccess(ctx context.Context, ac *models.AccessContext, result any)

	// LogFailure records a call whose wrapped operation returned an error.
	// The stored message is sanitized and truncated.
	LogFailure(ctx context.Context, ac *models.AccessContext, callErr error)

	// LogDenied records a policy denial with its human-readable reason.
	LogDenied(ctx context.Context, ac *models.AccessContext, reason string)

	// LogWithDataChange records a successful write together with before/after
	// snapshots. Snapshots are serialized as supplied and size-bounded only;
	// field-level redaction is the caller's responsibility.
	LogWithDataChange(ctx context.Context, ac *models.AccessContext, before, after any, result any)

	// LogSQLExecution records a successful call together with the executed
	// statement. The statement is stored as supplied (callers redact
	// parameters before submission; the logger does not parse SQL) but is
	// scanned for injection fingerprints, which flag the entry and emit a
	// SIEM event.
	LogSQLExecution(ctx context.Context, ac *models.AccessContext, sql string, result any)
}

type operationLogger struct {
	repo           repositories.OperationAuditRepository
	logger         *zap.Logger
	maxErrLen      int
	maxSnapshotLen int
}

// NewOperationLogger creates the audit sink with the configured truncation
// bounds.
func NewOperationLogger(repo repositories.OperationAuditRepository, cfg config.AuditConfig, logger *zap.Logger) Logger {
	return &operationLogger{
		repo:           repo,
		logger:         logger.Named("operation-audit"),
		maxErrLen:      cfg.MaxErrorMessageLength,
		maxSnapshotLen: cfg.MaxSnapshotLength,
	}
}

var _ Logger = (*operationLogger)(nil)

func (l *operationLogger) LogSuccess(ctx context.Context, ac *models.AccessContext, _ any) {
	l.persist(ctx, l.entryFrom(ac))
}

func (l *operationLogger) LogFailure(ctx context.Context, ac *models.AccessContext, callErr error) {
	entry := l.entryFrom(ac)
	msg := l.boundMessage(logging.SanitizeError(callErr))
	entry.ErrorMessage = &msg
	l.persist(ctx, entry)
}

func (l *operationLogger) LogDenied(ctx context.Context, ac *models.AccessContext, reason string) {
	entry := l.entryFrom(ac)
	msg := l.boundMessage(reason)
	entry.ErrorMessage = &msg
	l.persist(ctx, entry)
}

func (l *operationLogger) LogWithDataChange(ctx context.Context, ac *models.AccessContext, before, after any, _ any) {
	entry := l.entryFrom(ac)
	if before != nil {
		snapshot := l.serializeSnapshot(before)
		entry.BeforeData = &snapshot
	}
	if after != nil {
		snapshot := l.serializeSnapshot(after)
		entry.AfterData = &snapshot
	}
	l.persist(ctx, entry)
}

func (l *operationLogger) LogSQLExecution(ctx context.Context, ac *models.AccessContext, sql string, _ any) {
	entry := l.entryFrom(ac)
	entry.SQLStatement = &sql

	if isSQLi, fingerprint := libinjection.IsSQLi(sql); isSQLi {
		entry.SecurityFlags = append(entry.SecurityFlags, SecurityFlagSQLInjection)
		// SIEM-consumable event, separate from the durable entry.
		l.logger.Error("SQL injection pattern in audited statement",
			zap.String("request_id", ac.RequestID.String()),
			zap.String("service", ac.ServiceName),
			zap.String("table", ac.TableName),
			zap.String("fingerprint", string(fingerprint)),
		)
	}

	l.persist(ctx, entry)
}

// entryFrom projects a completed access context onto a persistable entry.
func (l *operationLogger) entryFrom(ac *models.AccessContext) *models.OperationAuditEntry {
	return &models.OperationAuditEntry{
		RequestID:       ac.RequestID,
		ServiceName:     ac.ServiceName,
		TableName:       ac.TableName,
		Operation:       ac.Operation,
		MethodName:      ac.MethodName,
		MethodArgs:      ac.MethodArgs,
		UserID:          ac.UserID,
		IPAddress:       ac.IPAddress,
		UserAgent:       ac.UserAgent,
		Status:          ac.Status,
		AffectedRows:    ac.AffectedRows,
		ExecutionTimeMs: ac.ExecutionTimeMs,
	}
}

// persist writes the entry, absorbing any failure: audit problems must never
// alter the outcome of the call they describe.
func (l *operationLogger) persist(ctx context.Context, entry *models.OperationAuditEntry) {
	if err := l.repo.Create(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		l.logger.Error("Failed to persist audit entry",
			zap.String("request_id", entry.RequestID.String()),
			zap.String("service", entry.ServiceName),
			zap.String("table", entry.TableName),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
	}
}

// boundMessage cuts a message to the configured maximum. The stored value is
// at most maxErrLen bytes including the trailing truncation marker.
func (l *operationLogger) boundMessage(msg string) string {
	if len(msg) <= l.maxErrLen {
		return msg
	}
	cut := l.maxErrLen - len(logging.TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	return msg[:cut] + logging.TruncationMarker
}

func (l *operationLogger) serializeSnapshot(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return models.ArgsSerializationPlaceholder
	}
	if len(data) > l.maxSnapshotLen {
		return string(data[:l.maxSnapshotLen]) + logging.TruncationMarker
	}
	return string(data)
}
