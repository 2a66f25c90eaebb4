// Package apperrors defines the error types dataguard exposes to callers.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when no permission record matches a lookup.
	ErrRecordNotFound = errors.New("permission record not found")
	// ErrDuplicateRecord is returned when an enabled record already exists for
	// a (service, table, operation) triple.
	ErrDuplicateRecord = errors.New("enabled permission record already exists for this triple")
)

// AccessDeniedError is raised when a data-layer call is evaluated and policy
// rejects it. It is a distinct type so callers can tell "you are not allowed"
// apart from infrastructure failures.
type AccessDeniedError struct {
	ServiceName string
	TableName   string
	Operation   string
	Reason      string
}

func (e *AccessDeniedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("service [%s] has no permission for [%s] on table [%s]",
		e.ServiceName, e.Operation, e.TableName)
}

// NewAccessDenied builds the standard denial error for a triple.
func NewAccessDenied(service, table, operation string) *AccessDeniedError {
	return &AccessDeniedError{
		ServiceName: service,
		TableName:   table,
		Operation:   operation,
		Reason: fmt.Sprintf("service [%s] has no permission for [%s] on table [%s]",
			service, operation, table),
	}
}

// IsAccessDenied reports whether err is (or wraps) an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
