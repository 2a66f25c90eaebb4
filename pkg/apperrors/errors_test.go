package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAccessDenied(t *testing.T) {
	err := NewAccessDenied("lead-service", "leads", "DELETE")

	assert.Equal(t, "service [lead-service] has no permission for [DELETE] on table [leads]", err.Error())
	assert.Equal(t, "lead-service", err.ServiceName)
	assert.Equal(t, "leads", err.TableName)
	assert.Equal(t, "DELETE", err.Operation)
}

func TestIsAccessDenied(t *testing.T) {
	denied := NewAccessDenied("lead-service", "leads", "DELETE")

	assert.True(t, IsAccessDenied(denied))
	assert.True(t, IsAccessDenied(fmt.Errorf("guard: %w", denied)))
	assert.False(t, IsAccessDenied(errors.New("connection refused")))
	assert.False(t, IsAccessDenied(nil))
}
