package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentdist/dataguard/pkg/models"
)

func TestStaticGrants_Allows(t *testing.T) {
	grants := StaticGrants{
		"lead-service": {
			"leads": {models.OperationAll},
			"users": {models.OperationSelect},
		},
	}

	assert.True(t, grants.Allows("lead-service", "leads", models.OperationDelete))
	assert.True(t, grants.Allows("lead-service", "users", models.OperationSelect))
	assert.False(t, grants.Allows("lead-service", "users", models.OperationUpdate))
	assert.False(t, grants.Allows("lead-service", "orders", models.OperationSelect))
	assert.False(t, grants.Allows("other-service", "leads", models.OperationSelect))
}
