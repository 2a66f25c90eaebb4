package permissions

import "github.com/agentdist/dataguard/pkg/models"

// StaticGrants is the compiled-in baseline permission matrix:
// service -> table -> allowed operations. It keeps core services working
// before the dynamic permission store has been populated.
//
// The matrix is consulted only when the store has no record for a triple; it
// never overrides an explicit dynamic record of any level. It is injected
// into the checker rather than read from a package global so tests can swap
// it out.
type StaticGrants map[string]map[string][]models.OperationType

// Allows reports whether the matrix grants the operation on the table.
// An OperationAll grant covers every concrete operation.
func (g StaticGrants) Allows(service, table string, op models.OperationType) bool {
	tables, ok := g[service]
	if !ok {
		return false
	}
	ops, ok := tables[table]
	if !ok {
		return false
	}
	for _, granted := range ops {
		if granted == op || granted == models.OperationAll {
			return true
		}
	}
	return false
}

// DefaultStaticGrants returns the baseline matrix for the well-known core
// services of the distribution backend.
func DefaultStaticGrants() StaticGrants {
	return StaticGrants{
		"auth-service": {
			"users": {models.OperationSelect, models.OperationInsert, models.OperationUpdate},
			"roles": {models.OperationSelect},
		},
		"lead-service": {
			"leads":            {models.OperationAll},
			"lead_assignments": {models.OperationAll},
			"users":            {models.OperationSelect},
		},
		"promotion-service": {
			"promotions":      {models.OperationAll},
			"promotion_rules": {models.OperationAll},
			"leads":           {models.OperationSelect},
		},
		"reward-service": {
			"rewards":       {models.OperationAll},
			"reward_ledger": {models.OperationSelect, models.OperationInsert},
			"users":         {models.OperationSelect},
		},
		"notification-service": {
			"notifications": {models.OperationSelect, models.OperationInsert, models.OperationUpdate},
			"users":         {models.OperationSelect},
		},
	}
}
