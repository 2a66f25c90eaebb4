package permissions

import (
	"strings"

	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/metrics"
	"github.com/agentdist/dataguard/pkg/models"
)

// evaluateConditions checks every RESTRICTED-record condition against the
// access context. Conditions are a deliberately minimal language: each entry
// is "key==value" or "key!=value", nothing more. All conditions must hold.
//
// A condition that cannot be parsed, or whose key does not map to a context
// field, counts as satisfied. This fail-open applies only at the
// condition-evaluation step (record lookup stays fail-closed) and is an
// intentional, documented fallback: a malformed condition on a RESTRICTED
// grant degrades it toward FULL rather than silently revoking access that an
// operator explicitly configured. Every such fallback is logged and counted.
func evaluateConditions(conditions []string, ac *models.AccessContext, logger *zap.Logger) bool {
	for _, expr := range conditions {
		if !evaluateCondition(expr, ac, logger) {
			return false
		}
	}
	return true
}

func evaluateCondition(expr string, ac *models.AccessContext, logger *zap.Logger) bool {
	var (
		key, value string
		negate     bool
	)
	switch {
	case strings.Contains(expr, "!="):
		parts := strings.SplitN(expr, "!=", 2)
		key, value = parts[0], parts[1]
		negate = true
	case strings.Contains(expr, "=="):
		parts := strings.SplitN(expr, "==", 2)
		key, value = parts[0], parts[1]
	default:
		logger.Warn("Unparseable permission condition, allowing",
			zap.String("condition", expr))
		metrics.UnparseableConditionsTotal.Inc()
		return true
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	actual, ok := contextValue(ac, key)
	if !ok {
		logger.Warn("Permission condition references unknown field, allowing",
			zap.String("condition", expr), zap.String("field", key))
		metrics.UnparseableConditionsTotal.Inc()
		return true
	}

	if negate {
		return actual != value
	}
	return actual == value
}

// contextValue resolves a condition key to the string form of an access
// context field.
func contextValue(ac *models.AccessContext, key string) (string, bool) {
	switch key {
	case "service_name":
		return ac.ServiceName, true
	case "table_name":
		return ac.TableName, true
	case "operation_type":
		return string(ac.Operation), true
	case "method_name":
		return ac.MethodName, true
	case "user_id":
		if ac.UserID == nil {
			return "", true
		}
		return ac.UserID.String(), true
	case "ip_address":
		if ac.IPAddress == nil {
			return "", true
		}
		return *ac.IPAddress, true
	default:
		return "", false
	}
}
