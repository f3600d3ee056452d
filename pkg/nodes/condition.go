package nodes

import (
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/template"
	"github.com/spf13/cast"
)

// Evaluate applies a condition to the execution context. The field may be a
// bare dotted path ("lead.status") or a template ("{{lead.status}}").
// Comparisons that cannot be made evaluate to false.
func Evaluate(cfg *ConditionConfig, ctx models.ExecutionContext) bool {
	actual := fieldValue(cfg.Field, ctx)
	expected := template.Resolve(template.Stringify(cfg.Value), ctx)

	switch cfg.Operator {
	case OperatorEquals:
		return actual == expected
	case OperatorNotEquals:
		return actual != expected
	case OperatorContains:
		return strings.Contains(actual, expected)
	case OperatorGreaterThan:
		left, right, ok := numbers(actual, expected)

		return ok && left > right
	case OperatorLessThan:
		left, right, ok := numbers(actual, expected)

		return ok && left < right
	case OperatorExists:
		return actual != ""
	case OperatorNotExists:
		return actual == ""
	default:
		return false
	}
}

func fieldValue(field string, ctx models.ExecutionContext) string {
	if template.HasPlaceholder(field) {
		return template.Resolve(field, ctx)
	}

	value, ok := ctx.Lookup(field)
	if !ok {
		return ""
	}

	return template.Stringify(value)
}

func numbers(left, right string) (float64, float64, bool) {
	l, err := cast.ToFloat64E(strings.TrimSpace(left))
	if err != nil || strings.TrimSpace(left) == "" {
		return 0, 0, false
	}

	r, err := cast.ToFloat64E(strings.TrimSpace(right))
	if err != nil || strings.TrimSpace(right) == "" {
		return 0, 0, false
	}

	return l, r, true
}
