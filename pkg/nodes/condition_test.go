package nodes

import (
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	ctx := models.NewExecutionContext(map[string]any{
		"status": "qualified",
		"lead": map[string]any{
			"score":   72,
			"company": "Acme Corp",
			"notes":   "",
		},
	})

	tests := []struct {
		name string
		cfg  ConditionConfig
		want bool
	}{
		{"equals bare path", ConditionConfig{Field: "status", Operator: OperatorEquals, Value: "qualified"}, true},
		{"equals template", ConditionConfig{Field: "{{status}}", Operator: OperatorEquals, Value: "qualified"}, true},
		{"equals mismatch", ConditionConfig{Field: "status", Operator: OperatorEquals, Value: "new"}, false},
		{"not equals", ConditionConfig{Field: "status", Operator: OperatorNotEquals, Value: "new"}, true},
		{"contains", ConditionConfig{Field: "lead.company", Operator: OperatorContains, Value: "Acme"}, true},
		{"contains miss", ConditionConfig{Field: "lead.company", Operator: OperatorContains, Value: "Globex"}, false},
		{"greater than", ConditionConfig{Field: "lead.score", Operator: OperatorGreaterThan, Value: 70}, true},
		{"greater than string value", ConditionConfig{Field: "lead.score", Operator: OperatorGreaterThan, Value: "80"}, false},
		{"less than", ConditionConfig{Field: "lead.score", Operator: OperatorLessThan, Value: "80.5"}, true},
		{"non numeric is false", ConditionConfig{Field: "status", Operator: OperatorGreaterThan, Value: 1}, false},
		{"non numeric is false for less", ConditionConfig{Field: "status", Operator: OperatorLessThan, Value: 1}, false},
		{"missing numeric is false", ConditionConfig{Field: "lead.missing", Operator: OperatorLessThan, Value: 1}, false},
		{"exists", ConditionConfig{Field: "lead.company", Operator: OperatorExists, Value: "ignored"}, true},
		{"exists empty", ConditionConfig{Field: "lead.notes", Operator: OperatorExists}, false},
		{"not exists missing", ConditionConfig{Field: "lead.owner", Operator: OperatorNotExists}, true},
		{"value is templated", ConditionConfig{Field: "lead.company", Operator: OperatorEquals, Value: "{{lead.company}}"}, true},
		{"unknown operator", ConditionConfig{Field: "status", Operator: "matches", Value: "q"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			assert.Equal(t, tt.want, Evaluate(&cfg, ctx))
		})
	}
}
