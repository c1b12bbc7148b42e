package rules

import (
	"strings"
	"testing"

	"hydrowave/internal/models"
)

func fptr(v float64) *float64 { return &v }

func validRule() *models.Rule {
	relay := 2
	return &models.Rule{
		ID:      "ph-low",
		Name:    "pH correction",
		Enabled: true,
		Priority: 50,
		Condition: &models.SensorCompare{
			SensorName: "ph", Operator: "<", ValueMin: fptr(5.8),
		},
		Actions: []models.Action{
			{Type: models.ActionRelayPulse, TargetRelay: &relay, DurationMs: 3000},
		},
		TriggerType:       models.TriggerPeriodic,
		TriggerIntervalMs: 5000,
		CooldownMs:        300000,
	}
}

func hasError(result models.ValidationResult, substr string) bool {
	for _, e := range result.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func hasWarning(result models.ValidationResult, substr string) bool {
	for _, w := range result.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsGoodRule(t *testing.T) {
	result := Validate(validRule())
	if !result.Valid {
		t.Fatalf("valid rule rejected: %v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestValidateNilRule(t *testing.T) {
	result := Validate(nil)
	if result.Valid {
		t.Fatal("nil rule must be invalid")
	}
}

func TestValidateCollectsEveryDefect(t *testing.T) {
	rule := validRule()
	rule.ID = "x"
	rule.Name = "y"
	rule.Priority = 300
	rule.Condition = nil
	rule.Actions = nil
	rule.TriggerIntervalMs = 10

	result := Validate(rule)
	if result.Valid {
		t.Fatal("broken rule must be invalid")
	}
	for _, want := range []string{
		"rule id must be at least 3 characters",
		"rule name must be at least 3 characters",
		"priority must be between 0 and 100",
		"condition is required",
		"at least one action",
		"periodic trigger interval must be at least 1000ms",
	} {
		if !hasError(result, want) {
			t.Errorf("missing error %q in %v", want, result.Errors)
		}
	}
}

func TestValidateActionIndexPrefixes(t *testing.T) {
	rule := validRule()
	relay := 99
	rule.Actions = []models.Action{
		{Type: models.ActionRelayOn, TargetRelay: &relay},
		{Type: models.ActionSystemAlert, Message: "ok"},
	}

	result := Validate(rule)
	if result.Valid {
		t.Fatal("rule with bad actions must be invalid")
	}
	if !hasError(result, "Action 1: target relay must be between 0 and 15") {
		t.Errorf("first action defect not indexed: %v", result.Errors)
	}
	if !hasError(result, "Action 2: message must be at least 3 characters") {
		t.Errorf("second action defect not indexed: %v", result.Errors)
	}
}

func TestValidateNestedConditionPrefixes(t *testing.T) {
	rule := validRule()
	rule.Condition = &models.Composite{
		LogicOperator: "AND",
		SubConditions: []models.Condition{
			&models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8)},
			&models.Composite{
				LogicOperator: "OR",
				SubConditions: []models.Condition{
					&models.SensorCompare{SensorName: "", Operator: "<", ValueMin: fptr(1)},
				},
			},
		},
	}

	result := Validate(rule)
	if result.Valid {
		t.Fatal("nested defect must invalidate the rule")
	}
	want := "Sub-condition 2: Sub-condition 1: sensor name is required"
	if !hasError(result, want) {
		t.Errorf("nested defect should carry stacked prefixes, got %v", result.Errors)
	}
}

func TestValidateBetweenNeedsBothBounds(t *testing.T) {
	rule := validRule()
	rule.Condition = &models.SensorCompare{
		SensorName: "temp_water", Operator: "between", ValueMin: fptr(10),
	}
	result := Validate(rule)
	if !hasError(result, `operator "between" requires both value_min and value_max`) {
		t.Errorf("between without max should error, got %v", result.Errors)
	}
}

func TestValidateWarnings(t *testing.T) {
	rule := validRule()
	rule.Priority = 0
	rule.Condition = &models.SensorCompare{
		SensorName: "ph_probe_7", Operator: "<", ValueMin: fptr(5.8),
	}
	rule.TriggerType = models.TriggerScheduled
	rule.TriggerIntervalMs = 0
	rule.Schedule = ""

	result := Validate(rule)
	if !result.Valid {
		t.Fatalf("warnings must not invalidate: %v", result.Errors)
	}
	if !hasWarning(result, "priority 0") {
		t.Errorf("missing priority warning: %v", result.Warnings)
	}
	if !hasWarning(result, `sensor "ph_probe_7"`) {
		t.Errorf("missing unknown-sensor warning: %v", result.Warnings)
	}
	if !hasWarning(result, "no cron schedule") {
		t.Errorf("missing schedule warning: %v", result.Warnings)
	}
}

func TestValidateLimits(t *testing.T) {
	rule := validRule()
	rule.CooldownMs = MaxCooldownMs + 1
	rule.MaxExecutionsPerHour = MaxExecutionsPerHour + 1
	result := Validate(rule)
	if !hasError(result, "cooldown cannot exceed 24 hours") {
		t.Errorf("missing cooldown limit error: %v", result.Errors)
	}
	if !hasError(result, "max executions per hour cannot exceed 3600") {
		t.Errorf("missing hourly cap limit error: %v", result.Errors)
	}

	pwm := validRule()
	relay := 1
	pwm.Actions = []models.Action{{Type: models.ActionRelayPWM, TargetRelay: &relay, DurationMs: 1000, Value: fptr(150)}}
	if result := Validate(pwm); !hasError(result, "PWM value must be between 0 and 100") {
		t.Errorf("missing pwm range error: %v", result.Errors)
	}

	pulse := validRule()
	pulse.Actions = []models.Action{{Type: models.ActionRelayPulse, TargetRelay: &relay, DurationMs: 50}}
	if result := Validate(pulse); !hasError(result, "pulse duration must be at least 100ms") {
		t.Errorf("missing pulse duration error: %v", result.Errors)
	}

	// The duration ceiling applies to every action type, not just the
	// relay ones.
	alert := validRule()
	alert.Actions = []models.Action{{Type: models.ActionSystemAlert, DurationMs: MaxDurationMs + 1, Message: "check pump"}}
	if result := Validate(alert); !hasError(result, "duration cannot exceed 24 hours") {
		t.Errorf("missing duration limit error on alert action: %v", result.Errors)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	rule := validRule()
	rule.ID = ""
	rule.Actions = nil
	first := Validate(rule)
	second := Validate(rule)
	if len(first.Errors) != len(second.Errors) {
		t.Fatalf("validation not repeatable: %v vs %v", first.Errors, second.Errors)
	}
	for i := range first.Errors {
		if first.Errors[i] != second.Errors[i] {
			t.Errorf("error %d differs: %q vs %q", i, first.Errors[i], second.Errors[i])
		}
	}
}
