package rules

import (
	"testing"

	"hydrowave/internal/models"
)

func TestDescribeSimpleRule(t *testing.T) {
	rule := validRule()
	got := Describe(rule)
	want := "When pH is below 5.8, pulses pH up pump for 3s. Waits 300s before running again"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestDescribeCompositeAndMultipleActions(t *testing.T) {
	relay := 0
	rule := &models.Rule{
		ID: "combo", Name: "combo", Priority: 1,
		Condition: &models.Composite{
			LogicOperator: "AND",
			SubConditions: []models.Condition{
				&models.SensorCompare{SensorName: "tds", Operator: ">", ValueMin: fptr(1200)},
				&models.SensorCompare{SensorName: "temp_water", Operator: "between", ValueMin: fptr(18), ValueMax: fptr(24)},
			},
		},
		Actions: []models.Action{
			{Type: models.ActionRelayOn, TargetRelay: &relay},
			{Type: models.ActionSystemAlert, Message: "TDS high"},
		},
		TriggerType: models.TriggerOnChange,
	}
	got := Describe(rule)
	want := `When TDS is above 1200 and water temperature is between 18 and 24, turns on main pump and sends alert "TDS high"`
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestDescribeIsDeterministic(t *testing.T) {
	rule := validRule()
	if Describe(rule) != Describe(rule) {
		t.Error("Describe must be a pure projection of the rule")
	}
}

func TestDescribeNegateAndRelayState(t *testing.T) {
	rule := validRule()
	rule.Condition = &models.RelayState{SensorName: "relay_4", ValueMin: fptr(0), Negate: true}
	rule.CooldownMs = 0
	relay := 4
	rule.Actions = []models.Action{{Type: models.ActionRelayOff, TargetRelay: &relay}}

	got := Describe(rule)
	want := "When not (fan is off), turns off fan"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}
