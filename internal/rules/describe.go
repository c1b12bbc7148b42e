package rules

import (
	"fmt"
	"strings"

	"hydrowave/internal/models"
)

var sensorDisplayNames = map[string]string{
	"ph":               "pH",
	"tds":              "TDS",
	"ec":               "conductivity",
	"temp_water":       "water temperature",
	"temp_environment": "ambient temperature",
	"humidity":         "humidity",
	"water_level_ok":   "water level",
	"wifi_connected":   "WiFi link",
	"free_heap":        "free heap",
	"uptime":           "uptime",
}

var relayDisplayNames = [models.MaxRelays]string{
	"main pump", "nutrient pump", "pH up pump", "pH down pump",
	"fan", "heater", "circulation pump", "aeration pump",
	"inlet valve", "outlet valve", "agitator", "grow light",
	"spare 1", "spare 2", "spare 3", "spare 4",
}

var operatorDescriptions = map[string]string{
	models.OpLessThan:     "is below",
	models.OpLessEqual:    "is at most",
	models.OpGreaterThan:  "is above",
	models.OpGreaterEqual: "is at least",
	models.OpEqual:        "equals",
	models.OpNotEqual:     "differs from",
	models.OpBetween:      "is between",
	models.OpOutside:      "is outside",
}

// Describe renders a rule as one deterministic English sentence. It is a
// pure projection of the rule for operator display and plays no part in
// evaluation or validation.
func Describe(rule *models.Rule) string {
	if rule == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("When ")
	b.WriteString(describeCondition(rule.Condition))
	b.WriteString(", ")

	actionParts := make([]string, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		actionParts = append(actionParts, describeAction(action))
	}
	b.WriteString(strings.Join(actionParts, " and "))

	if rule.CooldownMs > 0 {
		fmt.Fprintf(&b, ". Waits %gs before running again", float64(rule.CooldownMs)/1000)
	}
	return b.String()
}

func describeCondition(cond models.Condition) string {
	switch c := cond.(type) {
	case *models.SensorCompare:
		name := sensorDisplayNames[c.SensorName]
		if name == "" {
			name = c.SensorName
		}
		op := operatorDescriptions[c.Operator]
		if op == "" {
			op = c.Operator
		}
		desc := ""
		switch c.Operator {
		case models.OpBetween, models.OpOutside:
			desc = fmt.Sprintf("%s %s %g and %g", name, op, deref(c.ValueMin), deref(c.ValueMax))
		default:
			desc = fmt.Sprintf("%s %s %g", name, op, deref(c.ValueMin))
		}
		if c.Negate {
			return "not (" + desc + ")"
		}
		return desc

	case *models.RelayState:
		want := "on"
		if c.ValueMin != nil && *c.ValueMin == 0 {
			want = "off"
		}
		desc := fmt.Sprintf("%s is %s", relayDescription(c.SensorName), want)
		if c.Negate {
			return "not (" + desc + ")"
		}
		return desc

	case *models.SystemStatus:
		name := sensorDisplayNames[c.SensorName]
		if name == "" {
			name = c.SensorName
		}
		state := "OK"
		if c.ValueMin != nil && *c.ValueMin == 0 {
			state = "not OK"
		}
		desc := fmt.Sprintf("%s is %s", name, state)
		if c.Negate {
			return "not (" + desc + ")"
		}
		return desc

	case *models.Composite:
		connector := " or "
		if c.LogicOperator == "AND" {
			connector = " and "
		}
		parts := make([]string, 0, len(c.SubConditions))
		for _, sub := range c.SubConditions {
			parts = append(parts, describeCondition(sub))
		}
		return strings.Join(parts, connector)

	default:
		return "no condition"
	}
}

func describeAction(action models.Action) string {
	switch action.Type {
	case models.ActionRelayOn:
		return "turns on " + relayName(action.TargetRelay)
	case models.ActionRelayOff:
		return "turns off " + relayName(action.TargetRelay)
	case models.ActionRelayPulse:
		return fmt.Sprintf("pulses %s for %gs", relayName(action.TargetRelay), float64(action.DurationMs)/1000)
	case models.ActionRelayPWM:
		return fmt.Sprintf("drives %s at %g%%", relayName(action.TargetRelay), deref(action.Value))
	case models.ActionSystemAlert:
		return fmt.Sprintf("sends alert %q", action.Message)
	case models.ActionLogEvent:
		return fmt.Sprintf("logs %q", action.Message)
	case models.ActionBackendUpdate:
		return "pushes a state snapshot to the backend"
	default:
		return "runs an action"
	}
}

func relayName(relay *int) string {
	if relay == nil || *relay < 0 || *relay >= models.MaxRelays {
		return "an unknown relay"
	}
	return relayDisplayNames[*relay]
}

func relayDescription(name string) string {
	trimmed := strings.TrimPrefix(name, "relay_")
	for i, display := range relayDisplayNames {
		if trimmed == fmt.Sprintf("%d", i) {
			return display
		}
	}
	return "relay " + trimmed
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
