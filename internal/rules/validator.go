package rules

import (
	"fmt"
	"strings"

	"hydrowave/internal/models"
)

// Limits enforced by Validate.
const (
	MinIDLength          = 3
	MinNameLength        = 3
	MaxPriority          = 100
	MinPeriodicInterval  = 1000     // ms
	MaxDurationMs        = 86400000 // 24h
	MaxCooldownMs        = 86400000 // 24h
	MaxExecutionsPerHour = 3600
	MinPulseDurationMs   = 100
	MinMessageLength     = 3
)

// KnownSensors are the sensor names a stock controller reports. Rules may
// reference others; validation only warns.
var KnownSensors = map[string]bool{
	"ph": true, "tds": true, "ec": true,
	"temp_water": true, "temp_environment": true, "humidity": true,
	"water_level_ok": true, "wifi_connected": true,
	"free_heap": true, "uptime": true, "wifi_rssi": true,
}

var validOperators = map[string]bool{
	models.OpLessThan: true, models.OpLessEqual: true,
	models.OpGreaterThan: true, models.OpGreaterEqual: true,
	models.OpEqual: true, models.OpNotEqual: true,
	models.OpBetween: true, models.OpOutside: true,
}

// Validate checks a rule structurally. It never panics and always
// returns a full report: every defect in the rule, its condition tree
// and its actions is listed, nested problems prefixed with their
// positional index. Validating the same rule twice yields the same
// result.
func Validate(rule *models.Rule) models.ValidationResult {
	var errors, warnings []string

	if rule == nil {
		return models.ValidationResult{Valid: false, Errors: []string{"rule is required"}}
	}

	if len(strings.TrimSpace(rule.ID)) < MinIDLength {
		errors = append(errors, fmt.Sprintf("rule id must be at least %d characters", MinIDLength))
	}
	if len(strings.TrimSpace(rule.Name)) < MinNameLength {
		errors = append(errors, fmt.Sprintf("rule name must be at least %d characters", MinNameLength))
	}
	if rule.Priority < 0 || rule.Priority > MaxPriority {
		errors = append(errors, fmt.Sprintf("priority must be between 0 and %d", MaxPriority))
	} else if rule.Priority == 0 {
		warnings = append(warnings, "priority 0 means the rule yields to every other rule")
	}

	if rule.Condition == nil {
		errors = append(errors, "condition is required")
	} else {
		condErrs, condWarns := validateCondition(rule.Condition)
		errors = append(errors, condErrs...)
		warnings = append(warnings, condWarns...)
	}

	if len(rule.Actions) == 0 {
		errors = append(errors, "rule must have at least one action")
	}
	for i, action := range rule.Actions {
		actionErrs, actionWarns := validateAction(action)
		for _, err := range actionErrs {
			errors = append(errors, fmt.Sprintf("Action %d: %s", i+1, err))
		}
		for _, warn := range actionWarns {
			warnings = append(warnings, fmt.Sprintf("Action %d: %s", i+1, warn))
		}
	}

	for i, check := range rule.SafetyChecks {
		if check.Condition == nil {
			errors = append(errors, fmt.Sprintf("Safety check %d: condition is required", i+1))
			continue
		}
		checkErrs, checkWarns := validateCondition(check.Condition)
		for _, err := range checkErrs {
			errors = append(errors, fmt.Sprintf("Safety check %d: %s", i+1, err))
		}
		for _, warn := range checkWarns {
			warnings = append(warnings, fmt.Sprintf("Safety check %d: %s", i+1, warn))
		}
	}

	switch rule.TriggerType {
	case models.TriggerPeriodic:
		if rule.TriggerIntervalMs < MinPeriodicInterval {
			errors = append(errors, fmt.Sprintf("periodic trigger interval must be at least %dms", MinPeriodicInterval))
		}
	case models.TriggerOnChange:
	case models.TriggerScheduled:
		if rule.Schedule == "" {
			warnings = append(warnings, "scheduled rule has no cron schedule and will never fire")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown trigger type %q", rule.TriggerType))
	}

	if rule.CooldownMs > MaxCooldownMs {
		errors = append(errors, "cooldown cannot exceed 24 hours")
	}
	if rule.CooldownMs < 0 {
		errors = append(errors, "cooldown cannot be negative")
	}
	if rule.MaxExecutionsPerHour > MaxExecutionsPerHour {
		errors = append(errors, fmt.Sprintf("max executions per hour cannot exceed %d", MaxExecutionsPerHour))
	}
	if rule.MaxExecutionsPerHour < 0 {
		errors = append(errors, "max executions per hour cannot be negative")
	}

	return models.ValidationResult{
		Valid:    len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

// validateCondition recurses into composite nodes, prefixing child
// defects with their 1-based index.
func validateCondition(cond models.Condition) (errors, warnings []string) {
	switch c := cond.(type) {
	case *models.SensorCompare:
		if c.SensorName == "" {
			errors = append(errors, "sensor name is required for sensor comparison")
		} else if !KnownSensors[c.SensorName] {
			warnings = append(warnings, fmt.Sprintf("sensor %q is not reported by a stock controller", c.SensorName))
		}
		if c.Operator == "" {
			errors = append(errors, "comparison operator is required")
		} else if !validOperators[c.Operator] {
			errors = append(errors, fmt.Sprintf("unknown comparison operator %q", c.Operator))
		}
		if c.ValueMin == nil && c.ValueMax == nil {
			errors = append(errors, "at least one of value_min or value_max must be set")
		}
		if (c.Operator == models.OpBetween || c.Operator == models.OpOutside) &&
			(c.ValueMin == nil || c.ValueMax == nil) {
			errors = append(errors, fmt.Sprintf("operator %q requires both value_min and value_max", c.Operator))
		}

	case *models.RelayState:
		if c.SensorName == "" {
			errors = append(errors, "relay name is required for relay state check")
		}

	case *models.SystemStatus:
		if c.SensorName == "" {
			errors = append(errors, "parameter name is required for system status check")
		}

	case *models.Composite:
		if c.LogicOperator != "AND" && c.LogicOperator != "OR" {
			errors = append(errors, "logic operator must be AND or OR for composite conditions")
		}
		if len(c.SubConditions) == 0 {
			errors = append(errors, "composite conditions must have at least one sub-condition")
		}
		for i, sub := range c.SubConditions {
			if sub == nil {
				errors = append(errors, fmt.Sprintf("Sub-condition %d: condition is required", i+1))
				continue
			}
			subErrs, subWarns := validateCondition(sub)
			for _, err := range subErrs {
				errors = append(errors, fmt.Sprintf("Sub-condition %d: %s", i+1, err))
			}
			for _, warn := range subWarns {
				warnings = append(warnings, fmt.Sprintf("Sub-condition %d: %s", i+1, warn))
			}
		}

	default:
		errors = append(errors, fmt.Sprintf("unknown condition variant %T", cond))
	}
	return errors, warnings
}

func validateAction(action models.Action) (errors, warnings []string) {
	if action.DurationMs > MaxDurationMs {
		errors = append(errors, "duration cannot exceed 24 hours")
	}
	switch action.Type {
	case models.ActionRelayOn, models.ActionRelayOff, models.ActionRelayPulse, models.ActionRelayPWM:
		if action.TargetRelay == nil || *action.TargetRelay < 0 || *action.TargetRelay >= models.MaxRelays {
			errors = append(errors, fmt.Sprintf("target relay must be between 0 and %d", models.MaxRelays-1))
		}
		if action.Type == models.ActionRelayPulse && action.DurationMs < MinPulseDurationMs {
			errors = append(errors, fmt.Sprintf("pulse duration must be at least %dms", MinPulseDurationMs))
		}
		if action.Type == models.ActionRelayPWM &&
			(action.Value == nil || *action.Value < 0 || *action.Value > 100) {
			errors = append(errors, "PWM value must be between 0 and 100")
		}

	case models.ActionSystemAlert, models.ActionLogEvent:
		if len(strings.TrimSpace(action.Message)) < MinMessageLength {
			errors = append(errors, fmt.Sprintf("message must be at least %d characters", MinMessageLength))
		}

	case models.ActionBackendUpdate:

	case "":
		errors = append(errors, "action type is required")

	default:
		errors = append(errors, fmt.Sprintf("unknown action type %q", action.Type))
	}
	return errors, warnings
}
