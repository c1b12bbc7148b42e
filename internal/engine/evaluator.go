package engine

import (
	"math"

	"hydrowave/internal/models"
)

// Tolerance for == and != on float sensor readings.
const compareEpsilon = 0.01

// Evaluate decides whether a condition holds against a state snapshot.
// Conditions are pure reads: evaluating has no side effects and the
// same snapshot always yields the same answer. A node whose sensor or
// parameter is missing from the snapshot evaluates to false — a rule
// must never fire on absent data.
//
// Conditions reaching this point are assumed schema-valid; unknown
// types are a validation-time concern and simply evaluate to false.
func Evaluate(cond models.Condition, state models.SystemState) bool {
	switch c := cond.(type) {
	case *models.SensorCompare:
		value, ok := state.SensorValue(c.SensorName)
		if !ok {
			return false
		}
		result := compare(value, c.Operator, c.ValueMin, c.ValueMax)
		if c.Negate {
			return !result
		}
		return result

	case *models.RelayState:
		value, ok := state.RelayValue(c.SensorName)
		if !ok {
			return false
		}
		result := truthyMatch(value, c.ValueMin)
		if c.Negate {
			return !result
		}
		return result

	case *models.SystemStatus:
		value, ok := state.ParamValue(c.SensorName)
		if !ok {
			return false
		}
		result := truthyMatch(value, c.ValueMin)
		if c.Negate {
			return !result
		}
		return result

	case *models.Composite:
		if len(c.SubConditions) == 0 {
			return false
		}
		for _, sub := range c.SubConditions {
			held := Evaluate(sub, state)
			if c.LogicOperator == "AND" && !held {
				return false
			}
			if c.LogicOperator == "OR" && held {
				return true
			}
		}
		return c.LogicOperator == "AND"
	}
	return false
}

// compare applies an operator against one bound, or both for
// between/outside. between is inclusive on both ends; outside is its
// exact negation.
func compare(value float64, op string, minPtr, maxPtr *float64) bool {
	min, max := 0.0, 0.0
	if minPtr != nil {
		min = *minPtr
	}
	if maxPtr != nil {
		max = *maxPtr
	}

	switch op {
	case models.OpLessThan:
		return value < min
	case models.OpLessEqual:
		return value <= min
	case models.OpGreaterThan:
		return value > min
	case models.OpGreaterEqual:
		return value >= min
	case models.OpEqual:
		return math.Abs(value-min) < compareEpsilon
	case models.OpNotEqual:
		return math.Abs(value-min) >= compareEpsilon
	case models.OpBetween:
		return value >= min && value <= max
	case models.OpOutside:
		return value < min || value > max
	}
	return false
}

// truthyMatch compares a 0/1-ish reading against an expected value, or
// checks plain truthiness when no expectation is given.
func truthyMatch(value float64, expected *float64) bool {
	if expected == nil {
		return value != 0
	}
	return math.Abs(value-*expected) < compareEpsilon
}
