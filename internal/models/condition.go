package models

import (
	"encoding/json"
	"fmt"
)

// ConditionKind tags the variant of a condition node.
type ConditionKind string

const (
	CondSensorCompare ConditionKind = "sensor_compare"
	CondRelayState    ConditionKind = "relay_state"
	CondSystemStatus  ConditionKind = "system_status"
	CondComposite     ConditionKind = "composite"
)

// Compare operators accepted by sensor_compare conditions.
const (
	OpLessThan     = "<"
	OpLessEqual    = "<="
	OpGreaterThan  = ">"
	OpGreaterEqual = ">="
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpBetween      = "between"
	OpOutside      = "outside"
)

// Condition is a boolean predicate over current device state. It is a
// recursive tagged union: each variant carries only its own fields and
// JSON encoding dispatches on the "type" tag.
type Condition interface {
	Kind() ConditionKind
}

// SensorCompare compares a named sensor reading against one or two bounds.
type SensorCompare struct {
	SensorName string   `json:"sensor_name"`
	Operator   string   `json:"operator"`
	ValueMin   *float64 `json:"value_min,omitempty"`
	ValueMax   *float64 `json:"value_max,omitempty"`
	Negate     bool     `json:"negate,omitempty"`
}

func (c *SensorCompare) Kind() ConditionKind { return CondSensorCompare }

// RelayState checks whether a relay is in a given on/off state. The
// relay is named either by bare index ("3") or by "relay_3".
type RelayState struct {
	SensorName string   `json:"sensor_name"`
	ValueMin   *float64 `json:"value_min,omitempty"`
	Negate     bool     `json:"negate,omitempty"`
}

func (c *RelayState) Kind() ConditionKind { return CondRelayState }

// SystemStatus checks a system parameter (water_level_ok, wifi_connected,
// free_heap, uptime). With no bound it is a truthy check.
type SystemStatus struct {
	SensorName string   `json:"sensor_name"`
	ValueMin   *float64 `json:"value_min,omitempty"`
	Negate     bool     `json:"negate,omitempty"`
}

func (c *SystemStatus) Kind() ConditionKind { return CondSystemStatus }

// Composite combines child conditions with AND/OR.
type Composite struct {
	LogicOperator string      `json:"logic_operator"`
	SubConditions []Condition `json:"sub_conditions"`
}

func (c *Composite) Kind() ConditionKind { return CondComposite }

type conditionEnvelope struct {
	Type ConditionKind `json:"type"`
}

// DecodeCondition parses one condition node, recursing into composites.
func DecodeCondition(raw json.RawMessage) (Condition, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("condition is empty")
	}
	var env conditionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("condition is not an object: %w", err)
	}

	switch env.Type {
	case CondSensorCompare:
		var c SensorCompare
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case CondRelayState:
		var c RelayState
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case CondSystemStatus:
		var c SystemStatus
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case CondComposite:
		var shell struct {
			LogicOperator string            `json:"logic_operator"`
			SubConditions []json.RawMessage `json:"sub_conditions"`
		}
		if err := json.Unmarshal(raw, &shell); err != nil {
			return nil, err
		}
		c := Composite{LogicOperator: shell.LogicOperator}
		for i, sub := range shell.SubConditions {
			child, err := DecodeCondition(sub)
			if err != nil {
				return nil, fmt.Errorf("sub-condition %d: %w", i+1, err)
			}
			c.SubConditions = append(c.SubConditions, child)
		}
		return &c, nil
	case "":
		return nil, fmt.Errorf("condition type is required")
	default:
		return nil, fmt.Errorf("unknown condition type %q", env.Type)
	}
}

// EncodeCondition serializes a condition node with its "type" tag.
func EncodeCondition(c Condition) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("condition is nil")
	}
	switch v := c.(type) {
	case *SensorCompare:
		type alias SensorCompare
		return json.Marshal(struct {
			Type ConditionKind `json:"type"`
			*alias
		}{CondSensorCompare, (*alias)(v)})
	case *RelayState:
		type alias RelayState
		return json.Marshal(struct {
			Type ConditionKind `json:"type"`
			*alias
		}{CondRelayState, (*alias)(v)})
	case *SystemStatus:
		type alias SystemStatus
		return json.Marshal(struct {
			Type ConditionKind `json:"type"`
			*alias
		}{CondSystemStatus, (*alias)(v)})
	case *Composite:
		subs := make([]json.RawMessage, 0, len(v.SubConditions))
		for _, sub := range v.SubConditions {
			enc, err := EncodeCondition(sub)
			if err != nil {
				return nil, err
			}
			subs = append(subs, enc)
		}
		return json.Marshal(struct {
			Type          ConditionKind     `json:"type"`
			LogicOperator string            `json:"logic_operator"`
			SubConditions []json.RawMessage `json:"sub_conditions"`
		}{CondComposite, v.LogicOperator, subs})
	default:
		return nil, fmt.Errorf("unknown condition variant %T", c)
	}
}
