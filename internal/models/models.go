package models

import (
	"encoding/json"
	"time"
)

// Trigger types for rules.
const (
	TriggerPeriodic  = "periodic"
	TriggerOnChange  = "on_change"
	TriggerScheduled = "scheduled"
)

// ActionType identifies what a rule action does.
type ActionType string

const (
	ActionRelayOn       ActionType = "relay_on"
	ActionRelayOff      ActionType = "relay_off"
	ActionRelayPulse    ActionType = "relay_pulse"
	ActionRelayPWM      ActionType = "relay_pwm"
	ActionSystemAlert   ActionType = "system_alert"
	ActionLogEvent      ActionType = "log_event"
	ActionBackendUpdate ActionType = "backend_update"
)

// MaxRelays is the fixed width of a device's relay bank.
const MaxRelays = 16

// Action is a single effect executed when a rule fires.
type Action struct {
	Type             ActionType `json:"type"`
	TargetRelay      *int       `json:"target_relay,omitempty"`
	DurationMs       int64      `json:"duration_ms,omitempty"`
	Value            *float64   `json:"value,omitempty"`
	Message          string     `json:"message,omitempty"`
	RepeatIntervalMs int64      `json:"repeat_interval_ms,omitempty"`
}

// SafetyCheck is an interlock: when its condition holds, the rule is not
// allowed to execute. Critical checks block unconditionally.
type SafetyCheck struct {
	Name         string    `json:"name"`
	Condition    Condition `json:"condition"`
	ErrorMessage string    `json:"error_message"`
	IsCritical   bool      `json:"is_critical"`
}

func (s *SafetyCheck) UnmarshalJSON(data []byte) error {
	var shell struct {
		Name         string          `json:"name"`
		Condition    json.RawMessage `json:"condition"`
		ErrorMessage string          `json:"error_message"`
		IsCritical   bool            `json:"is_critical"`
	}
	if err := json.Unmarshal(data, &shell); err != nil {
		return err
	}
	s.Name = shell.Name
	s.ErrorMessage = shell.ErrorMessage
	s.IsCritical = shell.IsCritical
	if len(shell.Condition) > 0 {
		cond, err := DecodeCondition(shell.Condition)
		if err != nil {
			return err
		}
		s.Condition = cond
	}
	return nil
}

func (s SafetyCheck) MarshalJSON() ([]byte, error) {
	var cond json.RawMessage
	if s.Condition != nil {
		enc, err := EncodeCondition(s.Condition)
		if err != nil {
			return nil, err
		}
		cond = enc
	}
	return json.Marshal(struct {
		Name         string          `json:"name"`
		Condition    json.RawMessage `json:"condition,omitempty"`
		ErrorMessage string          `json:"error_message"`
		IsCritical   bool            `json:"is_critical"`
	}{s.Name, cond, s.ErrorMessage, s.IsCritical})
}

// Rule pairs a condition with one or more actions plus execution limits.
type Rule struct {
	ID                   string        `json:"id"`
	DeviceID             string        `json:"device_id,omitempty"`
	Name                 string        `json:"name"`
	Description          string        `json:"description,omitempty"`
	Enabled              bool          `json:"enabled"`
	Priority             int           `json:"priority"`
	Condition            Condition     `json:"condition"`
	Actions              []Action      `json:"actions"`
	SafetyChecks         []SafetyCheck `json:"safety_checks,omitempty"`
	TriggerType          string        `json:"trigger_type"`
	TriggerIntervalMs    int64         `json:"trigger_interval_ms,omitempty"`
	Schedule             string        `json:"schedule,omitempty"`
	CooldownMs           int64         `json:"cooldown_ms,omitempty"`
	MaxExecutionsPerHour int           `json:"max_executions_per_hour,omitempty"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	shell := struct {
		Condition json.RawMessage `json:"condition"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &shell); err != nil {
		return err
	}
	if len(shell.Condition) > 0 {
		cond, err := DecodeCondition(shell.Condition)
		if err != nil {
			return err
		}
		r.Condition = cond
	}
	return nil
}

func (r Rule) MarshalJSON() ([]byte, error) {
	type alias Rule
	var cond json.RawMessage
	if r.Condition != nil {
		enc, err := EncodeCondition(r.Condition)
		if err != nil {
			return nil, err
		}
		cond = enc
	}
	return json.Marshal(struct {
		alias
		Condition json.RawMessage `json:"condition,omitempty"`
	}{alias(r), cond})
}

// ValidationResult is the total outcome of validating a rule.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// CommandStatus is the delivery/execution state of a relay command.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandSent      CommandStatus = "sent"
	CommandCompleted CommandStatus = "completed"
	CommandFailed    CommandStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s CommandStatus) Terminal() bool {
	return s == CommandCompleted || s == CommandFailed
}

// Valid reports whether the status is one of the four known states.
func (s CommandStatus) Valid() bool {
	switch s {
	case CommandPending, CommandSent, CommandCompleted, CommandFailed:
		return true
	}
	return false
}

// RelayCommand is a single actuator instruction. Fields other than the
// status trio are immutable once the command is created.
type RelayCommand struct {
	ID              string        `json:"id"`
	DeviceID        string        `json:"device_id"`
	RelayNumber     int           `json:"relay_number"`
	Action          string        `json:"action"`
	DurationSeconds *int          `json:"duration_seconds,omitempty"`
	Status          CommandStatus `json:"status"`
	CreatedBy       string        `json:"created_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	SentAt          *time.Time    `json:"sent_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
}

// Telemetry is one contact report from a device.
type Telemetry struct {
	Sensors         map[string]float64 `json:"sensors,omitempty"`
	RelayStates     []bool             `json:"relay_states,omitempty"`
	WifiRSSI        *int               `json:"wifi_rssi,omitempty"`
	FreeHeap        *int64             `json:"free_heap,omitempty"`
	UptimeSeconds   *int64             `json:"uptime_seconds,omitempty"`
	FirmwareVersion string             `json:"firmware_version,omitempty"`
	IPAddress       string             `json:"ip_address,omitempty"`
}

// DeviceStatus is the persisted liveness record for one device.
// IsOnline is derived on read, not stored truth.
type DeviceStatus struct {
	DeviceID        string    `json:"device_id"`
	LastSeen        time.Time `json:"last_seen"`
	IsOnline        bool      `json:"is_online"`
	RelayStates     []bool    `json:"relay_states"`
	WifiRSSI        *int      `json:"wifi_rssi,omitempty"`
	FreeHeap        *int64    `json:"free_heap,omitempty"`
	UptimeSeconds   *int64    `json:"uptime_seconds,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty"`
}

// RuleExecution records one gate attempt, admitted or rejected.
type RuleExecution struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"device_id"`
	RuleID          string    `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	ActionType      string    `json:"action_type"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Alert severities and categories.
const (
	AlertCritical = "critical"
	AlertWarning  = "warning"
	AlertInfo     = "info"

	AlertCategorySafety = "safety"
	AlertCategorySensor = "sensor"
	AlertCategoryRelay  = "relay"
	AlertCategorySystem = "system"
)

// SystemAlert is an operator-visible event raised by the backend.
type SystemAlert struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"device_id"`
	AlertType      string     `json:"alert_type"`
	AlertCategory  string     `json:"alert_category"`
	Message        string     `json:"message"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EngineStatus holds the per-device switches and running totals of the
// decision engine.
type EngineStatus struct {
	DeviceID          string    `json:"device_id"`
	EngineEnabled     bool      `json:"engine_enabled"`
	DryRunMode        bool      `json:"dry_run_mode"`
	EmergencyMode     bool      `json:"emergency_mode"`
	ManualOverride    bool      `json:"manual_override"`
	LockedRelays      []int     `json:"locked_relays"`
	TotalRules        int       `json:"total_rules"`
	TotalEvaluations  int64     `json:"total_evaluations"`
	TotalActions      int64     `json:"total_actions"`
	TotalSafetyBlocks int64     `json:"total_safety_blocks"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RelayLocked reports whether a relay number is in the locked set.
func (s *EngineStatus) RelayLocked(relay int) bool {
	for _, r := range s.LockedRelays {
		if r == relay {
			return true
		}
	}
	return false
}
