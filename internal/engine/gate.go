package engine

import (
	"fmt"
	"sync"
	"time"

	"hydrowave/internal/models"
)

// Gate rejection categories, recorded on executions and metrics.
const (
	BlockOverride   = "manual_override"
	BlockEmergency  = "emergency_mode"
	BlockLockedRel  = "locked_relay"
	BlockSafety     = "safety"
	BlockCooldown   = "cooldown"
	BlockHourlyCap  = "hourly_cap"
	BlockDisabled   = "disabled"
	BlockStoreError = "store_error"
)

// Decision is the outcome of gating one rule firing.
type Decision struct {
	Allowed  bool
	Reason   string
	Category string
	Critical bool
}

// Gate enforces safety checks, cooldowns and hourly execution caps
// before a fired rule is allowed to act. Cooldown and cap state is
// keyed by rule id and serialized per rule so two concurrent firings
// cannot both pass the same cooldown check.
type Gate struct {
	mu    sync.Mutex
	rules map[string]*ruleGateState
}

type ruleGateState struct {
	mu       sync.Mutex
	lastFire time.Time
	fires    []time.Time // fires within the rolling 1h window
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{rules: make(map[string]*ruleGateState)}
}

func (g *Gate) state(ruleID string) *ruleGateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.rules[ruleID]
	if !ok {
		st = &ruleGateState{}
		g.rules[ruleID] = st
	}
	return st
}

// Check runs every gate stage in order and returns the first rejection,
// or an admit decision. It never records a fire; dry-run evaluation
// uses it to preview the gate without consuming the cooldown or the
// hourly budget.
func (g *Gate) Check(rule *models.Rule, state models.SystemState, status *models.EngineStatus, now time.Time) Decision {
	return g.check(rule, state, status, now, false)
}

// CheckAndReserve is Check for real executions: an admit records the
// fire under the same per-rule lock as the cooldown and cap checks, so
// two concurrent firings of one rule can never both pass.
func (g *Gate) CheckAndReserve(rule *models.Rule, state models.SystemState, status *models.EngineStatus, now time.Time) Decision {
	return g.check(rule, state, status, now, true)
}

func (g *Gate) check(rule *models.Rule, state models.SystemState, status *models.EngineStatus, now time.Time, reserve bool) Decision {
	if status != nil {
		if !status.EngineEnabled {
			return Decision{Reason: "engine is disabled for this device", Category: BlockDisabled}
		}
		if status.ManualOverride && rule.TriggerType != models.TriggerScheduled {
			return Decision{Reason: "manual override suspends automatic rule firing", Category: BlockOverride}
		}
		if status.EmergencyMode && touchesRelays(rule) {
			return Decision{Reason: "emergency mode blocks actuator actions", Category: BlockEmergency}
		}
		for _, action := range rule.Actions {
			if action.TargetRelay != nil && status.RelayLocked(*action.TargetRelay) {
				return Decision{
					Reason:   fmt.Sprintf("relay %d is locked", *action.TargetRelay),
					Category: BlockLockedRel,
				}
			}
		}
	}

	// Safety interlocks. A check whose condition holds has failed:
	// critical failures block the rule outright, non-critical failures
	// are surfaced by the caller as log lines only.
	for _, check := range rule.SafetyChecks {
		if check.Condition == nil {
			continue
		}
		if Evaluate(check.Condition, state) {
			if check.IsCritical {
				return Decision{
					Reason:   fmt.Sprintf("critical safety check %q: %s", check.Name, check.ErrorMessage),
					Category: BlockSafety,
					Critical: true,
				}
			}
		}
	}

	st := g.state(rule.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if rule.CooldownMs > 0 && !st.lastFire.IsZero() {
		elapsed := now.Sub(st.lastFire)
		cooldown := time.Duration(rule.CooldownMs) * time.Millisecond
		if elapsed < cooldown {
			return Decision{
				Reason:   fmt.Sprintf("cooldown active for another %s", (cooldown - elapsed).Round(time.Second)),
				Category: BlockCooldown,
			}
		}
	}

	if rule.MaxExecutionsPerHour > 0 {
		st.prune(now)
		if len(st.fires) >= rule.MaxExecutionsPerHour {
			return Decision{
				Reason:   fmt.Sprintf("hourly execution cap of %d reached", rule.MaxExecutionsPerHour),
				Category: BlockHourlyCap,
			}
		}
	}

	if reserve {
		st.lastFire = now
		st.fires = append(st.fires, now)
	}
	return Decision{Allowed: true}
}

// FailedSoftChecks lists non-critical safety checks whose condition
// holds. They never block; callers log them.
func (g *Gate) FailedSoftChecks(rule *models.Rule, state models.SystemState) []models.SafetyCheck {
	var failed []models.SafetyCheck
	for _, check := range rule.SafetyChecks {
		if check.Condition == nil || check.IsCritical {
			continue
		}
		if Evaluate(check.Condition, state) {
			failed = append(failed, check)
		}
	}
	return failed
}

// Forget drops tracked state for a deleted rule.
func (g *Gate) Forget(ruleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rules, ruleID)
}

// prune drops fire records older than the rolling window. Callers hold
// the per-rule lock.
func (st *ruleGateState) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := st.fires[:0]
	for _, t := range st.fires {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.fires = kept
}

// touchesRelays reports whether any action drives hardware. Alert- and
// log-only rules still run in emergency mode.
func touchesRelays(rule *models.Rule) bool {
	for _, action := range rule.Actions {
		switch action.Type {
		case models.ActionRelayOn, models.ActionRelayOff, models.ActionRelayPulse, models.ActionRelayPWM:
			return true
		}
	}
	return false
}
