package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"hydrowave/internal/commands"
	"hydrowave/internal/devices"
	"hydrowave/internal/metrics"
	"hydrowave/internal/models"
	redisstate "hydrowave/internal/redis"
	"hydrowave/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	goredis "github.com/redis/go-redis/v9"
)

// How long a single store call may take before the gate fails closed.
const storeTimeout = 3 * time.Second

// Store is what the engine needs from persistence.
type Store interface {
	GetRulesByDevice(ctx context.Context, deviceID string) ([]models.Rule, error)
	GetRule(ctx context.Context, ruleID string) (*models.Rule, error)
	GetEngineStatus(ctx context.Context, deviceID string) (*models.EngineStatus, error)
	InsertRuleExecution(ctx context.Context, exec *models.RuleExecution) error
	InsertAlert(ctx context.Context, alert *models.SystemAlert) error
	BumpEngineCounters(ctx context.Context, deviceID string, evaluations, actions, safetyBlocks int64) error
}

// RuleScheduler is what the engine needs from the cron scheduler to keep
// periodic and scheduled triggers in sync with rule edits.
type RuleScheduler interface {
	AddOrUpdateRule(rule *models.Rule) error
	RemoveRule(ruleID string)
}

// Engine is the decision core: it turns telemetry into evaluated rules,
// gated executions and queued relay commands.
type Engine struct {
	store       Store
	queue       commands.Queue
	gate        *Gate
	tracker     *devices.Tracker
	redisClient *goredis.Client
	scheduler   RuleScheduler

	// dispatch hands a rule evaluation to the async worker pool. When
	// nil, evaluation runs inline (tests, single-process mode).
	dispatch func(ruleID, deviceID string) error

	now func() time.Time
}

// NewEngine wires the decision core. redisClient and scheduler may be
// nil in degraded single-process setups.
func NewEngine(store Store, queue commands.Queue, tracker *devices.Tracker, redisClient *goredis.Client) *Engine {
	return &Engine{
		store:       store,
		queue:       queue,
		gate:        NewGate(),
		tracker:     tracker,
		redisClient: redisClient,
		now:         time.Now,
	}
}

// SetDispatcher routes rule evaluations through an async task queue.
func (e *Engine) SetDispatcher(fn func(ruleID, deviceID string) error) { e.dispatch = fn }

// SetScheduler attaches the cron scheduler for trigger upkeep.
func (e *Engine) SetScheduler(s RuleScheduler) { e.scheduler = s }

// Gate exposes the rate/safety gate, mainly for rule lifecycle cleanup.
func (e *Engine) Gate() *Gate { return e.gate }

// HandleTelemetry consumes one device contact: it refreshes liveness,
// caches the evaluation snapshot and kicks off on_change rules.
func (e *Engine) HandleTelemetry(ctx context.Context, deviceID string, tel models.Telemetry) error {
	if _, err := e.tracker.ReportContact(ctx, deviceID, tel); err != nil {
		return fmt.Errorf("report contact: %w", err)
	}
	metrics.DeviceContacts.WithLabelValues(deviceID).Inc()

	state := models.StateFromTelemetry(tel)
	if e.redisClient != nil {
		if err := redisstate.SaveState(ctx, e.redisClient, deviceID, state); err != nil {
			log.Printf("ENGINE: Failed to cache state for %s: %v", deviceID, err)
		}
	}

	deviceRules, err := e.store.GetRulesByDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	for _, rule := range deviceRules {
		if !rule.Enabled || rule.TriggerType != models.TriggerOnChange {
			continue
		}
		if e.dispatch != nil {
			if err := e.dispatch(rule.ID, deviceID); err != nil {
				log.Printf("ENGINE: Failed to dispatch rule %s: %v", rule.ID, err)
			}
			continue
		}
		r := rule
		if _, err := e.EvaluateRule(ctx, &r, deviceID, state); err != nil {
			log.Printf("ENGINE: Rule %s evaluation error: %v", rule.ID, err)
		}
	}
	return nil
}

// EvaluateRuleByID loads the rule and the device's cached snapshot and
// runs the full pipeline. Async workers and cron triggers land here.
func (e *Engine) EvaluateRuleByID(ctx context.Context, ruleID, deviceID string) error {
	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	if deviceID == "" {
		deviceID = rule.DeviceID
	}
	if e.redisClient == nil {
		return fmt.Errorf("no state cache available for rule %s", ruleID)
	}
	state, ok, err := redisstate.LoadState(ctx, e.redisClient, deviceID)
	if err != nil {
		return fmt.Errorf("load state for %s: %w", deviceID, err)
	}
	if !ok {
		// No telemetry yet; every sensor read would fail closed anyway.
		log.Printf("ENGINE: No state snapshot for %s, skipping rule %s", deviceID, ruleID)
		return nil
	}
	_, err = e.EvaluateRule(ctx, rule, deviceID, state)
	return err
}

// EvaluateRule runs condition evaluation and the gate for one rule and
// records the attempt. It returns the execution record when the rule
// fired (admitted or rejected) and nil when the condition did not hold.
func (e *Engine) EvaluateRule(ctx context.Context, rule *models.Rule, deviceID string, state models.SystemState) (*models.RuleExecution, error) {
	if rule == nil || !rule.Enabled {
		return nil, nil
	}
	if deviceID == "" {
		deviceID = rule.DeviceID
	}
	started := e.now()
	metrics.RuleEvaluations.WithLabelValues(deviceID).Inc()

	statusCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	status, err := e.store.GetEngineStatus(statusCtx, deviceID)
	cancel()
	if err != nil {
		// Fail closed: without switches we cannot prove the action is
		// safe, so treat the rule as blocked.
		exec := e.record(ctx, rule, deviceID, started, false, "engine status unavailable: "+err.Error())
		metrics.GateBlocks.WithLabelValues(BlockStoreError).Inc()
		return exec, nil
	}

	e.bumpCounters(ctx, deviceID, 1, 0, 0)

	if !Evaluate(rule.Condition, state) {
		return nil, nil
	}

	for _, check := range e.gate.FailedSoftChecks(rule, state) {
		log.Printf("ENGINE: Soft safety check %q failed for rule %s: %s", check.Name, rule.ID, check.ErrorMessage)
	}

	// Dry-run previews the gate; a real execution reserves its fire
	// inside the gate's per-rule lock so concurrent firings cannot
	// both pass the cooldown or the hourly cap.
	var decision Decision
	if status.DryRunMode {
		decision = e.gate.Check(rule, state, status, started)
	} else {
		decision = e.gate.CheckAndReserve(rule, state, status, started)
	}
	if !decision.Allowed {
		metrics.GateBlocks.WithLabelValues(decision.Category).Inc()
		if decision.Critical {
			e.bumpCounters(ctx, deviceID, 0, 0, 1)
			e.raiseAlert(ctx, deviceID, models.AlertCritical, models.AlertCategorySafety,
				fmt.Sprintf("Rule %q blocked: %s", rule.Name, decision.Reason))
		}
		return e.record(ctx, rule, deviceID, started, false, decision.Reason), nil
	}

	if status.DryRunMode {
		log.Printf("ENGINE: [DRY RUN] Rule %s would execute %d action(s)", rule.ID, len(rule.Actions))
		return e.record(ctx, rule, deviceID, started, true, "dry run, no commands issued"), nil
	}

	var firstErr error
	for _, action := range rule.Actions {
		if err := e.executeAction(ctx, rule, deviceID, action, state); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.bumpCounters(ctx, deviceID, 0, int64(len(rule.Actions)), 0)

	if firstErr != nil {
		return e.record(ctx, rule, deviceID, started, false, firstErr.Error()), firstErr
	}
	return e.record(ctx, rule, deviceID, started, true, ""), nil
}

// executeAction turns one admitted rule action into its effect. Relay
// actions become queued commands for the device to poll; a failed
// enqueue is surfaced instead of retried so a physical actuation is
// never duplicated blindly.
func (e *Engine) executeAction(ctx context.Context, rule *models.Rule, deviceID string, action models.Action, state models.SystemState) error {
	switch action.Type {
	case models.ActionRelayOn:
		return e.enqueueRelay(ctx, rule, deviceID, action, "on", nil)

	case models.ActionRelayOff:
		return e.enqueueRelay(ctx, rule, deviceID, action, "off", nil)

	case models.ActionRelayPulse:
		secs := durationToSeconds(action.DurationMs)
		return e.enqueueRelay(ctx, rule, deviceID, action, "on", &secs)

	case models.ActionRelayPWM:
		// Proportional dosing over the poll channel: scale the window
		// by the duty value and deliver it as a timed on command.
		value := 100.0
		if action.Value != nil {
			value = *action.Value
		}
		secs := durationToSeconds(int64(float64(action.DurationMs) * value / 100))
		return e.enqueueRelay(ctx, rule, deviceID, action, "on", &secs)

	case models.ActionSystemAlert:
		e.raiseAlert(ctx, deviceID, models.AlertWarning, models.AlertCategorySystem,
			fmt.Sprintf("Rule %q: %s", rule.Name, action.Message))
		return nil

	case models.ActionLogEvent:
		log.Printf("ENGINE: Rule %s event: %s", rule.ID, action.Message)
		return nil

	case models.ActionBackendUpdate:
		if e.redisClient != nil {
			return redisstate.SaveState(ctx, e.redisClient, deviceID, state)
		}
		return nil
	}
	return fmt.Errorf("unknown action type %q", action.Type)
}

func (e *Engine) enqueueRelay(ctx context.Context, rule *models.Rule, deviceID string, action models.Action, relayAction string, durationSeconds *int) error {
	if action.TargetRelay == nil {
		return fmt.Errorf("action %s has no target relay", action.Type)
	}
	cmd, err := e.queue.Enqueue(ctx, deviceID, *action.TargetRelay, relayAction, durationSeconds, "rule:"+rule.ID)
	if err != nil {
		return fmt.Errorf("enqueue %s for relay %d: %w", relayAction, *action.TargetRelay, err)
	}
	metrics.CommandsEnqueued.WithLabelValues(deviceID).Inc()
	log.Printf("ENGINE: Rule %s queued command %s (relay %d %s)", rule.ID, cmd.ID, cmd.RelayNumber, cmd.Action)
	return nil
}

// record writes one RuleExecution row. Recording failures are logged,
// never propagated: history must not break actuation.
func (e *Engine) record(ctx context.Context, rule *models.Rule, deviceID string, started time.Time, success bool, errMsg string) *models.RuleExecution {
	actionType := ""
	if len(rule.Actions) > 0 {
		actionType = string(rule.Actions[0].Type)
	}
	exec := &models.RuleExecution{
		DeviceID:        deviceID,
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		ActionType:      actionType,
		Success:         success,
		ErrorMessage:    errMsg,
		ExecutionTimeMs: e.now().Sub(started).Milliseconds(),
		CreatedAt:       e.now(),
	}
	recCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := e.store.InsertRuleExecution(recCtx, exec); err != nil {
		log.Printf("ENGINE: Failed to record execution of rule %s: %v", rule.ID, err)
	}
	return exec
}

func (e *Engine) raiseAlert(ctx context.Context, deviceID, alertType, category, message string) {
	alert := &models.SystemAlert{
		DeviceID:      deviceID,
		AlertType:     alertType,
		AlertCategory: category,
		Message:       message,
		CreatedAt:     e.now(),
	}
	alertCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := e.store.InsertAlert(alertCtx, alert); err != nil {
		log.Printf("ENGINE: Failed to raise alert for %s: %v", deviceID, err)
	}
	metrics.AlertsRaised.WithLabelValues(category).Inc()
}

func (e *Engine) bumpCounters(ctx context.Context, deviceID string, evals, actions, safetyBlocks int64) {
	bumpCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := e.store.BumpEngineCounters(bumpCtx, deviceID, evals, actions, safetyBlocks); err != nil {
		log.Printf("ENGINE: Failed to bump counters for %s: %v", deviceID, err)
	}
}

// RuleChanged keeps cron triggers in sync after a rule create/update.
func (e *Engine) RuleChanged(rule *models.Rule) {
	if e.scheduler == nil {
		return
	}
	if err := e.scheduler.AddOrUpdateRule(rule); err != nil {
		log.Printf("ENGINE: Failed to reschedule rule %s: %v", rule.ID, err)
	}
}

// RuleRemoved drops cron triggers and gate state for a deleted rule.
func (e *Engine) RuleRemoved(ruleID string) {
	if e.scheduler != nil {
		e.scheduler.RemoveRule(ruleID)
	}
	e.gate.Forget(ruleID)
}

// StartTelemetrySubscription ingests device contacts published over
// MQTT on devices/<id>/status, the same path as HTTP telemetry.
// Command delivery stays poll-based regardless.
func (e *Engine) StartTelemetrySubscription(client mqtt.Client) {
	log.Println("ENGINE: Subscribing to MQTT topic: devices/+/status")
	client.Subscribe("devices/+/status", 1, func(_ mqtt.Client, msg mqtt.Message) {
		deviceID := utils.ParseDeviceID(msg.Topic())
		if deviceID == "" {
			log.Printf("ENGINE: Ignoring telemetry on topic %s", msg.Topic())
			return
		}
		var tel models.Telemetry
		if err := json.Unmarshal(msg.Payload(), &tel); err != nil {
			log.Printf("ENGINE: Bad telemetry payload from %s: %v", deviceID, err)
			return
		}
		if err := e.HandleTelemetry(context.Background(), deviceID, tel); err != nil {
			log.Printf("ENGINE: Telemetry from %s not processed: %v", deviceID, err)
		}
	})
}

func durationToSeconds(ms int64) int {
	if ms <= 0 {
		return 0
	}
	secs := int((ms + 999) / 1000)
	if secs < 1 {
		secs = 1
	}
	return secs
}
