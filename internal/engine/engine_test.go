package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hydrowave/internal/commands"
	"hydrowave/internal/devices"
	"hydrowave/internal/models"
)

// fakeStore keeps engine persistence in memory for tests.
type fakeStore struct {
	rules      map[string]*models.Rule
	status     map[string]*models.EngineStatus
	executions []models.RuleExecution
	alerts     []models.SystemAlert
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules:  make(map[string]*models.Rule),
		status: make(map[string]*models.EngineStatus),
	}
}

func (s *fakeStore) GetRulesByDevice(ctx context.Context, deviceID string) ([]models.Rule, error) {
	var out []models.Rule
	for _, r := range s.rules {
		if r.DeviceID == deviceID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) GetRule(ctx context.Context, ruleID string) (*models.Rule, error) {
	r, ok := s.rules[ruleID]
	if !ok {
		return nil, errors.New("rule not found")
	}
	return r, nil
}

func (s *fakeStore) GetEngineStatus(ctx context.Context, deviceID string) (*models.EngineStatus, error) {
	if st, ok := s.status[deviceID]; ok {
		return st, nil
	}
	return &models.EngineStatus{DeviceID: deviceID, EngineEnabled: true}, nil
}

func (s *fakeStore) InsertRuleExecution(ctx context.Context, exec *models.RuleExecution) error {
	s.executions = append(s.executions, *exec)
	return nil
}

func (s *fakeStore) InsertAlert(ctx context.Context, alert *models.SystemAlert) error {
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *fakeStore) BumpEngineCounters(ctx context.Context, deviceID string, evaluations, actions, safetyBlocks int64) error {
	return nil
}

func testEngine(store *fakeStore) (*Engine, *commands.MemoryQueue, *devices.Tracker) {
	queue := commands.NewMemoryQueue(0)
	tracker := devices.NewTracker(devices.NewMemoryStatusStore())
	eng := NewEngine(store, queue, tracker, nil)
	return eng, queue, tracker
}

func TestEvaluateRuleEndToEnd(t *testing.T) {
	store := newFakeStore()
	eng, queue, _ := testEngine(store)

	base := time.Now()
	eng.now = func() time.Time { return base }

	relay := 2
	rule := &models.Rule{
		ID: "ph-low", DeviceID: "greenhouse-1", Name: "pH correction",
		Enabled:  true,
		Priority: 50,
		Condition: &models.SensorCompare{
			SensorName: "ph", Operator: "<", ValueMin: fptr(5.8),
		},
		Actions: []models.Action{
			{Type: models.ActionRelayPulse, TargetRelay: &relay, DurationMs: 3000},
		},
		TriggerType: models.TriggerOnChange,
		CooldownMs:  300000,
	}

	state := snapshot(map[string]float64{"ph": 5.5})
	exec, err := eng.EvaluateRule(context.Background(), rule, "greenhouse-1", state)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if exec == nil || !exec.Success {
		t.Fatalf("expected a successful execution, got %+v", exec)
	}

	delivered, err := queue.Poll(context.Background(), "greenhouse-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected 1 queued command, got %d", len(delivered))
	}
	cmd := delivered[0]
	if cmd.RelayNumber != 2 || cmd.Action != "on" {
		t.Errorf("command = relay %d %s, want relay 2 on", cmd.RelayNumber, cmd.Action)
	}
	if cmd.DurationSeconds == nil || *cmd.DurationSeconds != 3 {
		t.Errorf("pulse of 3000ms should deliver a 3s duration, got %v", cmd.DurationSeconds)
	}
	if cmd.Status != models.CommandSent {
		t.Errorf("polled command should be sent, got %s", cmd.Status)
	}
	if cmd.CreatedBy != "rule:ph-low" {
		t.Errorf("created_by = %q, want rule:ph-low", cmd.CreatedBy)
	}

	if _, err := queue.Report(context.Background(), cmd.ID, models.CommandCompleted, ""); err != nil {
		t.Fatalf("Report: %v", err)
	}

	// A second firing 10s later lands inside the cooldown.
	eng.now = func() time.Time { return base.Add(10 * time.Second) }
	exec, err = eng.EvaluateRule(context.Background(), rule, "greenhouse-1", state)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if exec == nil || exec.Success {
		t.Fatalf("cooldown firing should be recorded as rejected, got %+v", exec)
	}
	if !strings.Contains(exec.ErrorMessage, "cooldown") {
		t.Errorf("rejection reason should mention cooldown, got %q", exec.ErrorMessage)
	}

	if len(store.executions) != 2 {
		t.Errorf("expected 2 execution records, got %d", len(store.executions))
	}
}

func TestEvaluateRuleConditionNotMet(t *testing.T) {
	store := newFakeStore()
	eng, queue, _ := testEngine(store)

	rule := relayRule("quiet-rule")
	state := snapshot(map[string]float64{"ph": 6.5})

	exec, err := eng.EvaluateRule(context.Background(), rule, "greenhouse-1", state)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if exec != nil {
		t.Fatalf("unfired rule should not produce an execution record, got %+v", exec)
	}
	if delivered, _ := queue.Poll(context.Background(), "greenhouse-1"); len(delivered) != 0 {
		t.Errorf("no commands should be queued, got %d", len(delivered))
	}
}

func TestEvaluateRuleCriticalSafetyRaisesAlert(t *testing.T) {
	store := newFakeStore()
	eng, queue, _ := testEngine(store)

	rule := relayRule("pump-rule")
	rule.DeviceID = "greenhouse-1"
	rule.SafetyChecks = []models.SafetyCheck{
		{
			Name:         "dry tank",
			Condition:    &models.SystemStatus{SensorName: "water_level_ok", ValueMin: fptr(0)},
			ErrorMessage: "water level is low",
			IsCritical:   true,
		},
	}

	state := models.SystemState{
		Sensors: map[string]float64{"ph": 5.5},
		Params:  map[string]float64{"water_level_ok": 0},
	}
	exec, err := eng.EvaluateRule(context.Background(), rule, "greenhouse-1", state)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if exec == nil || exec.Success {
		t.Fatalf("critical safety block should record a rejection, got %+v", exec)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("expected one safety alert, got %d", len(store.alerts))
	}
	alert := store.alerts[0]
	if alert.AlertType != models.AlertCritical || alert.AlertCategory != models.AlertCategorySafety {
		t.Errorf("alert = %s/%s, want critical/safety", alert.AlertType, alert.AlertCategory)
	}
	if delivered, _ := queue.Poll(context.Background(), "greenhouse-1"); len(delivered) != 0 {
		t.Errorf("blocked rule must not queue commands, got %d", len(delivered))
	}
}

func TestEvaluateRuleDryRun(t *testing.T) {
	store := newFakeStore()
	store.status["greenhouse-1"] = &models.EngineStatus{
		DeviceID: "greenhouse-1", EngineEnabled: true, DryRunMode: true,
	}
	eng, queue, _ := testEngine(store)

	rule := relayRule("dry-rule")
	rule.CooldownMs = 300000
	state := snapshot(map[string]float64{"ph": 5.5})

	exec, err := eng.EvaluateRule(context.Background(), rule, "greenhouse-1", state)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if exec == nil || !exec.Success {
		t.Fatalf("dry run should record success, got %+v", exec)
	}
	if !strings.Contains(exec.ErrorMessage, "dry run") {
		t.Errorf("dry run record should say so, got %q", exec.ErrorMessage)
	}
	if delivered, _ := queue.Poll(context.Background(), "greenhouse-1"); len(delivered) != 0 {
		t.Errorf("dry run must not queue commands, got %d", len(delivered))
	}

	// Dry runs do not consume the cooldown.
	exec, err = eng.EvaluateRule(context.Background(), rule, "greenhouse-1", state)
	if err != nil || exec == nil || !exec.Success {
		t.Fatalf("second dry run should also be admitted, got %+v (%v)", exec, err)
	}
}

func TestHandleTelemetryDispatchesOnChangeRules(t *testing.T) {
	store := newFakeStore()
	relay := 1
	store.rules["onchange"] = &models.Rule{
		ID: "onchange", DeviceID: "greenhouse-1", Name: "on change", Enabled: true,
		Condition:   &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8)},
		Actions:     []models.Action{{Type: models.ActionRelayOn, TargetRelay: &relay}},
		TriggerType: models.TriggerOnChange,
	}
	store.rules["periodic"] = &models.Rule{
		ID: "periodic", DeviceID: "greenhouse-1", Name: "periodic", Enabled: true,
		Condition:         &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8)},
		Actions:           []models.Action{{Type: models.ActionRelayOn, TargetRelay: &relay}},
		TriggerType:       models.TriggerPeriodic,
		TriggerIntervalMs: 5000,
	}

	eng, _, tracker := testEngine(store)
	var dispatched []string
	eng.SetDispatcher(func(ruleID, deviceID string) error {
		dispatched = append(dispatched, ruleID+"@"+deviceID)
		return nil
	})

	tel := models.Telemetry{Sensors: map[string]float64{"ph": 5.5}, RelayStates: []bool{true}}
	if err := eng.HandleTelemetry(context.Background(), "greenhouse-1", tel); err != nil {
		t.Fatalf("HandleTelemetry: %v", err)
	}

	if len(dispatched) != 1 || dispatched[0] != "onchange@greenhouse-1" {
		t.Errorf("only on_change rules should dispatch, got %v", dispatched)
	}
	if !tracker.IsOnline(context.Background(), "greenhouse-1") {
		t.Error("telemetry contact should mark the device online")
	}
}
