package engine

import (
	"testing"

	"hydrowave/internal/models"
)

func fptr(v float64) *float64 { return &v }

func snapshot(sensors map[string]float64) models.SystemState {
	return models.SystemState{Sensors: sensors, Params: map[string]float64{}}
}

func TestEvaluateSensorCompare(t *testing.T) {
	state := snapshot(map[string]float64{"ph": 5.5, "temp_water": 21.0})

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"less than holds", &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8)}, true},
		{"less than fails", &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.0)}, false},
		{"greater or equal boundary", &models.SensorCompare{SensorName: "ph", Operator: ">=", ValueMin: fptr(5.5)}, true},
		{"equal within epsilon", &models.SensorCompare{SensorName: "ph", Operator: "==", ValueMin: fptr(5.505)}, true},
		{"equal outside epsilon", &models.SensorCompare{SensorName: "ph", Operator: "==", ValueMin: fptr(5.52)}, false},
		{"not equal outside epsilon", &models.SensorCompare{SensorName: "ph", Operator: "!=", ValueMin: fptr(5.6)}, true},
		{"negate inverts", &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8), Negate: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.cond, state); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateBetweenOutside(t *testing.T) {
	state := snapshot(map[string]float64{"temp_water": 15.0})

	between := &models.SensorCompare{SensorName: "temp_water", Operator: "between", ValueMin: fptr(10), ValueMax: fptr(20)}
	if !Evaluate(between, state) {
		t.Error("between [10,20] should hold for 15")
	}
	if !Evaluate(between, snapshot(map[string]float64{"temp_water": 10.0})) {
		t.Error("between is inclusive at the lower bound")
	}
	if !Evaluate(between, snapshot(map[string]float64{"temp_water": 20.0})) {
		t.Error("between is inclusive at the upper bound")
	}
	if Evaluate(between, snapshot(map[string]float64{"temp_water": 25.0})) {
		t.Error("between [10,20] should not hold for 25")
	}

	outside := &models.SensorCompare{SensorName: "temp_water", Operator: "outside", ValueMin: fptr(10), ValueMax: fptr(20)}
	if Evaluate(outside, state) {
		t.Error("outside [10,20] should not hold for 15")
	}
	if !Evaluate(outside, snapshot(map[string]float64{"temp_water": 25.0})) {
		t.Error("outside [10,20] should hold for 25")
	}
	if Evaluate(outside, snapshot(map[string]float64{"temp_water": 20.0})) {
		t.Error("outside excludes the bounds themselves")
	}
}

func TestEvaluateMissingDataFailsClosed(t *testing.T) {
	state := snapshot(map[string]float64{})

	cond := &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8)}
	if Evaluate(cond, state) {
		t.Error("missing sensor must evaluate to false")
	}

	// Negate does not turn an absent reading into a firing condition.
	negated := &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8), Negate: true}
	if Evaluate(negated, state) {
		t.Error("missing sensor must stay false even when negated")
	}

	if Evaluate(&models.SystemStatus{SensorName: "water_level_ok"}, state) {
		t.Error("missing parameter must evaluate to false")
	}
}

func TestEvaluateRelayState(t *testing.T) {
	state := models.SystemState{Sensors: map[string]float64{}, Params: map[string]float64{}}
	state.Relays[3] = true

	if !Evaluate(&models.RelayState{SensorName: "relay_3"}, state) {
		t.Error("relay_3 is on, truthy check should hold")
	}
	if Evaluate(&models.RelayState{SensorName: "relay_4"}, state) {
		t.Error("relay_4 is off, truthy check should not hold")
	}
	if !Evaluate(&models.RelayState{SensorName: "3", ValueMin: fptr(1)}, state) {
		t.Error("bare index names resolve to the same relay")
	}
	if Evaluate(&models.RelayState{SensorName: "relay_99"}, state) {
		t.Error("out-of-range relay must evaluate to false")
	}
}

func TestEvaluateComposite(t *testing.T) {
	state := snapshot(map[string]float64{"ph": 5.5, "tds": 900})

	low := &models.SensorCompare{SensorName: "ph", Operator: "<", ValueMin: fptr(5.8)}
	high := &models.SensorCompare{SensorName: "tds", Operator: ">", ValueMin: fptr(1000)}

	and := &models.Composite{LogicOperator: "AND", SubConditions: []models.Condition{low, high}}
	if Evaluate(and, state) {
		t.Error("AND with one false child must be false")
	}

	or := &models.Composite{LogicOperator: "OR", SubConditions: []models.Condition{low, high}}
	if !Evaluate(or, state) {
		t.Error("OR with one true child must be true")
	}

	empty := &models.Composite{LogicOperator: "AND"}
	if Evaluate(empty, state) {
		t.Error("composite with no children must be false")
	}

	nested := &models.Composite{LogicOperator: "AND", SubConditions: []models.Condition{
		low,
		&models.Composite{LogicOperator: "OR", SubConditions: []models.Condition{high, low}},
	}}
	if !Evaluate(nested, state) {
		t.Error("nested composite should hold")
	}
}
