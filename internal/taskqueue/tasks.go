package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const TypeEvaluateRule = "evaluate_rule"

// Evaluator runs one rule evaluation against the device's cached state
// snapshot. The decision engine implements it.
type Evaluator interface {
	EvaluateRuleByID(ctx context.Context, ruleID, deviceID string) error
}

// Global instances - these should be initialized by the main application
var evaluator Evaluator

// SetGlobalInstances sets the evaluator the workers hand tasks to.
func SetGlobalInstances(eval Evaluator) {
	evaluator = eval
}

// EvaluationTaskPayload for tasks
type EvaluationTaskPayload struct {
	RuleID   string
	DeviceID string
}

// EnqueueEvaluation enqueues a rule evaluation task.
func EnqueueEvaluation(ruleID, deviceID string) error {
	payload, _ := json.Marshal(EvaluationTaskPayload{RuleID: ruleID, DeviceID: deviceID})
	task := asynq.NewTask(TypeEvaluateRule, payload)
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(10*time.Second))
	if err != nil {
		log.Printf("TASKQUEUE: Failed to enqueue task for rule %s: %v", ruleID, err)
		return err
	}
	log.Printf("TASKQUEUE: Enqueued task %s for rule %s (device: %s)", info.ID, ruleID, deviceID)
	return nil
}

// evaluateRuleTask handles the task
func evaluateRuleTask(ctx context.Context, t *asynq.Task) error {
	var payload EvaluationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Printf("TASKQUEUE: Failed to unmarshal task payload: %v", err)
		return err
	}
	if evaluator == nil {
		return fmt.Errorf("evaluator not initialized")
	}
	if err := evaluator.EvaluateRuleByID(ctx, payload.RuleID, payload.DeviceID); err != nil {
		log.Printf("TASKQUEUE: Evaluation of rule %s failed: %v", payload.RuleID, err)
		return err
	}
	return nil
}
