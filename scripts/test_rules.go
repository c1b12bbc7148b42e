// Rule tester: validates a rule document from disk, prints its
// human-readable description and optionally evaluates it against a
// state snapshot, without touching the database or a live controller.
//
//	go run scripts/test_rules.go rule.json [state.json]
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"hydrowave/internal/engine"
	"hydrowave/internal/models"
	"hydrowave/internal/rules"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/test_rules.go <rule.json> [state.json]")
		os.Exit(1)
	}

	rule := loadRule(os.Args[1])

	fmt.Printf("Rule: %s (ID: %s, device: %s)\n", rule.Name, rule.ID, rule.DeviceID)
	fmt.Printf("Enabled: %t, priority: %d, trigger: %s\n", rule.Enabled, rule.Priority, rule.TriggerType)

	result := rules.Validate(rule)
	if result.Valid {
		fmt.Println("Validation: OK")
	} else {
		fmt.Println("Validation: FAILED")
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	fmt.Printf("\nDescription:\n  %s\n", rules.Describe(rule))

	if len(os.Args) < 3 {
		return
	}

	state := loadState(os.Args[2])
	fmt.Println("\nEvaluating against snapshot...")
	if engine.Evaluate(rule.Condition, state) {
		fmt.Println("Condition holds: rule would fire (gate permitting)")
		for i, action := range rule.Actions {
			fmt.Printf("  %d. %s\n", i+1, action.Type)
		}
	} else {
		fmt.Println("Condition does not hold: rule would not fire")
	}

	for i, check := range rule.SafetyChecks {
		if engine.Evaluate(check.Condition, state) {
			severity := "non-critical"
			if check.IsCritical {
				severity = "CRITICAL"
			}
			fmt.Printf("Safety check %d would fail (%s): %s\n", i+1, severity, check.ErrorMessage)
		}
	}
}

func loadRule(path string) *models.Rule {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read rule file: %v", err)
	}
	var rule models.Rule
	if err := json.Unmarshal(raw, &rule); err != nil {
		log.Fatalf("Failed to parse rule: %v", err)
	}
	return &rule
}

func loadState(path string) models.SystemState {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read state file: %v", err)
	}
	var state models.SystemState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Fatalf("Failed to parse state: %v", err)
	}
	return state
}
