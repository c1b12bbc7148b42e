package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hydrowave/internal/models"
)

// Validation and lookup errors shared by every queue backend.
var (
	ErrRelayOutOfRange = errors.New("relay_number must be between 0 and 15")
	ErrUnknownAction   = errors.New("action must be \"on\" or \"off\"")
	ErrInvalidStatus   = errors.New("invalid command status")
	ErrNotFound        = errors.New("command not found")
	ErrDuplicate       = errors.New("an identical command is already pending")
)

// DefaultRetention is how long a terminal command is kept before the
// transient backend evicts it.
const DefaultRetention = 5 * time.Minute

// Queue is the per-device command lifecycle: pending commands are
// created by rules or operators, handed to the device exactly when it
// polls (flipping them to sent in the same operation), and finished by
// the device's status report. Both the store-backed and the in-memory
// backend implement this same contract.
type Queue interface {
	// Enqueue creates a pending command. It rejects out-of-range relay
	// numbers and unrecognized actions, and refuses an exact duplicate
	// of a command that is still pending.
	Enqueue(ctx context.Context, deviceID string, relayNumber int, action string, durationSeconds *int, createdBy string) (*models.RelayCommand, error)

	// Poll returns all pending commands for the device in creation
	// order and atomically flips each one to sent. A command is never
	// handed to two polls as pending.
	Poll(ctx context.Context, deviceID string) ([]models.RelayCommand, error)

	// Report records the device's outcome for a command. Terminal
	// statuses set completed_at; pending/sent are accepted only for
	// reconciliation.
	Report(ctx context.Context, commandID string, status models.CommandStatus, errorMessage string) (*models.RelayCommand, error)

	// Get fetches one command by id.
	Get(ctx context.Context, commandID string) (*models.RelayCommand, error)

	// Stale lists commands stuck in pending or sent past the horizon.
	Stale(ctx context.Context, horizon time.Duration) ([]models.RelayCommand, error)
}

// checkRequest validates the immutable part of a new command.
func checkRequest(deviceID string, relayNumber int, action string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if relayNumber < 0 || relayNumber >= models.MaxRelays {
		return ErrRelayOutOfRange
	}
	if action != "on" && action != "off" {
		return ErrUnknownAction
	}
	return nil
}
