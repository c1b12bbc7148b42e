package commands

import (
	"context"
	"log"
	"sort"
	"time"

	"hydrowave/internal/db"
	"hydrowave/internal/models"
)

// StoreRetention is how long finished commands stay queryable in the
// persistent backend. The history is an operator-facing record, so it
// outlives the in-memory backend's short queue-state window.
const StoreRetention = 24 * time.Hour

// StoreQueue is the persistent queue backend. Delivery atomicity rides
// on the database: the poll query flips pending rows to sent in a
// single statement, so concurrent polls from the same device cannot
// both receive a command as pending.
type StoreQueue struct {
	db        *db.DB
	retention time.Duration
	now       func() time.Time
}

// NewStoreQueue wraps the database as a command queue.
func NewStoreQueue(database *db.DB) *StoreQueue {
	return &StoreQueue{db: database, retention: StoreRetention, now: time.Now}
}

// Run deletes finished commands past retention on the given interval
// until ctx is done.
func (q *StoreQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.db.DeleteFinishedCommandsBefore(ctx, q.now().Add(-q.retention))
			if err != nil {
				log.Printf("COMMANDS: Retention sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("COMMANDS: Deleted %d finished command(s)", n)
			}
		}
	}
}

func (q *StoreQueue) Enqueue(ctx context.Context, deviceID string, relayNumber int, action string, durationSeconds *int, createdBy string) (*models.RelayCommand, error) {
	if err := checkRequest(deviceID, relayNumber, action); err != nil {
		return nil, err
	}
	dup, err := q.db.PendingCommandExists(ctx, deviceID, relayNumber, action)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicate
	}

	cmd := &models.RelayCommand{
		DeviceID:        deviceID,
		RelayNumber:     relayNumber,
		Action:          action,
		DurationSeconds: durationSeconds,
		Status:          models.CommandPending,
		CreatedBy:       createdBy,
		CreatedAt:       q.now(),
	}
	// A failed insert is surfaced, never retried: command creation is
	// not idempotent and a blind retry could actuate hardware twice.
	if err := q.db.InsertCommand(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (q *StoreQueue) Poll(ctx context.Context, deviceID string) ([]models.RelayCommand, error) {
	delivered, err := q.db.ClaimPendingCommands(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(delivered, func(i, j int) bool {
		return delivered[i].CreatedAt.Before(delivered[j].CreatedAt)
	})
	return delivered, nil
}

func (q *StoreQueue) Report(ctx context.Context, commandID string, status models.CommandStatus, errorMessage string) (*models.RelayCommand, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if status == models.CommandFailed && errorMessage == "" {
		errorMessage = "unspecified device error"
	}
	var completedAt *time.Time
	if status.Terminal() {
		now := q.now()
		completedAt = &now
	}
	cmd, err := q.db.UpdateCommandStatus(ctx, commandID, status, errorMessage, completedAt)
	if err == db.ErrNotFound {
		return nil, ErrNotFound
	}
	return cmd, err
}

func (q *StoreQueue) Get(ctx context.Context, commandID string) (*models.RelayCommand, error) {
	cmd, err := q.db.GetCommand(ctx, commandID)
	if err == db.ErrNotFound {
		return nil, ErrNotFound
	}
	return cmd, err
}

func (q *StoreQueue) Stale(ctx context.Context, horizon time.Duration) ([]models.RelayCommand, error) {
	return q.db.StaleCommands(ctx, q.now().Add(-horizon))
}
