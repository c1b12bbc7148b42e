package db

import (
	"context"
	"encoding/json"
	"time"

	"hydrowave/internal/models"
)

// Rules are stored as a single jsonb document plus extracted columns
// for filtering, so the condition tree round-trips without a relational
// mapping.

func scanRuleJSON(raw []byte) (*models.Rule, error) {
	var rule models.Rule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRule fetches one rule by id.
func (d *DB) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx, "SELECT rule_json FROM rules WHERE id = $1", id).Scan(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	return scanRuleJSON(raw)
}

// GetRulesByDevice fetches all rules bound to a device, highest
// priority first.
func (d *DB) GetRulesByDevice(ctx context.Context, deviceID string) ([]models.Rule, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT rule_json FROM rules WHERE device_id = $1 ORDER BY priority DESC, id", deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rule, err := scanRuleJSON(raw)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// GetAllRules fetches every rule, for scheduler warm-up and listing.
func (d *DB) GetAllRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := d.pool.Query(ctx, "SELECT rule_json FROM rules ORDER BY device_id, priority DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rule, err := scanRuleJSON(raw)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// InsertRule creates a rule.
func (d *DB) InsertRule(ctx context.Context, rule *models.Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx,
		"INSERT INTO rules (id, device_id, enabled, priority, trigger_type, rule_json) VALUES ($1, $2, $3, $4, $5, $6)",
		rule.ID, rule.DeviceID, rule.Enabled, rule.Priority, rule.TriggerType, raw)
	return err
}

// UpdateRule replaces an existing rule's document and filter columns.
func (d *DB) UpdateRule(ctx context.Context, rule *models.Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx,
		"UPDATE rules SET device_id = $2, enabled = $3, priority = $4, trigger_type = $5, rule_json = $6 WHERE id = $1",
		rule.ID, rule.DeviceID, rule.Enabled, rule.Priority, rule.TriggerType, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (d *DB) DeleteRule(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM rules WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const commandColumns = `id, device_id, relay_number, action, duration_seconds, status,
	COALESCE(created_by, ''), created_at, sent_at, completed_at, COALESCE(error_message, '')`

type commandRow interface {
	Scan(dest ...any) error
}

func scanCommand(row commandRow) (*models.RelayCommand, error) {
	var cmd models.RelayCommand
	err := row.Scan(&cmd.ID, &cmd.DeviceID, &cmd.RelayNumber, &cmd.Action, &cmd.DurationSeconds,
		&cmd.Status, &cmd.CreatedBy, &cmd.CreatedAt, &cmd.SentAt, &cmd.CompletedAt, &cmd.ErrorMessage)
	if err != nil {
		return nil, notFound(err)
	}
	return &cmd, nil
}

// PendingCommandExists reports whether an identical undelivered command
// is already queued for the device.
func (d *DB) PendingCommandExists(ctx context.Context, deviceID string, relayNumber int, action string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM relay_commands WHERE device_id = $1 AND relay_number = $2 AND action = $3 AND status = 'pending')",
		deviceID, relayNumber, action).Scan(&exists)
	return exists, err
}

// InsertCommand creates a command row and fills in its generated id.
func (d *DB) InsertCommand(ctx context.Context, cmd *models.RelayCommand) error {
	return d.pool.QueryRow(ctx,
		"INSERT INTO relay_commands (device_id, relay_number, action, duration_seconds, status, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		cmd.DeviceID, cmd.RelayNumber, cmd.Action, cmd.DurationSeconds, cmd.Status, cmd.CreatedBy, cmd.CreatedAt).
		Scan(&cmd.ID)
}

// ClaimPendingCommands flips every pending command for a device to sent
// and returns them. The single UPDATE makes delivery exactly-once even
// under concurrent polls.
func (d *DB) ClaimPendingCommands(ctx context.Context, deviceID string) ([]models.RelayCommand, error) {
	rows, err := d.pool.Query(ctx,
		"UPDATE relay_commands SET status = 'sent', sent_at = NOW() WHERE device_id = $1 AND status = 'pending' RETURNING "+commandColumns,
		deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []models.RelayCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *cmd)
	}
	return claimed, rows.Err()
}

// UpdateCommandStatus records a device-reported outcome and returns the
// updated command.
func (d *DB) UpdateCommandStatus(ctx context.Context, id string, status models.CommandStatus, errorMessage string, completedAt *time.Time) (*models.RelayCommand, error) {
	row := d.pool.QueryRow(ctx,
		"UPDATE relay_commands SET status = $2, error_message = NULLIF($3, ''), completed_at = $4 WHERE id = $1 RETURNING "+commandColumns,
		id, status, errorMessage, completedAt)
	return scanCommand(row)
}

// GetCommand fetches one command by id.
func (d *DB) GetCommand(ctx context.Context, id string) (*models.RelayCommand, error) {
	row := d.pool.QueryRow(ctx, "SELECT "+commandColumns+" FROM relay_commands WHERE id = $1", id)
	return scanCommand(row)
}

// StaleCommands returns commands stuck without progress since before
// the cutoff: pending commands no device ever picked up, and sent
// commands with no outcome reported.
func (d *DB) StaleCommands(ctx context.Context, cutoff time.Time) ([]models.RelayCommand, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+commandColumns+" FROM relay_commands WHERE (status = 'pending' AND created_at < $1) OR (status = 'sent' AND sent_at < $1)", cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []models.RelayCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, *cmd)
	}
	return stale, rows.Err()
}

// DeleteFinishedCommandsBefore evicts completed and failed commands
// older than the cutoff.
func (d *DB) DeleteFinishedCommandsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx,
		"DELETE FROM relay_commands WHERE status IN ('completed', 'failed') AND completed_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
