package db

import (
	"context"
	"encoding/json"

	"hydrowave/internal/devices"
	"hydrowave/internal/models"

	"github.com/jackc/pgx/v5"
)

// GetDeviceStatus fetches a device's status record. Unknown devices
// map to devices.ErrUnknownDevice so the tracker can distinguish them
// from transport failures.
func (d *DB) GetDeviceStatus(ctx context.Context, deviceID string) (*models.DeviceStatus, error) {
	var status models.DeviceStatus
	var relays []byte
	err := d.pool.QueryRow(ctx,
		`SELECT device_id, last_seen, is_online, relay_states, wifi_rssi, free_heap,
			uptime_seconds, COALESCE(firmware_version, ''), COALESCE(ip_address, '')
		 FROM device_status WHERE device_id = $1`, deviceID).
		Scan(&status.DeviceID, &status.LastSeen, &status.IsOnline, &relays, &status.WifiRSSI,
			&status.FreeHeap, &status.UptimeSeconds, &status.FirmwareVersion, &status.IPAddress)
	if err == pgx.ErrNoRows {
		return nil, devices.ErrUnknownDevice
	}
	if err != nil {
		return nil, err
	}
	if len(relays) > 0 {
		if err := json.Unmarshal(relays, &status.RelayStates); err != nil {
			return nil, err
		}
	}
	return &status, nil
}

// UpsertDeviceStatus writes a device's status record from one contact.
func (d *DB) UpsertDeviceStatus(ctx context.Context, status *models.DeviceStatus) error {
	relays, err := json.Marshal(status.RelayStates)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO device_status (device_id, last_seen, is_online, relay_states, wifi_rssi,
			free_heap, uptime_seconds, firmware_version, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		 ON CONFLICT (device_id) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			is_online = EXCLUDED.is_online,
			relay_states = EXCLUDED.relay_states,
			wifi_rssi = EXCLUDED.wifi_rssi,
			free_heap = EXCLUDED.free_heap,
			uptime_seconds = EXCLUDED.uptime_seconds,
			firmware_version = COALESCE(EXCLUDED.firmware_version, device_status.firmware_version),
			ip_address = COALESCE(EXCLUDED.ip_address, device_status.ip_address)`,
		status.DeviceID, status.LastSeen, status.IsOnline, relays, status.WifiRSSI,
		status.FreeHeap, status.UptimeSeconds, status.FirmwareVersion, status.IPAddress)
	return err
}

// SetDeviceOnline persists a recomputed online flag.
func (d *DB) SetDeviceOnline(ctx context.Context, deviceID string, online bool) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE device_status SET is_online = $2 WHERE device_id = $1", deviceID, online)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return devices.ErrUnknownDevice
	}
	return nil
}

// GetEngineStatus fetches the per-device engine switches. A device
// with no row yet gets the defaults: engine on, everything else off.
func (d *DB) GetEngineStatus(ctx context.Context, deviceID string) (*models.EngineStatus, error) {
	var status models.EngineStatus
	var locked []byte
	err := d.pool.QueryRow(ctx,
		`SELECT device_id, engine_enabled, dry_run_mode, emergency_mode, manual_override,
			locked_relays, total_evaluations, total_actions, total_safety_blocks, updated_at
		 FROM engine_status WHERE device_id = $1`, deviceID).
		Scan(&status.DeviceID, &status.EngineEnabled, &status.DryRunMode, &status.EmergencyMode,
			&status.ManualOverride, &locked, &status.TotalEvaluations, &status.TotalActions,
			&status.TotalSafetyBlocks, &status.UpdatedAt)
	if err == pgx.ErrNoRows {
		return &models.EngineStatus{DeviceID: deviceID, EngineEnabled: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(locked) > 0 {
		if err := json.Unmarshal(locked, &status.LockedRelays); err != nil {
			return nil, err
		}
	}
	return &status, nil
}

// UpsertEngineStatus writes the per-device switches, preserving the
// running counters.
func (d *DB) UpsertEngineStatus(ctx context.Context, status *models.EngineStatus) error {
	locked, err := json.Marshal(status.LockedRelays)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO engine_status (device_id, engine_enabled, dry_run_mode, emergency_mode,
			manual_override, locked_relays, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (device_id) DO UPDATE SET
			engine_enabled = EXCLUDED.engine_enabled,
			dry_run_mode = EXCLUDED.dry_run_mode,
			emergency_mode = EXCLUDED.emergency_mode,
			manual_override = EXCLUDED.manual_override,
			locked_relays = EXCLUDED.locked_relays,
			updated_at = NOW()`,
		status.DeviceID, status.EngineEnabled, status.DryRunMode, status.EmergencyMode,
		status.ManualOverride, locked)
	return err
}

// BumpEngineCounters adds to the per-device running totals, creating
// the row with defaults if missing.
func (d *DB) BumpEngineCounters(ctx context.Context, deviceID string, evaluations, actions, safetyBlocks int64) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO engine_status (device_id, total_evaluations, total_actions, total_safety_blocks, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (device_id) DO UPDATE SET
			total_evaluations = engine_status.total_evaluations + EXCLUDED.total_evaluations,
			total_actions = engine_status.total_actions + EXCLUDED.total_actions,
			total_safety_blocks = engine_status.total_safety_blocks + EXCLUDED.total_safety_blocks,
			updated_at = NOW()`,
		deviceID, evaluations, actions, safetyBlocks)
	return err
}

// CountRulesByDevice counts rules bound to a device.
func (d *DB) CountRulesByDevice(ctx context.Context, deviceID string) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rules WHERE device_id = $1", deviceID).Scan(&count)
	return count, err
}

// InsertRuleExecution records one gate attempt.
func (d *DB) InsertRuleExecution(ctx context.Context, exec *models.RuleExecution) error {
	return d.pool.QueryRow(ctx,
		`INSERT INTO rule_executions (device_id, rule_id, rule_name, action_type, success,
			error_message, execution_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8) RETURNING id`,
		exec.DeviceID, exec.RuleID, exec.RuleName, exec.ActionType, exec.Success,
		exec.ErrorMessage, exec.ExecutionTimeMs, exec.CreatedAt).
		Scan(&exec.ID)
}

// RecentExecutions fetches the newest execution records for a device.
func (d *DB) RecentExecutions(ctx context.Context, deviceID string, limit int) ([]models.RuleExecution, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, device_id, rule_id, rule_name, action_type, success,
			COALESCE(error_message, ''), execution_time_ms, created_at
		 FROM rule_executions WHERE device_id = $1 ORDER BY created_at DESC LIMIT $2`,
		deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []models.RuleExecution
	for rows.Next() {
		var e models.RuleExecution
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.RuleID, &e.RuleName, &e.ActionType,
			&e.Success, &e.ErrorMessage, &e.ExecutionTimeMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// InsertAlert records a system alert.
func (d *DB) InsertAlert(ctx context.Context, alert *models.SystemAlert) error {
	return d.pool.QueryRow(ctx,
		"INSERT INTO system_alerts (device_id, alert_type, alert_category, message, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		alert.DeviceID, alert.AlertType, alert.AlertCategory, alert.Message, alert.CreatedAt).
		Scan(&alert.ID)
}

// UnacknowledgedAlerts fetches open alerts for a device, newest first.
func (d *DB) UnacknowledgedAlerts(ctx context.Context, deviceID string, limit int) ([]models.SystemAlert, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, device_id, alert_type, alert_category, message, acknowledged, acknowledged_at, created_at
		 FROM system_alerts WHERE device_id = $1 AND acknowledged = false
		 ORDER BY created_at DESC LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.SystemAlert
	for rows.Next() {
		var a models.SystemAlert
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.AlertType, &a.AlertCategory, &a.Message,
			&a.Acknowledged, &a.AcknowledgedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as handled.
func (d *DB) AcknowledgeAlert(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE system_alerts SET acknowledged = true, acknowledged_at = NOW() WHERE id = $1 AND acknowledged = false", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
