package devices

import (
	"context"
	"errors"
	"log"
	"time"

	"hydrowave/internal/models"
)

// OnlineWindow is how recently a device must have checked in to count
// as online.
const OnlineWindow = 2 * time.Minute

// ErrUnknownDevice is returned when no status record exists yet.
var ErrUnknownDevice = errors.New("unknown device")

// StatusStore persists device status records.
type StatusStore interface {
	GetDeviceStatus(ctx context.Context, deviceID string) (*models.DeviceStatus, error)
	UpsertDeviceStatus(ctx context.Context, status *models.DeviceStatus) error
	SetDeviceOnline(ctx context.Context, deviceID string, online bool) error
}

// Tracker derives each device's online/offline classification from its
// last contact. Every contact refreshes last_seen; is_online is
// recomputed on every read and written back opportunistically when the
// stored flag has drifted, so stored state converges without a
// background sweep.
type Tracker struct {
	store  StatusStore
	window time.Duration
	now    func() time.Time
}

// NewTracker creates a tracker over the given store.
func NewTracker(store StatusStore) *Tracker {
	return &Tracker{store: store, window: OnlineWindow, now: time.Now}
}

// ReportContact upserts the device's status from one contact report.
// The reported relay vector is normalized to exactly 16 entries.
func (t *Tracker) ReportContact(ctx context.Context, deviceID string, tel models.Telemetry) (*models.DeviceStatus, error) {
	status := &models.DeviceStatus{
		DeviceID:        deviceID,
		LastSeen:        t.now(),
		IsOnline:        true,
		RelayStates:     NormalizeRelayStates(tel.RelayStates),
		WifiRSSI:        tel.WifiRSSI,
		FreeHeap:        tel.FreeHeap,
		UptimeSeconds:   tel.UptimeSeconds,
		FirmwareVersion: tel.FirmwareVersion,
		IPAddress:       tel.IPAddress,
	}
	if err := t.store.UpsertDeviceStatus(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// Touch refreshes last_seen from a contact that carried no telemetry,
// such as a command poll. Unknown devices get a bare record so polling
// alone is enough to register as online.
func (t *Tracker) Touch(ctx context.Context, deviceID string) error {
	status, err := t.store.GetDeviceStatus(ctx, deviceID)
	if err == ErrUnknownDevice {
		status = &models.DeviceStatus{DeviceID: deviceID}
	} else if err != nil {
		return err
	}
	status.LastSeen = t.now()
	status.IsOnline = true
	status.RelayStates = NormalizeRelayStates(status.RelayStates)
	return t.store.UpsertDeviceStatus(ctx, status)
}

// Status returns the device's stored record with is_online recomputed,
// plus whole minutes since it was last seen. When the recomputed flag
// differs from the stored one, the flip is written back; a failed
// write-back only delays convergence and is not an error.
func (t *Tracker) Status(ctx context.Context, deviceID string) (*models.DeviceStatus, int, error) {
	status, err := t.store.GetDeviceStatus(ctx, deviceID)
	if err != nil {
		return nil, 0, err
	}

	sinceLastSeen := t.now().Sub(status.LastSeen)
	online := sinceLastSeen < t.window
	if status.IsOnline != online {
		if err := t.store.SetDeviceOnline(ctx, deviceID, online); err != nil {
			log.Printf("DEVICES: Failed to persist online flip for %s: %v", deviceID, err)
		}
	}
	status.IsOnline = online
	status.RelayStates = NormalizeRelayStates(status.RelayStates)

	minutes := int(sinceLastSeen / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return status, minutes, nil
}

// IsOnline reports the derived liveness of a device. Unknown devices
// are offline.
func (t *Tracker) IsOnline(ctx context.Context, deviceID string) bool {
	status, _, err := t.Status(ctx, deviceID)
	if err != nil {
		return false
	}
	return status.IsOnline
}

// Known reports whether a status record exists for the device.
func (t *Tracker) Known(ctx context.Context, deviceID string) (bool, error) {
	_, err := t.store.GetDeviceStatus(ctx, deviceID)
	if err == ErrUnknownDevice {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NormalizeRelayStates pads or truncates a reported relay vector to
// exactly 16 entries. Missing relays read as off.
func NormalizeRelayStates(states []bool) []bool {
	normalized := make([]bool, models.MaxRelays)
	copy(normalized, states)
	return normalized
}
