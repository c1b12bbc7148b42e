package devices

import (
	"context"
	"sync"

	"hydrowave/internal/models"
)

// MemoryStatusStore keeps device status in memory. It backs tests and
// the single-instance degraded mode; records do not survive a restart.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]models.DeviceStatus
}

// NewMemoryStatusStore initializes an empty status store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]models.DeviceStatus)}
}

func (s *MemoryStatusStore) GetDeviceStatus(ctx context.Context, deviceID string) (*models.DeviceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[deviceID]
	if !ok {
		return nil, ErrUnknownDevice
	}
	dup := status
	dup.RelayStates = append([]bool(nil), status.RelayStates...)
	return &dup, nil
}

func (s *MemoryStatusStore) UpsertDeviceStatus(ctx context.Context, status *models.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *status
	dup.RelayStates = append([]bool(nil), status.RelayStates...)
	s.statuses[status.DeviceID] = dup
	return nil
}

func (s *MemoryStatusStore) SetDeviceOnline(ctx context.Context, deviceID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	status.IsOnline = online
	s.statuses[deviceID] = status
	return nil
}
