package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"sort"
	"sync"
	"time"

	"hydrowave/internal/models"
)

// MemoryQueue is the transient queue backend: per-device shards behind
// one map lock, no persistence. It is a degraded mode for
// single-instance deployments only — state does not survive a restart
// and cannot be shared across replicas. Terminal commands self-evict
// after the retention window so the maps cannot grow without bound.
type MemoryQueue struct {
	mu        sync.RWMutex
	devices   map[string]*deviceShard
	retention time.Duration
	now       func() time.Time
}

// deviceShard owns one device's commands. Shards lock independently so
// devices never contend with each other.
type deviceShard struct {
	mu       sync.Mutex
	commands []*models.RelayCommand
}

// NewMemoryQueue creates a transient queue. retention <= 0 uses
// DefaultRetention.
func NewMemoryQueue(retention time.Duration) *MemoryQueue {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryQueue{
		devices:   make(map[string]*deviceShard),
		retention: retention,
		now:       time.Now,
	}
}

func (q *MemoryQueue) shard(deviceID string) *deviceShard {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.devices[deviceID]
	if !ok {
		s = &deviceShard{}
		q.devices[deviceID] = s
	}
	return s
}

func (q *MemoryQueue) Enqueue(ctx context.Context, deviceID string, relayNumber int, action string, durationSeconds *int, createdBy string) (*models.RelayCommand, error) {
	if err := checkRequest(deviceID, relayNumber, action); err != nil {
		return nil, err
	}
	s := q.shard(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := q.now()
	s.evict(now, q.retention)
	for _, cmd := range s.commands {
		if cmd.Status == models.CommandPending && cmd.RelayNumber == relayNumber && cmd.Action == action {
			return nil, ErrDuplicate
		}
	}

	cmd := &models.RelayCommand{
		ID:              newCommandID(),
		DeviceID:        deviceID,
		RelayNumber:     relayNumber,
		Action:          action,
		DurationSeconds: durationSeconds,
		Status:          models.CommandPending,
		CreatedBy:       createdBy,
		CreatedAt:       now,
	}
	s.commands = append(s.commands, cmd)
	return copyCommand(cmd), nil
}

func (q *MemoryQueue) Poll(ctx context.Context, deviceID string) ([]models.RelayCommand, error) {
	s := q.shard(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := q.now()
	s.evict(now, q.retention)

	var delivered []models.RelayCommand
	for _, cmd := range s.commands {
		if cmd.Status != models.CommandPending {
			continue
		}
		sentAt := now
		cmd.Status = models.CommandSent
		cmd.SentAt = &sentAt
		delivered = append(delivered, *copyCommand(cmd))
	}
	sort.SliceStable(delivered, func(i, j int) bool {
		return delivered[i].CreatedAt.Before(delivered[j].CreatedAt)
	})
	return delivered, nil
}

func (q *MemoryQueue) Report(ctx context.Context, commandID string, status models.CommandStatus, errorMessage string) (*models.RelayCommand, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	cmd, s := q.find(commandID)
	if cmd == nil {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := q.now()
	cmd.Status = status
	if status.Terminal() {
		cmd.CompletedAt = &now
	}
	if status == models.CommandFailed {
		if errorMessage == "" {
			errorMessage = "unspecified device error"
		}
		cmd.ErrorMessage = errorMessage
	}
	return copyCommand(cmd), nil
}

func (q *MemoryQueue) Get(ctx context.Context, commandID string) (*models.RelayCommand, error) {
	cmd, s := q.find(commandID)
	if cmd == nil {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCommand(cmd), nil
}

func (q *MemoryQueue) Stale(ctx context.Context, horizon time.Duration) ([]models.RelayCommand, error) {
	cutoff := q.now().Add(-horizon)
	var stale []models.RelayCommand

	q.mu.RLock()
	shards := make([]*deviceShard, 0, len(q.devices))
	for _, s := range q.devices {
		shards = append(shards, s)
	}
	q.mu.RUnlock()

	for _, s := range shards {
		s.mu.Lock()
		for _, cmd := range s.commands {
			if cmd.Status.Terminal() || cmd.CreatedAt.After(cutoff) {
				continue
			}
			stale = append(stale, *copyCommand(cmd))
		}
		s.mu.Unlock()
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	return stale, nil
}

// Run evicts expired terminal commands until ctx is done.
func (q *MemoryQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.EvictExpired(); n > 0 {
				log.Printf("COMMANDS: Evicted %d expired command(s)", n)
			}
		}
	}
}

// EvictExpired removes terminal commands past the retention window
// across all devices and returns how many were dropped.
func (q *MemoryQueue) EvictExpired() int {
	now := q.now()
	total := 0

	q.mu.RLock()
	shards := make([]*deviceShard, 0, len(q.devices))
	for _, s := range q.devices {
		shards = append(shards, s)
	}
	q.mu.RUnlock()

	for _, s := range shards {
		s.mu.Lock()
		total += s.evict(now, q.retention)
		s.mu.Unlock()
	}
	return total
}

func (q *MemoryQueue) find(commandID string) (*models.RelayCommand, *deviceShard) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, s := range q.devices {
		s.mu.Lock()
		for _, cmd := range s.commands {
			if cmd.ID == commandID {
				s.mu.Unlock()
				return cmd, s
			}
		}
		s.mu.Unlock()
	}
	return nil, nil
}

// evict drops terminal commands older than the retention window.
// Callers hold the shard lock.
func (s *deviceShard) evict(now time.Time, retention time.Duration) int {
	kept := s.commands[:0]
	dropped := 0
	for _, cmd := range s.commands {
		if cmd.Status.Terminal() && cmd.CompletedAt != nil && now.Sub(*cmd.CompletedAt) >= retention {
			dropped++
			continue
		}
		kept = append(kept, cmd)
	}
	s.commands = kept
	return dropped
}

func newCommandID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "cmd-" + hex.EncodeToString([]byte(time.Now().Format("150405.000000")))
	}
	return "cmd-" + hex.EncodeToString(buf)
}

func copyCommand(cmd *models.RelayCommand) *models.RelayCommand {
	dup := *cmd
	return &dup
}
