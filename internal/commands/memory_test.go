package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hydrowave/internal/models"
)

func TestMemoryQueueFIFODeliveryOnce(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	for i, relay := range []int{0, 1, 2} {
		clock = base.Add(time.Duration(i) * time.Second)
		if _, err := q.Enqueue(ctx, "dev-1", relay, "on", nil, "user:1"); err != nil {
			t.Fatalf("Enqueue relay %d: %v", relay, err)
		}
	}

	delivered, err := q.Poll(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(delivered) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(delivered))
	}
	for i, want := range []int{0, 1, 2} {
		if delivered[i].RelayNumber != want {
			t.Errorf("position %d = relay %d, want %d", i, delivered[i].RelayNumber, want)
		}
		if delivered[i].Status != models.CommandSent {
			t.Errorf("delivered command %d should be sent, got %s", i, delivered[i].Status)
		}
		if delivered[i].SentAt == nil {
			t.Errorf("delivered command %d missing sent_at", i)
		}
	}

	// Second poll finds nothing: delivery is exactly once.
	again, err := q.Poll(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second poll should be empty, got %d commands", len(again))
	}
}

func TestMemoryQueueValidation(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "dev-1", 16, "on", nil, ""); !errors.Is(err, ErrRelayOutOfRange) {
		t.Errorf("relay 16 should be out of range, got %v", err)
	}
	if _, err := q.Enqueue(ctx, "dev-1", -1, "on", nil, ""); !errors.Is(err, ErrRelayOutOfRange) {
		t.Errorf("relay -1 should be out of range, got %v", err)
	}
	if _, err := q.Enqueue(ctx, "dev-1", 0, "toggle", nil, ""); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action should be rejected, got %v", err)
	}
}

func TestMemoryQueueDuplicatePending(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "dev-1", 3, "on", nil, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, "dev-1", 3, "on", nil, ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("identical pending command should be rejected, got %v", err)
	}
	// A different action on the same relay is not a duplicate.
	if _, err := q.Enqueue(ctx, "dev-1", 3, "off", nil, ""); err != nil {
		t.Errorf("different action should be accepted, got %v", err)
	}
	// Once delivered, the same command may be queued again.
	if _, err := q.Poll(ctx, "dev-1"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if _, err := q.Enqueue(ctx, "dev-1", 3, "on", nil, ""); err != nil {
		t.Errorf("re-queue after delivery should be accepted, got %v", err)
	}
}

func TestMemoryQueueReport(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	cmd, err := q.Enqueue(ctx, "dev-1", 2, "on", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Poll(ctx, "dev-1"); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	updated, err := q.Report(ctx, cmd.ID, models.CommandFailed, "")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if updated.Status != models.CommandFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
	if updated.ErrorMessage == "" {
		t.Error("failed report without a message should get a placeholder")
	}
	if updated.CompletedAt == nil {
		t.Error("terminal report should set completed_at")
	}

	if _, err := q.Report(ctx, "cmd-missing", models.CommandCompleted, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown command should be ErrNotFound, got %v", err)
	}
	if _, err := q.Report(ctx, cmd.ID, models.CommandStatus("bogus"), ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bogus status should be ErrInvalidStatus, got %v", err)
	}
}

func TestMemoryQueueDeviceIsolation(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "dev-a", 0, "on", nil, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, "dev-b", 0, "on", nil, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	delivered, _ := q.Poll(ctx, "dev-a")
	if len(delivered) != 1 || delivered[0].DeviceID != "dev-a" {
		t.Fatalf("dev-a poll should only see its own command, got %v", delivered)
	}
	delivered, _ = q.Poll(ctx, "dev-b")
	if len(delivered) != 1 || delivered[0].DeviceID != "dev-b" {
		t.Fatalf("dev-b command should survive dev-a's poll, got %v", delivered)
	}
}

func TestMemoryQueueEviction(t *testing.T) {
	q := NewMemoryQueue(5 * time.Minute)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	cmd, err := q.Enqueue(ctx, "dev-1", 0, "on", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Poll(ctx, "dev-1"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if _, err := q.Report(ctx, cmd.ID, models.CommandCompleted, ""); err != nil {
		t.Fatalf("Report: %v", err)
	}

	clock = base.Add(4 * time.Minute)
	if n := q.EvictExpired(); n != 0 {
		t.Errorf("nothing should be evicted before retention, got %d", n)
	}
	if _, err := q.Get(ctx, cmd.ID); err != nil {
		t.Errorf("terminal command should remain queryable inside retention: %v", err)
	}

	clock = base.Add(6 * time.Minute)
	if n := q.EvictExpired(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if _, err := q.Get(ctx, cmd.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("evicted command should be gone, got %v", err)
	}
}

func TestMemoryQueueStale(t *testing.T) {
	q := NewMemoryQueue(time.Hour)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	cmd, err := q.Enqueue(ctx, "dev-1", 0, "on", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Poll(ctx, "dev-1"); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	clock = base.Add(15 * time.Minute)
	stale, err := q.Stale(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != cmd.ID {
		t.Fatalf("expected the sent command to be stale, got %v", stale)
	}

	// Reported commands stop counting as stale.
	if _, err := q.Report(ctx, cmd.ID, models.CommandCompleted, ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	stale, _ = q.Stale(ctx, 10*time.Minute)
	if len(stale) != 0 {
		t.Errorf("terminal commands are never stale, got %v", stale)
	}
}

func TestMemoryQueueConcurrentPolls(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	for relay := 0; relay < 8; relay++ {
		if _, err := q.Enqueue(ctx, "dev-1", relay, "on", nil, ""); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var wg sync.WaitGroup
	results := make([][]models.RelayCommand, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delivered, err := q.Poll(ctx, "dev-1")
			if err != nil {
				t.Errorf("Poll: %v", err)
			}
			results[i] = delivered
		}(i)
	}
	wg.Wait()

	seen := make(map[string]int)
	total := 0
	for _, r := range results {
		for _, cmd := range r {
			seen[cmd.ID]++
			total++
		}
	}
	if total != 8 {
		t.Errorf("8 commands total should be delivered, got %d", total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("command %s delivered %d times", id, n)
		}
	}
}
