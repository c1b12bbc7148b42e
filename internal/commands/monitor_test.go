package commands

import (
	"context"
	"testing"
	"time"

	"hydrowave/internal/models"
)

type captureSink struct {
	alerts []models.SystemAlert
}

func (s *captureSink) InsertAlert(ctx context.Context, alert *models.SystemAlert) error {
	s.alerts = append(s.alerts, *alert)
	return nil
}

func TestMonitorFlagsStaleCommandOnce(t *testing.T) {
	q := NewMemoryQueue(time.Hour)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	cmd, err := q.Enqueue(ctx, "dev-1", 1, "on", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Poll(ctx, "dev-1"); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	sink := &captureSink{}
	monitor := NewMonitor(q, sink, 10*time.Minute)

	// Inside the horizon: nothing to flag.
	clock = base.Add(5 * time.Minute)
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.alerts) != 0 {
		t.Fatalf("no alerts expected inside the horizon, got %d", len(sink.alerts))
	}

	clock = base.Add(15 * time.Minute)
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(sink.alerts))
	}
	if sink.alerts[0].AlertCategory != models.AlertCategoryRelay || sink.alerts[0].DeviceID != "dev-1" {
		t.Errorf("alert = %+v", sink.alerts[0])
	}

	// Repeat sweeps do not re-flag the same command.
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Errorf("stale command should be flagged once, got %d alerts", len(sink.alerts))
	}

	// Once reported, the command is no longer the monitor's business.
	if _, err := q.Report(ctx, cmd.ID, models.CommandCompleted, ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Errorf("terminal command should not alert again, got %d", len(sink.alerts))
	}
}

func TestMonitorFlagsUndeliveredCommand(t *testing.T) {
	q := NewMemoryQueue(time.Hour)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	// Never polled: the command sits pending.
	if _, err := q.Enqueue(ctx, "dev-1", 4, "on", nil, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	sink := &captureSink{}
	monitor := NewMonitor(q, sink, 10*time.Minute)

	clock = base.Add(15 * time.Minute)
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("undelivered pending command should be flagged, got %d alerts", len(sink.alerts))
	}
	if sink.alerts[0].DeviceID != "dev-1" {
		t.Errorf("alert = %+v", sink.alerts[0])
	}
}

func TestMonitorForgetsResolvedCommands(t *testing.T) {
	q := NewMemoryQueue(time.Hour)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	cmd, err := q.Enqueue(ctx, "dev-1", 1, "on", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Poll(ctx, "dev-1"); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	sink := &captureSink{}
	monitor := NewMonitor(q, sink, 10*time.Minute)

	clock = base.Add(15 * time.Minute)
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(sink.alerts))
	}

	if _, err := q.Report(ctx, cmd.ID, models.CommandCompleted, ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	monitor.mu.Lock()
	remaining := len(monitor.flagged)
	monitor.mu.Unlock()
	if remaining != 0 {
		t.Errorf("resolved commands should leave the flagged set, got %d entries", remaining)
	}
}
