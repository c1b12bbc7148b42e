package commands

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hydrowave/internal/models"
)

// DefaultStaleHorizon is how long a command may sit undelivered or
// unconfirmed before it is flagged.
const DefaultStaleHorizon = 10 * time.Minute

// AlertSink receives the alerts the monitor raises.
type AlertSink interface {
	InsertAlert(ctx context.Context, alert *models.SystemAlert) error
}

// Monitor watches for commands stuck in pending or sent past the
// staleness horizon and raises one alert per command. It never requeues
// anything: retry policy is an operator decision, not a silent loop.
type Monitor struct {
	queue   Queue
	alerts  AlertSink
	horizon time.Duration

	mu      sync.Mutex
	flagged map[string]bool
}

// NewMonitor creates a staleness monitor. horizon <= 0 uses
// DefaultStaleHorizon.
func NewMonitor(queue Queue, alerts AlertSink, horizon time.Duration) *Monitor {
	if horizon <= 0 {
		horizon = DefaultStaleHorizon
	}
	return &Monitor{
		queue:   queue,
		alerts:  alerts,
		horizon: horizon,
		flagged: make(map[string]bool),
	}
}

// Run sweeps on the given interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				log.Printf("COMMANDS: Stale sweep failed: %v", err)
			}
		}
	}
}

// Sweep flags every newly stale command and forgets commands that have
// since resolved, so the flagged set tracks only live stragglers.
func (m *Monitor) Sweep(ctx context.Context) error {
	stale, err := m.queue.Stale(ctx, m.horizon)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(stale))
	for _, cmd := range stale {
		current[cmd.ID] = true
	}
	m.mu.Lock()
	for id := range m.flagged {
		if !current[id] {
			delete(m.flagged, id)
		}
	}
	m.mu.Unlock()

	for _, cmd := range stale {
		m.mu.Lock()
		seen := m.flagged[cmd.ID]
		if !seen {
			m.flagged[cmd.ID] = true
		}
		m.mu.Unlock()
		if seen {
			continue
		}

		alert := &models.SystemAlert{
			DeviceID:      cmd.DeviceID,
			AlertType:     models.AlertWarning,
			AlertCategory: models.AlertCategoryRelay,
			Message: fmt.Sprintf("Command %s (relay %d %s) stuck in %s for over %s",
				cmd.ID, cmd.RelayNumber, cmd.Action, cmd.Status, m.horizon),
			CreatedAt: time.Now(),
		}
		if err := m.alerts.InsertAlert(ctx, alert); err != nil {
			log.Printf("COMMANDS: Failed to raise stale alert for %s: %v", cmd.ID, err)
			m.mu.Lock()
			delete(m.flagged, cmd.ID)
			m.mu.Unlock()
		}
	}
	return nil
}
