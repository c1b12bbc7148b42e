package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"hydrowave/internal/db"
	"hydrowave/internal/models"
	"hydrowave/internal/taskqueue"

	"github.com/robfig/cron/v3"
)

// Scheduler manages time-based rule triggers. Periodic rules become
// "@every" jobs, scheduled rules run on their cron expression; both
// fire by enqueuing an evaluation task.
type Scheduler struct {
	cron      *cron.Cron
	db        *db.DB
	jobMap    map[string]cron.EntryID // Maps rule ID to cron entry ID
	jobMapMux sync.RWMutex            // Protects jobMap
}

// NewScheduler creates a scheduler
func NewScheduler(dbConn *db.DB) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		db:     dbConn,
		jobMap: make(map[string]cron.EntryID),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("SCHEDULER: Cron scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("SCHEDULER: Cron scheduler stopped")
}

// cronSpec maps a rule's trigger to a cron spec. Rules without a
// time-based trigger return "".
func cronSpec(rule *models.Rule) string {
	switch rule.TriggerType {
	case models.TriggerPeriodic:
		if rule.TriggerIntervalMs <= 0 {
			return ""
		}
		return fmt.Sprintf("@every %dms", rule.TriggerIntervalMs)
	case models.TriggerScheduled:
		return rule.Schedule
	}
	return ""
}

// AddOrUpdateRule registers a rule's time trigger, replacing any
// existing job for the same rule.
func (s *Scheduler) AddOrUpdateRule(rule *models.Rule) error {
	s.RemoveRule(rule.ID)

	if !rule.Enabled {
		return nil
	}
	spec := cronSpec(rule)
	if spec == "" {
		return nil
	}

	ruleID := rule.ID
	deviceID := rule.DeviceID
	entryID, err := s.cron.AddFunc(spec, func() {
		if err := taskqueue.EnqueueEvaluation(ruleID, deviceID); err != nil {
			log.Printf("SCHEDULER: Failed to enqueue evaluation for rule %s: %v", ruleID, err)
		}
	})
	if err != nil {
		log.Printf("SCHEDULER: Failed to schedule rule %s with spec '%s': %v", ruleID, spec, err)
		return err
	}

	s.jobMapMux.Lock()
	s.jobMap[ruleID] = entryID
	s.jobMapMux.Unlock()

	log.Printf("SCHEDULER: Scheduled rule %s with spec '%s' (entry ID: %d)", ruleID, spec, entryID)
	return nil
}

// RemoveRule drops a rule's job if one is registered.
func (s *Scheduler) RemoveRule(ruleID string) {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	if entryID, exists := s.jobMap[ruleID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobMap, ruleID)
		log.Printf("SCHEDULER: Removed rule %s (entry ID: %d)", ruleID, entryID)
	}
}

// LoadRules registers every time-triggered rule from the database.
// Called during startup and after bulk rule changes.
func (s *Scheduler) LoadRules(ctx context.Context) error {
	rules, err := s.db.GetAllRules(ctx)
	if err != nil {
		log.Printf("SCHEDULER: Failed to load rules: %v", err)
		return err
	}

	for i := range rules {
		rule := &rules[i]
		if cronSpec(rule) == "" {
			continue
		}
		if err := s.AddOrUpdateRule(rule); err != nil {
			continue
		}
	}

	log.Printf("SCHEDULER: Loaded %d time-triggered rules", s.GetScheduledJobCount())
	return nil
}

// GetScheduledJobCount returns the number of currently scheduled jobs
func (s *Scheduler) GetScheduledJobCount() int {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()
	return len(s.jobMap)
}
