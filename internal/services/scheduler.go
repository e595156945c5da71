package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smarttest/internal/generator"
	"smarttest/internal/models"
)

// Scheduler runs stored scheduled runs on their cron expressions.
type Scheduler struct {
	cron   *cron.Cron
	db     *gorm.DB
	runner *Runner
	log    *zap.Logger

	mu      sync.Mutex
	entries map[uint]cron.EntryID
}

func NewScheduler(db *gorm.DB, runner *Runner, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		db:      db,
		runner:  runner,
		log:     log,
		entries: make(map[uint]cron.EntryID),
	}
}

// Start loads all enabled scheduled runs and begins dispatching them.
func (s *Scheduler) Start() error {
	if s.db == nil {
		s.log.Info("scheduler disabled: no database")
		return nil
	}
	var rows []models.ScheduledRun
	if err := s.db.Where("status = ?", 1).Find(&rows).Error; err != nil {
		return fmt.Errorf("load scheduled runs: %w", err)
	}
	for i := range rows {
		if err := s.schedule(&rows[i]); err != nil {
			s.log.Error("schedule failed",
				zap.Uint("schedule_id", rows[i].ID),
				zap.String("cron", rows[i].CronExpression),
				zap.Error(err))
		}
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.entries)))
	return nil
}

// Add registers one scheduled run with the running scheduler.
func (s *Scheduler) Add(run *models.ScheduledRun) error {
	return s.schedule(run)
}

// Remove drops a scheduled run by database ID.
func (s *Scheduler) Remove(scheduleID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(id)
		delete(s.entries, scheduleID)
	}
}

func (s *Scheduler) schedule(run *models.ScheduledRun) error {
	scheduleID := run.ID
	url := run.WebsiteURL
	var creds *generator.Credentials
	if run.Username != "" {
		creds = &generator.Credentials{Username: run.Username, Password: run.Password}
	}
	ov := RunOverrides{Workers: run.Concurrency, TimeoutSeconds: run.TimeoutSeconds}

	entryID, err := s.cron.AddFunc(run.CronExpression, func() {
		s.fire(scheduleID, url, creds, ov)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[scheduleID] = entryID
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) fire(scheduleID uint, url string, creds *generator.Credentials, ov RunOverrides) {
	log := s.log.With(zap.Uint("schedule_id", scheduleID), zap.String("url", url))
	log.Info("scheduled run starting")

	ctx := context.Background()
	res, err := s.runner.Execute(ctx, url, creds, ov)
	if err != nil {
		log.Error("scheduled run failed", zap.Error(err))
	} else {
		log.Info("scheduled run finished",
			zap.String("run_id", res.RunID),
			zap.Int("total", res.Summary.Total),
			zap.Int("passed", res.Summary.Passed),
			zap.Int("failed", res.Summary.Failed))
	}

	if s.db != nil {
		now := time.Now()
		if err := s.db.Model(&models.ScheduledRun{}).
			Where("id = ?", scheduleID).
			Update("last_run_at", &now).Error; err != nil {
			log.Warn("last_run_at update failed", zap.Error(err))
		}
	}
}

// Stop halts dispatching and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
