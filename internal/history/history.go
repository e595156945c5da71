// Package history keeps a bounded, newest-first log of recent runs. The
// in-memory window answers status queries without touching the database;
// gorm persistence, when configured, makes entries survive restarts.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"smarttest/internal/models"
)

// DefaultCapacity matches the retention window of the status API.
const DefaultCapacity = 25

// Record is one run in the log.
type Record struct {
	RunID      string         `json:"run_id"`
	Kind       string         `json:"kind"` // generation | execution | recording
	WebsiteURL string         `json:"website_url"`
	Summary    map[string]int `json:"summary,omitempty"`
	ReportPath string         `json:"report_path,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Log is the bounded run log. The zero value is not usable; construct with
// NewLog and call Init before use, Flush when shutting down.
type Log struct {
	capacity int
	db       *gorm.DB // nil disables persistence
	log      *zap.Logger

	mu      sync.Mutex
	entries []Record
	ready   bool
}

// NewLog builds a log with the given capacity (DefaultCapacity when <= 0).
// db may be nil for a purely in-memory log.
func NewLog(capacity int, db *gorm.DB, log *zap.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, db: db, log: log}
}

// Init loads the most recent persisted entries into the window.
func (l *Log) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return nil
	}
	if l.db != nil {
		var rows []models.TestRun
		err := l.db.Order("created_at DESC").Limit(l.capacity).Find(&rows).Error
		if err != nil {
			return fmt.Errorf("history: load: %w", err)
		}
		for _, row := range rows {
			l.entries = append(l.entries, fromModel(row))
		}
	}
	l.ready = true
	return nil
}

// Add prepends a record, trimming the window to capacity. Persistence is
// best-effort; a failed insert keeps the in-memory entry and logs a warning.
func (l *Log) Add(r Record) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	l.mu.Lock()
	l.entries = append([]Record{r}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	l.mu.Unlock()

	if l.db != nil {
		if err := l.db.Create(toModel(r)).Error; err != nil {
			l.log.Warn("history persist failed", zap.String("run_id", r.RunID), zap.Error(err))
		}
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns the
// whole window.
func (l *Log) Recent(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	copy(out, l.entries[:n])
	return out
}

// Len reports the window size.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Flush marks the log closed. Writes are synchronous, so there is nothing
// pending; Flush exists so shutdown order is explicit.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = false
	return nil
}

func toModel(r Record) *models.TestRun {
	summary, _ := json.Marshal(r.Summary)
	row := &models.TestRun{
		RunID:      r.RunID,
		Kind:       r.Kind,
		WebsiteURL: r.WebsiteURL,
		Summary:    string(summary),
		ReportPath: r.ReportPath,
	}
	row.TotalCases = r.Summary["total"]
	row.Passed = r.Summary["passed"]
	row.Failed = r.Summary["failed"]
	row.Skipped = r.Summary["skipped"]
	row.CreatedAt = r.CreatedAt
	return row
}

func fromModel(row models.TestRun) Record {
	r := Record{
		RunID:      row.RunID,
		Kind:       row.Kind,
		WebsiteURL: row.WebsiteURL,
		ReportPath: row.ReportPath,
		CreatedAt:  row.CreatedAt,
	}
	if row.Summary != "" {
		_ = json.Unmarshal([]byte(row.Summary), &r.Summary)
	}
	return r
}
