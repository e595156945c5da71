// Package handlers implements the HTTP API on top of the run pipeline.
package handlers

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smarttest/internal/config"
	"smarttest/internal/history"
	"smarttest/internal/recorder"
	"smarttest/internal/reports"
	"smarttest/internal/services"
	"smarttest/pkg/response"
)

// Handlers carries the shared dependencies of all endpoints.
type Handlers struct {
	Cfg       *config.Config
	DB        *gorm.DB
	Runner    *services.Runner
	Recorder  *recorder.Manager
	History   *history.Log
	Reports   *reports.Writer
	Scheduler *services.Scheduler
	Log       *zap.Logger

	mu   sync.Mutex
	last *finishedRecording
}

// finishedRecording holds the most recent stopped recording until it is saved.
type finishedRecording struct {
	SessionID  string
	WebsiteURL string
	Steps      []recorder.RecordedStep
	Script     string
	StoppedAt  time.Time
}

func New(cfg *config.Config, db *gorm.DB, runner *services.Runner, rec *recorder.Manager,
	hist *history.Log, rep *reports.Writer, sched *services.Scheduler, log *zap.Logger) *Handlers {
	return &Handlers{
		Cfg:       cfg,
		DB:        db,
		Runner:    runner,
		Recorder:  rec,
		History:   hist,
		Reports:   rep,
		Scheduler: sched,
		Log:       log,
	}
}

func (h *Handlers) HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
