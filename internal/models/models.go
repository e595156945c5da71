package models

import (
	"time"

	"gorm.io/gorm"
)

type BaseModel struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

type User struct {
	BaseModel
	Username string `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email    string `json:"email" gorm:"uniqueIndex;size:100;not null"`
	Password string `json:"-" gorm:"size:255;not null"`
	RealName string `json:"real_name" gorm:"size:50"`
	IsAdmin  bool   `json:"is_admin" gorm:"default:false"`
	Status   int    `json:"status" gorm:"default:1"` // 1: active, 0: disabled
}

// TestRun is one persisted analysis/generation/execution run.
type TestRun struct {
	BaseModel
	RunID      string `json:"run_id" gorm:"uniqueIndex;size:36;not null"`
	Kind       string `json:"kind" gorm:"size:20;not null"` // generation | execution | recording
	WebsiteURL string `json:"website_url" gorm:"size:500;not null"`
	TotalCases int    `json:"total_cases"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	// Summary holds per-category counts as JSON.
	Summary    string `json:"summary" gorm:"type:text"`
	ReportPath string `json:"report_path" gorm:"size:500"`
	UserID     uint   `json:"user_id" gorm:"index"`
	User       User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ScheduledRun re-executes a saved generate+execute configuration on a cron
// schedule.
type ScheduledRun struct {
	BaseModel
	Name           string     `json:"name" gorm:"size:100;not null"`
	WebsiteURL     string     `json:"website_url" gorm:"size:500;not null"`
	CronExpression string     `json:"cron_expression" gorm:"size:100;not null"`
	Username       string     `json:"username" gorm:"size:100"`
	Password       string     `json:"password,omitempty" gorm:"size:255"`
	Concurrency    int        `json:"concurrency" gorm:"default:3"`
	TimeoutSeconds int        `json:"timeout_seconds" gorm:"default:600"`
	Status         int        `json:"status" gorm:"default:1"` // 1: enabled, 0: disabled
	LastRunAt      *time.Time `json:"last_run_at"`
	UserID         uint       `json:"user_id" gorm:"index"`
}

// RecordingScript is a stored recording with its synthesized script.
type RecordingScript struct {
	BaseModel
	SessionID  string `json:"session_id" gorm:"uniqueIndex;size:36;not null"`
	Name       string `json:"name" gorm:"size:100"`
	WebsiteURL string `json:"website_url" gorm:"size:500;not null"`
	StepCount  int    `json:"step_count"`
	Steps      string `json:"steps" gorm:"type:longtext"`  // recorded steps as JSON
	Script     string `json:"script" gorm:"type:longtext"` // synthesized program
	UserID     uint   `json:"user_id" gorm:"index"`
}
