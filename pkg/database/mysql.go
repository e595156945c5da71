package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smarttest/internal/config"
	"smarttest/internal/models"
	"smarttest/pkg/utils"
)

// Init opens the connection and verifies it. Migration and seeding are
// separate steps so callers own the startup order; the handle is returned
// rather than held in a package global.
func Init(cfg *config.Config) (*gorm.DB, error) {
	logMode := logger.Warn
	if cfg.Server.Mode == "debug" {
		logMode = logger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.TestRun{},
		&models.ScheduledRun{},
		&models.RecordingScript{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SeedDefaultData creates the initial admin account when no user exists.
func SeedDefaultData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword("admin123")
	if err != nil {
		return fmt.Errorf("failed to hash default password: %w", err)
	}
	admin := models.User{
		Username: "admin",
		Email:    "admin@example.com",
		Password: hashed,
		RealName: "Administrator",
		IsAdmin:  true,
		Status:   1,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	return nil
}
