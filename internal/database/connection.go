package database

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/thereayou/taskrooms/internal/config"
	"github.com/thereayou/taskrooms/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*Database, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.DBLogLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	d := NewDatabase(db).WithRetries(cfg.TxMaxRetries)
	if err := d.Migrate(); err != nil {
		return nil, err
	}

	log.Println("PostgreSQL database connected")
	return d, nil
}

// Migrate creates or updates every table the service uses.
func (d *Database) Migrate() error {
	if err := d.db.SetupJoinTable(&models.Task{}, "Assignees", &models.TaskAssignee{}); err != nil {
		return err
	}
	return d.db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.Task{},
		&models.TaskAssignee{},
		&models.Comment{},
	)
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
