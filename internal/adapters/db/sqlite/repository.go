package sqlite

import (
	"errors"
	"strings"

	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type openOptions struct {
	logLevel logger.LogLevel
}

type OpenOption func(*openOptions)

// WithLogLevel sets gorm's SQL logging: silent, error, warn or info.
func WithLogLevel(level string) OpenOption {
	return func(o *openOptions) {
		o.logLevel = ParseLogLevel(level)
	}
}

func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info", "debug":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

func Open(path string, opts ...OpenOption) (*gorm.DB, error) {
	o := openOptions{logLevel: logger.Silent}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{
		Logger: logger.Default.LogMode(o.logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialising connections keeps
	// concurrent transactions from failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

const (
	targetSchema   = "schema"
	targetInstance = "instance"
)

func lookupCreateRequest(tx *gorm.DB, requestKey, targetType string) (uint, bool, error) {
	if requestKey == "" {
		return 0, false, nil
	}
	var m CreateRequestModel
	err := tx.Where("request_key = ?", requestKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if m.TargetType != targetType {
		return 0, false, domain.Conflict("request key %s was already used for a %s", requestKey, m.TargetType)
	}
	return m.TargetID, true, nil
}

func recordCreateRequest(tx *gorm.DB, requestKey, targetType string, targetID uint) error {
	if requestKey == "" {
		return nil
	}
	return tx.Create(&CreateRequestModel{RequestKey: requestKey, TargetType: targetType, TargetID: targetID}).Error
}

func forgetCreateRequests(tx *gorm.DB, targetType string, targetID uint) error {
	return tx.Where("target_type = ? AND target_id = ?", targetType, targetID).Delete(&CreateRequestModel{}).Error
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}

	return input
}
