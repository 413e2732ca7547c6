package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gluk-w/claworc/session-gateway/internal/config"
	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(
		&Setting{},
		&AuthState{},
		&DeliveryRecord{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func Ping() error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// Journal writes send attempts to the delivery_records table.
type Journal struct{}

// RecordDelivery stores d. Failures are logged, not returned: the journal
// never decides the outcome of a send.
func (Journal) RecordDelivery(d session.Delivery) {
	rec := DeliveryRecord{
		MessageID:  d.MessageID,
		Recipient:  d.Recipient,
		Kind:       d.Kind,
		Status:     d.Status,
		Error:      d.Error,
		DurationMs: d.Duration.Milliseconds(),
	}
	if err := DB.Create(&rec).Error; err != nil {
		log.Printf("Failed to record delivery %s: %v", d.MessageID, err)
	}
}

// ListDeliveries returns the newest records first.
func ListDeliveries(limit int) ([]DeliveryRecord, error) {
	var records []DeliveryRecord
	err := DB.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// PruneDeliveries deletes records created before cutoff.
func PruneDeliveries(cutoff time.Time) (int64, error) {
	result := DB.Where("created_at < ?", cutoff).Delete(&DeliveryRecord{})
	return result.RowsAffected, result.Error
}
