package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/propdesk/agent-console/internal/models"
)

// AutoMigrate applies the console schema.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.Credential{},
		&models.NotificationSetting{},
		&models.NotificationLog{},
	)
}
